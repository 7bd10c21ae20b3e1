// SPDX-License-Identifier: AGPL-3.0-or-later

package configstore

// Known config keys. Stored and compared as plain strings; booleans are
// the lowercase literals "true"/"false" and durations are a count of
// seconds, per the convention documented in doc.go.
const (
	KeySearchCacheTTLSeconds    = "search.cache_ttl_seconds"
	KeyEpisodeCacheTTLSeconds   = "episode.cache_ttl_seconds"
	KeyAliasCacheTTLSeconds     = "alias.cache_ttl_seconds"
	KeyProxyURL                 = "network.proxy_url"
	KeyRateLimitEnabled         = "rate_limit.enabled"
	KeyRateLimitGlobalLimit     = "rate_limit.global_limit"
	KeyRateLimitGlobalPeriodSec = "rate_limit.global_period_seconds"
	KeyWebhookLogRawPayloads    = "webhook.log_raw_payloads"
	KeyWebhookFilterRegex       = "webhook.filter_regex"
	KeySearchMinIntervalSeconds = "search.provider_min_interval_seconds"
	KeyMovieSegmentLimit        = "provider.movie_segment_limit"

	KeyDanmakuOutputEnabled       = "danmaku_output.enabled"
	KeyDanmakuOutputMovieRoot     = "danmaku_output.movie_root"
	KeyDanmakuOutputMovieTemplate = "danmaku_output.movie_template"
	KeyDanmakuOutputTVRoot        = "danmaku_output.tv_root"
	KeyDanmakuOutputTVTemplate    = "danmaku_output.tv_template"
)

// defaults seeds app_config on first read of a key nobody has written
// yet. Values are always plain lowercase strings, matching what GetBool
// and GetInt expect to parse back out.
var defaults = map[string]string{
	KeySearchCacheTTLSeconds:    "10800",
	KeyEpisodeCacheTTLSeconds:   "3600",
	KeyAliasCacheTTLSeconds:     "86400",
	KeyProxyURL:                 "",
	KeyRateLimitEnabled:         "true",
	KeyRateLimitGlobalLimit:     "5000",
	KeyRateLimitGlobalPeriodSec: "86400",
	KeyWebhookLogRawPayloads:    "false",
	KeyWebhookFilterRegex:       "",
	KeySearchMinIntervalSeconds: "1",
	KeyMovieSegmentLimit:        "100",

	KeyDanmakuOutputEnabled:       "false",
	KeyDanmakuOutputMovieRoot:     "danmaku/movies",
	KeyDanmakuOutputMovieTemplate: "${title} (${year})/${title}",
	KeyDanmakuOutputTVRoot:        "danmaku/tv",
	KeyDanmakuOutputTVTemplate:    "${title}/Season ${season}/${title} - S${season}E${episode}",
}
