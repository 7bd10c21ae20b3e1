// SPDX-License-Identifier: AGPL-3.0-or-later

// Package filter holds the provider-agnostic junk-title and episode-
// blacklist filtering every adapter applies to its raw listing before
// handing episodes back to the search pipeline, plus the renumbering
// step that turns a sparse, junk-free list into a contiguous 1-based
// EpisodeIndex sequence (spec.md §4.3.1).
package filter

import (
	"regexp"

	"github.com/quzard/misaka-danmu-server/internal/provider"
)

// GlobalJunkTitlePattern matches search-result titles that are clearly
// not an episode of the work being searched for (trailers, interviews,
// behind-the-scenes cuts, recap compilations).
var GlobalJunkTitlePattern = regexp.MustCompile(
	`纪录片|预告|花絮|专访|直拍|直播回顾|加更|走心|解忧|纯享|节点|解读|揭秘|赏析|速看|资讯|访谈|番外|短片|` +
		`拍摄花絮|制作花絮|幕后花絮|未播花絮|独家花絮|花絮特辑|` +
		`预告片|先导预告|终极预告|正式预告|官方预告|` +
		`彩蛋片段|删减片段|未播片段|番外彩蛋|` +
		`精彩片段|精彩看点|精彩回顾|精彩集锦|看点解析|看点预告|` +
		`NG镜头|NG花絮|番外篇|番外特辑|` +
		`制作特辑|拍摄特辑|幕后特辑|导演特辑|演员特辑|` +
		`片尾曲|插曲|主题曲|背景音乐|OST|音乐MV|歌曲MV|` +
		`前季回顾|剧情回顾|往期回顾|内容总结|剧情盘点|精选合集|剪辑合集|混剪视频|` +
		`独家专访|演员访谈|导演访谈|主创访谈|媒体采访|发布会采访|` +
		`抢先看|抢先版|试看版|即将上线`,
)

// DefaultEpisodeBlacklist is the fallback episode-title blacklist used
// when neither a global nor a per-provider override is configured in
// internal/configstore.
const DefaultEpisodeBlacklist = `^(.*?)((.+?版)|(特(别|典))|((导|演)员|嘉宾|角色)访谈|福利|彩蛋|花絮|预告|特辑|专访|访谈|幕后|周边|资讯|看点|速看|回顾|盘点|合集|PV|MV|CM|OST|ED|OP|BD|特典|SP|NCOP|NCED|MENU|Web-DL|rip|x264|x265|aac|flac)(.*?)$`

// Config carries the two regexes FilterAndRenumber tests a raw
// episode's title against. BlacklistPattern may be nil, meaning no
// episode-level filtering beyond the global junk-title pattern.
type Config struct {
	BlacklistPattern *regexp.Regexp
}

// FilterAndRenumber drops every item whose title matches the global
// junk-title pattern or cfg's blacklist, then reassigns EpisodeIndex as
// 1..n over what remains, preserving input order.
func FilterAndRenumber(items []provider.RawEpisode, cfg Config) []provider.EpisodeInfo {
	out := make([]provider.EpisodeInfo, 0, len(items))
	for _, it := range items {
		if GlobalJunkTitlePattern.MatchString(it.Title) {
			continue
		}
		if cfg.BlacklistPattern != nil && cfg.BlacklistPattern.MatchString(it.Title) {
			continue
		}
		out = append(out, provider.EpisodeInfo{
			ProviderEpisodeID: it.ProviderEpisodeID,
			Title:             it.Title,
			URL:               it.URL,
		})
	}
	for i := range out {
		out[i].EpisodeIndex = i + 1
	}
	return out
}

// IsJunkTitle reports whether title matches the global search-result
// junk pattern, for search() results rather than episode listings.
func IsJunkTitle(title string) bool {
	return GlobalJunkTitlePattern.MatchString(title)
}
