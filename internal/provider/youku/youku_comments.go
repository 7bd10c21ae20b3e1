// SPDX-License-Identifier: AGPL-3.0-or-later

package youku

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/configstore"
	"github.com/quzard/misaka-danmu-server/internal/provider"
)

type youkuCommentProperty struct {
	Color int `json:"color"`
	Pos   int `json:"pos"`
}

type youkuComment struct {
	ID         int64  `json:"id"`
	Content    string `json:"content"`
	PlayAt     int64  `json:"playat"`
	Properties string `json:"propertis"`
}

type youkuDanmakuResult struct {
	Data *struct {
		Result []youkuComment `json:"result"`
	} `json:"data"`
}

type youkuRPCResult struct {
	Ret  []string `json:"ret"`
	Data *struct {
		Result string `json:"result"`
	} `json:"data"`
}

// GetComments implements provider.Adapter. episodeID is the vid with
// "_" swapped back to "=" (see FormatEpisodeIDForComments's inverse in
// GetEpisodes). Segments are walked by "mat" (one per 60-second window)
// until an empty or errored segment is returned.
func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress provider.ProgressFunc) ([]provider.RawComment, error) {
	vid := strings.ReplaceAll(episodeID, "_", "=")

	if err := a.ensureTokenCookie(ctx); err != nil {
		return nil, err
	}

	// Duration-less entries (movies) have no natural segment count, so
	// the walk is bounded by the operator-tunable window limit.
	maxMat, err := a.cfg.GetInt(ctx, configstore.KeyMovieSegmentLimit, 100)
	if err != nil {
		return nil, err
	}

	var all []youkuComment
	for mat := 0; mat < maxMat; mat++ {
		segment, err := a.fetchSegment(ctx, vid, mat)
		if err != nil {
			return nil, err
		}
		if segment == nil {
			break
		}
		all = append(all, segment...)
		if progress != nil {
			pct := 5 + (mat*90)/maxMat
			if pct > 95 {
				pct = 95
			}
			progress(pct)
		}
	}
	if progress != nil {
		progress(100)
	}

	return formatYoukuComments(all), nil
}

func (a *Adapter) fetchSegment(ctx context.Context, vid string, mat int) ([]youkuComment, error) {
	a.mu.Lock()
	token := a.token
	cna := a.cna
	a.mu.Unlock()
	if token == "" {
		return nil, nil
	}

	ctime := time.Now().UnixMilli()
	msg := map[string]any{
		"pid": 0, "ctype": 10004, "sver": "3.1.0", "cver": "v1.0",
		"ctime": ctime, "guid": cna, "vid": vid, "mat": mat,
		"mcount": 1, "type": 1,
	}
	msgBytes, err := json.Marshal(sortedMap(msg))
	if err != nil {
		return nil, apperr.NewUpstreamSchemaError(providerName, err)
	}
	msgEnc := base64.StdEncoding.EncodeToString(msgBytes)
	msg["msg"] = msgEnc
	msg["sign"] = md5Hex(msgEnc + msgSignSalt)

	dataPayload, err := json.Marshal(msg)
	if err != nil {
		return nil, apperr.NewUpstreamSchemaError(providerName, err)
	}
	t := fmt.Sprintf("%d", time.Now().UnixMilli())

	q := url.Values{}
	q.Set("jsv", "2.7.0")
	q.Set("appKey", appKey)
	q.Set("t", t)
	q.Set("sign", md5Hex(strings.Join([]string{token, t, appKey, string(dataPayload)}, "&")))
	q.Set("api", "mopen.youku.danmu.list")
	q.Set("v", "1.0")
	q.Set("type", "originaljson")
	q.Set("dataType", "jsonp")
	q.Set("timeout", "20000")
	q.Set("jsonpIncPrefix", "utility")

	form := url.Values{"data": {string(dataPayload)}}
	resp, err := a.postForm(ctx, "https://acs.youku.com/h5/mopen.youku.danmu.list/1.0/?"+q.Encode(), form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rpc youkuRPCResult
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return nil, fmt.Errorf("youku: decode danmaku rpc envelope: %w", err)
	}
	if len(rpc.Ret) == 0 || !strings.Contains(rpc.Ret[0], "SUCCESS") {
		if len(rpc.Ret) > 0 && strings.Contains(rpc.Ret[0], "TOKEN_EXOIRED") {
			a.mu.Lock()
			a.token = ""
			a.mu.Unlock()
		}
		return nil, nil
	}
	if rpc.Data == nil || rpc.Data.Result == "" {
		return nil, nil
	}

	var inner youkuDanmakuResult
	if err := json.Unmarshal([]byte(rpc.Data.Result), &inner); err != nil {
		return nil, nil
	}
	if inner.Data == nil {
		return nil, nil
	}
	return inner.Data.Result, nil
}

// ensureTokenCookie mirrors the original's two-step handshake: a plain
// GET to the main site seeds the "cna" device cookie, then a GET to
// acs.youku.com seeds the "_m_h5_tk" signing token.
func (a *Adapter) ensureTokenCookie(ctx context.Context) error {
	a.mu.Lock()
	haveToken := a.token != ""
	a.mu.Unlock()
	if haveToken {
		return nil
	}

	if resp, err := a.get(ctx, "https://www.youku.com/"); err == nil {
		if cna := cookieValue(resp, "cna"); cna != "" {
			a.mu.Lock()
			a.cna = cna
			a.mu.Unlock()
		}
		resp.Body.Close()
	}

	resp, err := a.get(ctx, "https://acs.youku.com/h5/mtop.com.youku.aplatform.weakget/1.0/?jsv=2.5.1&appKey="+appKey)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tk := cookieValue(resp, "_m_h5_tk")
	if tk == "" {
		return apperr.NewUpstreamNetworkError(providerName, fmt.Errorf("failed to obtain _m_h5_tk token cookie"))
	}
	a.mu.Lock()
	a.token = strings.SplitN(tk, "_", 2)[0]
	a.mu.Unlock()
	return nil
}

func cookieValue(resp *http.Response, name string) string {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return fmt.Sprintf("%x", sum)
}

// sortedMap returns m re-encoded with keys in sorted order, matching the
// original's dict(sorted(msg.items())) before computing the message hash.
func sortedMap(m map[string]any) map[string]any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, len(m))
	for _, k := range keys {
		out[k] = m[k]
	}
	return out
}

// formatYoukuComments dedupes by comment id, groups by identical text
// and collapses each group to its earliest entry with an "X{n}" suffix,
// matching the original's _format_comments.
func formatYoukuComments(comments []youkuComment) []provider.RawComment {
	if len(comments) == 0 {
		return nil
	}

	seen := make(map[int64]youkuComment, len(comments))
	order := make([]int64, 0, len(comments))
	for _, c := range comments {
		if _, ok := seen[c.ID]; !ok {
			order = append(order, c.ID)
		}
		seen[c.ID] = c
	}

	grouped := map[string][]youkuComment{}
	for _, id := range order {
		c := seen[id]
		grouped[c.Content] = append(grouped[c.Content], c)
	}

	out := make([]provider.RawComment, 0, len(grouped))
	for content, group := range grouped {
		chosen := group[0]
		if len(group) > 1 {
			sort.Slice(group, func(i, j int) bool { return group[i].PlayAt < group[j].PlayAt })
			chosen = group[0]
			content = fmt.Sprintf("%s X%d", content, len(group))
		}

		mode, color := 1, 16777215
		var prop youkuCommentProperty
		if chosen.Properties != "" && json.Unmarshal([]byte(chosen.Properties), &prop) == nil {
			color = prop.Color
			if prop.Pos == 1 {
				mode = 5
			} else if prop.Pos == 2 {
				mode = 4
			}
		}

		timeSec := float64(chosen.PlayAt) / 1000.0
		out = append(out, provider.RawComment{
			CID:      fmt.Sprintf("%d", chosen.ID),
			Text:     content,
			TimeSec:  timeSec,
			Mode:     mode,
			FontSize: 25,
			ColorRGB: color,
		})
	}
	return out
}
