// SPDX-License-Identifier: AGPL-3.0-or-later

package mgtv

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/quzard/misaka-danmu-server/internal/provider"
)

type mgtvCtlBarrageData struct {
	CDNHost    string `json:"cdn_host"`
	CDNVersion string `json:"cdn_version"`
}

type mgtvCtlBarrageResult struct {
	Data *mgtvCtlBarrageData `json:"data"`
}

type mgtvVideoInfoInfo struct {
	TotalMinutes int `json:"total_minutes"`
}

type mgtvVideoInfoData struct {
	Info *mgtvVideoInfoInfo `json:"info"`
}

type mgtvVideoInfoResult struct {
	Data *mgtvVideoInfoData `json:"data"`
}

type mgtvColorRGB struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

type mgtvCommentColor struct {
	ColorLeft *mgtvColorRGB `json:"color_left"`
}

type mgtvComment struct {
	ID      int64             `json:"id"`
	Content string            `json:"content"`
	Type    int               `json:"type"`
	Time    int64             `json:"time"`
	Color   *mgtvCommentColor `json:"color"`
}

type mgtvCommentSegmentData struct {
	Items []mgtvComment `json:"items"`
	Next  int64         `json:"next"`
}

type mgtvCommentSegmentResult struct {
	Data *mgtvCommentSegmentData `json:"data"`
}

// GetComments implements provider.Adapter. episodeID is "cid,vid".
// Strategy 1 (getctlbarrage) resolves a CDN host/version and walks one
// JSON segment per minute of runtime; strategy 2 (opbarrage) is the
// fallback, cursor-paginated by a server-returned "next" time offset.
func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress provider.ProgressFunc) ([]provider.RawComment, error) {
	parts := strings.SplitN(episodeID, ",", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("mgtv: invalid episode id %q", episodeID)
	}
	cid, vid := parts[0], parts[1]

	if comments, ok := a.fetchViaCtlBarrage(ctx, cid, vid, progress); ok {
		if progress != nil {
			progress(100)
		}
		return formatMgtvComments(comments), nil
	}

	comments, err := a.fetchViaOpBarrage(ctx, cid, vid, progress)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(100)
	}
	return formatMgtvComments(comments), nil
}

func (a *Adapter) fetchViaCtlBarrage(ctx context.Context, cid, vid string, progress provider.ProgressFunc) ([]mgtvComment, bool) {
	ctlURL := fmt.Sprintf(
		"https://galaxy.bz.mgtv.com/getctlbarrage?version=8.1.39&abroad=0&uuid=&os=10.15.7&platform=0&mac=&vid=%s&pid=&cid=%s&ticket=",
		vid, cid)
	resp, err := a.get(ctx, ctlURL)
	if err != nil {
		return nil, false
	}
	var ctl mgtvCtlBarrageResult
	decErr := json.NewDecoder(resp.Body).Decode(&ctl)
	resp.Body.Close()
	if decErr != nil || ctl.Data == nil || ctl.Data.CDNVersion == "" {
		return nil, false
	}

	infoURL := fmt.Sprintf(
		"https://pcweb.api.mgtv.com/video/info?allowedRC=1&cid=%s&vid=%s&change=3&datatype=1&type=1&_support=10000000",
		cid, vid)
	infoResp, err := a.get(ctx, infoURL)
	if err != nil {
		return nil, false
	}
	var info mgtvVideoInfoResult
	decErr = json.NewDecoder(infoResp.Body).Decode(&info)
	infoResp.Body.Close()
	if decErr != nil || info.Data == nil || info.Data.Info == nil {
		return nil, false
	}

	totalMinutes := info.Data.Info.TotalMinutes
	if totalMinutes <= 0 {
		return nil, false
	}

	var all []mgtvComment
	for minute := 0; minute < totalMinutes; minute++ {
		if progress != nil {
			progress((minute + 1) * 100 / totalMinutes)
		}
		segURL := fmt.Sprintf("https://%s/%s/%d.json", ctl.Data.CDNHost, ctl.Data.CDNVersion, minute)
		segResp, err := a.get(ctx, segURL)
		if err != nil {
			continue
		}
		var seg mgtvCommentSegmentResult
		decErr := json.NewDecoder(segResp.Body).Decode(&seg)
		segResp.Body.Close()
		if decErr != nil || seg.Data == nil {
			continue
		}
		all = append(all, seg.Data.Items...)
	}
	return all, true
}

func (a *Adapter) fetchViaOpBarrage(ctx context.Context, cid, vid string, progress provider.ProgressFunc) ([]mgtvComment, error) {
	var all []mgtvComment
	timeOffset := int64(0)
	const assumedMaxSeconds = 200 * 60

	for {
		if progress != nil {
			pct := int(timeOffset * 100 / assumedMaxSeconds)
			if pct > 95 {
				pct = 95
			}
			progress(pct)
		}

		url := fmt.Sprintf(
			"https://galaxy.bz.mgtv.com/cdn/opbarrage?vid=%s&pid=&cid=%s&ticket=&time=%s&allowedRC=1",
			vid, cid, strconv.FormatInt(timeOffset, 10))
		resp, err := a.get(ctx, url)
		if err != nil {
			return nil, err
		}
		var seg mgtvCommentSegmentResult
		decErr := json.NewDecoder(resp.Body).Decode(&seg)
		resp.Body.Close()
		if decErr != nil {
			return nil, fmt.Errorf("mgtv: decode opbarrage segment: %w", decErr)
		}
		if seg.Data == nil || len(seg.Data.Items) == 0 {
			break
		}
		all = append(all, seg.Data.Items...)
		if seg.Data.Next == 0 {
			break
		}
		timeOffset = seg.Data.Next
	}
	return all, nil
}

// formatMgtvComments dedupes by comment id, matching the original's
// {c.id: c for c in comments}.values() pass.
func formatMgtvComments(comments []mgtvComment) []provider.RawComment {
	seen := make(map[int64]mgtvComment, len(comments))
	order := make([]int64, 0, len(comments))
	for _, c := range comments {
		if _, ok := seen[c.ID]; !ok {
			order = append(order, c.ID)
		}
		seen[c.ID] = c
	}

	out := make([]provider.RawComment, 0, len(order))
	for _, id := range order {
		c := seen[id]
		mode := 1
		switch c.Type {
		case 1:
			mode = 5
		case 2:
			mode = 4
		}

		color := 16777215
		if c.Color != nil && c.Color.ColorLeft != nil {
			rgb := c.Color.ColorLeft
			color = (rgb.R << 16) | (rgb.G << 8) | rgb.B
		}

		out = append(out, provider.RawComment{
			CID:      fmt.Sprintf("%d", c.ID),
			Text:     c.Content,
			TimeSec:  float64(c.Time) / 1000.0,
			Mode:     mode,
			FontSize: 25,
			ColorRGB: color,
		})
	}
	return out
}
