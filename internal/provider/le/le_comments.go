// SPDX-License-Identifier: AGPL-3.0-or-later

package le

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quzard/misaka-danmu-server/internal/provider"
)

var (
	leDurationPattern = regexp.MustCompile(`duration['"]?\s*:\s*['"]?(\d+):(\d+)['"]?`)
	leJSONPPattern    = regexp.MustCompile(`vjs_\d+\((.*)\)`)
)

type leDanmuItem struct {
	ID       string `json:"_id"`
	Txt      string `json:"txt"`
	Start    float64 `json:"start"`
	Position int    `json:"position"`
	Color    string `json:"color"`
}

type leDanmuData struct {
	List []leDanmuItem `json:"list"`
}

type leDanmuResponse struct {
	Code int          `json:"code"`
	Data *leDanmuData `json:"data"`
}

// GetComments implements provider.Adapter. episodeID is a bare video_id.
// The video's runtime is first estimated from an embedded page duration
// string (falling back to 40 minutes), then split into 5-minute windows
// fetched concurrently against the JSONP danmu/list endpoint.
func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress provider.ProgressFunc) ([]provider.RawComment, error) {
	if progress != nil {
		progress(10)
	}
	duration := a.videoDuration(ctx, episodeID)

	type window struct{ start, end int }
	var windows []window
	segCount := int(math.Ceil(float64(duration) / 300))
	for i := 0; i < segCount; i++ {
		start := i * 300
		end := (i + 1) * 300
		if end > duration {
			end = duration
		}
		windows = append(windows, window{start, end})
	}

	if progress != nil {
		progress(20)
	}

	results := make([][]leDanmuItem, len(windows))
	var mu sync.Mutex
	done := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, w := range windows {
		i, w := i, w
		g.Go(func() error {
			segment := a.fetchLeSegment(gctx, episodeID, w.start, w.end)
			results[i] = segment
			mu.Lock()
			done++
			if progress != nil {
				progress(20 + done*60/len(windows))
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var all []leDanmuItem
	for _, r := range results {
		all = append(all, r...)
	}
	if len(all) == 0 {
		if progress != nil {
			progress(100)
		}
		return nil, nil
	}

	if progress != nil {
		progress(85)
	}

	seen := make(map[string]leDanmuItem, len(all))
	order := make([]string, 0, len(all))
	for _, d := range all {
		if d.ID == "" {
			continue
		}
		if _, ok := seen[d.ID]; !ok {
			order = append(order, d.ID)
			seen[d.ID] = d
		}
	}
	unique := make([]leDanmuItem, 0, len(order))
	for _, id := range order {
		unique = append(unique, seen[id])
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].Start < unique[j].Start })

	out := make([]provider.RawComment, 0, len(unique))
	for _, d := range unique {
		mode, ok := positionMap[d.Position]
		if !ok {
			mode = 1
		}
		color := 16777215
		if d.Color != "" {
			if n, err := strconv.ParseInt(d.Color, 16, 64); err == nil {
				color = int(n)
			}
		}
		out = append(out, provider.RawComment{
			CID:      d.ID,
			Text:     d.Txt,
			TimeSec:  d.Start,
			Mode:     mode,
			FontSize: 25,
			ColorRGB: color,
		})
	}

	if progress != nil {
		progress(100)
	}
	return out, nil
}

func (a *Adapter) videoDuration(ctx context.Context, videoID string) int {
	resp, err := a.get(ctx, "https://www.le.com/ptv/vplay/"+videoID+".html")
	if err != nil {
		return 2400
	}
	body, err := readAll(resp)
	if err != nil {
		return 2400
	}
	m := leDurationPattern.FindStringSubmatch(body)
	if m == nil {
		return 2400
	}
	minutes, err1 := strconv.Atoi(m[1])
	seconds, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return 2400
	}
	return minutes*60 + seconds
}

func (a *Adapter) fetchLeSegment(ctx context.Context, videoID string, start, end int) []leDanmuItem {
	callback := fmt.Sprintf("vjs_%d", time.Now().UnixMilli())
	url := fmt.Sprintf(
		"https://hd-my.le.com/danmu/list?vid=%s&start=%d&end=%d&callback=%s",
		videoID, start, end, callback)

	for attempt := 0; attempt < 3; attempt++ {
		resp, err := a.get(ctx, url)
		if err != nil {
			continue
		}
		body, err := readAll(resp)
		if err != nil {
			continue
		}
		m := leJSONPPattern.FindStringSubmatch(body)
		if m == nil {
			return nil
		}
		var parsed leDanmuResponse
		if err := json.Unmarshal([]byte(m[1]), &parsed); err != nil {
			return nil
		}
		if parsed.Code == 200 && parsed.Data != nil {
			return parsed.Data.List
		}
		return nil
	}
	return nil
}
