// SPDX-License-Identifier: AGPL-3.0-or-later

package tencent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/quzard/misaka-danmu-server/internal/provider"
)

// tencentContentStyle carries the position/color hints a small subset
// of barrage entries use for top/bottom placement and custom coloring.
type tencentContentStyle struct {
	Color          *string  `json:"color"`
	Position       *int     `json:"position"`
	GradientColors []string `json:"gradient_colors"`
}

// tencentComment is one raw barrage_list entry. content_style arrives
// as either an object, an empty string, or absent, so it's decoded via
// json.RawMessage and parsed leniently afterward.
type tencentComment struct {
	ID           string          `json:"id"`
	TimeOffset   string          `json:"time_offset"`
	Content      string          `json:"content"`
	ContentStyle json.RawMessage `json:"content_style"`
}

func (c tencentComment) style() *tencentContentStyle {
	if len(c.ContentStyle) == 0 {
		return nil
	}
	trimmed := strings.TrimSpace(string(c.ContentStyle))
	if trimmed == `""` || trimmed == "null" || trimmed == "" {
		return nil
	}
	var s tencentContentStyle
	if err := json.Unmarshal(c.ContentStyle, &s); err != nil {
		return nil
	}
	return &s
}

// GetComments implements provider.Adapter. episodeID is a vid. tencent
// splits danmaku into time-ordered segments discovered via a barrage
// index, fetched in order, then deduplicated and grouped by identical
// content the way the upstream source does.
func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress provider.ProgressFunc) ([]provider.RawComment, error) {
	comments, err := a.fetchAllSegments(ctx, episodeID, progress)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		if progress != nil {
			progress(100)
		}
		return nil, nil
	}

	unique := map[string]tencentComment{}
	for _, c := range comments {
		unique[c.ID] = c
	}

	grouped := map[string][]tencentComment{}
	for _, c := range unique {
		grouped[c.Content] = append(grouped[c.Content], c)
	}

	out := make([]provider.RawComment, 0, len(grouped))
	for content, group := range grouped {
		chosen := group[0]
		if len(group) > 1 {
			sort.Slice(group, func(i, j int) bool {
				oi, _ := strconv.Atoi(group[i].TimeOffset)
				oj, _ := strconv.Atoi(group[j].TimeOffset)
				return oi < oj
			})
			chosen = group[0]
			chosen.Content = fmt.Sprintf("%s X%d", content, len(group))
		}
		out = append(out, formatTencentComment(chosen))
	}
	if progress != nil {
		progress(100)
	}
	return out, nil
}

func formatTencentComment(c tencentComment) provider.RawComment {
	mode := 1
	color := 0xFFFFFF

	if style := c.style(); style != nil {
		if style.Position != nil {
			switch *style.Position {
			case 2:
				mode = 5
			case 3:
				mode = 4
			}
		}
		hex := ""
		if len(style.GradientColors) > 0 {
			hex = style.GradientColors[0]
		} else if style.Color != nil {
			hex = *style.Color
		}
		if hex != "" {
			if v, err := strconv.ParseInt(strings.TrimPrefix(hex, "#"), 16, 64); err == nil {
				color = int(v)
			}
		}
	}

	offsetMs, _ := strconv.Atoi(c.TimeOffset)
	return provider.RawComment{
		CID:      c.ID,
		Text:     c.Content,
		TimeSec:  float64(offsetMs) / 1000.0,
		Mode:     mode,
		FontSize: 25,
		ColorRGB: color,
	}
}

type tencentBarrageIndex struct {
	SegmentIndex map[string]struct {
		SegmentName string `json:"segment_name"`
	} `json:"segment_index"`
}

type tencentBarrageSegment struct {
	BarrageList []tencentComment `json:"barrage_list"`
}

// fetchAllSegments fetches the barrage index for vid, then every
// segment it names in timestamp order.
func (a *Adapter) fetchAllSegments(ctx context.Context, vid string, progress provider.ProgressFunc) ([]tencentComment, error) {
	resp, err := a.get(ctx, "https://dm.video.qq.com/barrage/base/"+vid)
	if err != nil {
		return nil, err
	}
	var index tencentBarrageIndex
	decodeErr := json.NewDecoder(resp.Body).Decode(&index)
	resp.Body.Close()
	if decodeErr != nil {
		return nil, fmt.Errorf("tencent: decode barrage index: %w", decodeErr)
	}
	if len(index.SegmentIndex) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(index.SegmentIndex))
	for k := range index.SegmentIndex {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ki, _ := strconv.Atoi(keys[i])
		kj, _ := strconv.Atoi(keys[j])
		return ki < kj
	})

	var all []tencentComment
	total := len(keys)
	for i, key := range keys {
		segmentName := index.SegmentIndex[key].SegmentName
		if segmentName == "" {
			continue
		}
		segResp, err := a.get(ctx, "https://dm.video.qq.com/barrage/segment/"+vid+"/"+segmentName)
		if err != nil {
			continue
		}
		var seg tencentBarrageSegment
		err = json.NewDecoder(segResp.Body).Decode(&seg)
		segResp.Body.Close()
		if err != nil {
			continue
		}
		all = append(all, seg.BarrageList...)

		if progress != nil {
			progress(5 + int(float64(i+1)/float64(total)*90))
		}
	}
	return all, nil
}
