// SPDX-License-Identifier: AGPL-3.0-or-later

package sohu

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/quzard/misaka-danmu-server/internal/provider"
)

type sohuCommentColor struct {
	C string `json:"c"`
}

type sohuComment struct {
	V       float64           `json:"v"`
	Created json.Number       `json:"created"`
	UID     string            `json:"uid"`
	ID      string            `json:"i"`
	Content string            `json:"c"`
	T       *sohuCommentColor `json:"t"`
}

type sohuSegmentInfo struct {
	Comments []sohuComment `json:"comments"`
}

type sohuSegmentResponse struct {
	Info sohuSegmentInfo `json:"info"`
}

// GetComments implements provider.Adapter. episodeID is "vid:aid" (falling
// back to a bare vid with aid "0" for older callers). Comments are walked
// in fixed 60-second windows up to a 2-hour cap; the walk stops early once
// ten consecutive empty minutes are seen past the 10-minute mark, mirroring
// the original's single-empty-segment-after-600s cutoff.
func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress provider.ProgressFunc) ([]provider.RawComment, error) {
	vid, aid := episodeID, "0"
	if idx := strings.Index(episodeID, ":"); idx >= 0 {
		vid, aid = episodeID[:idx], episodeID[idx+1:]
	}

	if progress != nil {
		progress(10)
	}

	const maxTime = 7200
	const segmentDuration = 60
	totalSegments := maxTime / segmentDuration

	var all []sohuComment
	for i, start := 0, 0; start < maxTime; i, start = i+1, start+segmentDuration {
		end := start + segmentDuration
		segment, err := a.fetchSegment(ctx, vid, aid, start, end)
		if err != nil {
			return nil, err
		}
		if len(segment) > 0 {
			all = append(all, segment...)
		} else if start > 600 {
			break
		}
		if progress != nil {
			progress(10 + (i+1)*70/totalSegments)
		}
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
	out := formatSohuComments(all)
	if progress != nil {
		progress(100)
	}
	return out, nil
}

func (a *Adapter) fetchSegment(ctx context.Context, vid, aid string, start, end int) ([]sohuComment, error) {
	url := fmt.Sprintf(
		"https://api.danmu.tv.sohu.com/dmh5/dmListAll?act=dmlist_v2&vid=%s&aid=%s&pct=2&time_begin=%d&time_end=%d&dct=1&request_from=h5_js",
		vid, aid, start, end)
	resp, err := a.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed sohuSegmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, nil
	}
	return parsed.Info.Comments, nil
}

func formatSohuComments(comments []sohuComment) []provider.RawComment {
	out := make([]provider.RawComment, 0, len(comments))
	for _, c := range comments {
		out = append(out, provider.RawComment{
			CID:      c.ID,
			Text:     c.Content,
			TimeSec:  c.V,
			Mode:     1,
			FontSize: 25,
			ColorRGB: parseSohuColor(c),
		})
	}
	return out
}

func parseSohuColor(c sohuComment) int {
	if c.T == nil || c.T.C == "" {
		return 16777215
	}
	s := c.T.C
	if strings.HasPrefix(s, "#") {
		if n, err := strconv.ParseInt(s[1:], 16, 64); err == nil {
			return int(n)
		}
		return 16777215
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if n, err := strconv.ParseInt(s, 16, 64); err == nil {
		return int(n)
	}
	return 16777215
}
