// SPDX-License-Identifier: AGPL-3.0-or-later

package iqiyi

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/antchfx/xmlquery"

	"github.com/quzard/misaka-danmu-server/internal/provider"
)

type iqiyiComment struct {
	ContentID string
	Content   string
	ShowTime  int
	Color     string
}

// GetComments implements provider.Adapter. episodeID is a tvId. iqiyi
// splits danmaku into fixed 300-second segments (mat numbers starting
// at 1); this walks mat forward until a 404 or empty segment signals
// the end, rather than first probing video duration the way the
// original does, since an empty-segment stop condition reaches the
// same result without a second API round-trip.
func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress provider.ProgressFunc) ([]provider.RawComment, error) {
	if len(episodeID) < 4 {
		return nil, nil
	}
	s1 := episodeID[len(episodeID)-4 : len(episodeID)-2]
	s2 := episodeID[len(episodeID)-2:]

	var all []iqiyiComment
	for mat := 1; mat <= 200; mat++ {
		reqURL := fmt.Sprintf("https://cmts.iqiyi.com/bullet/%s/%s/%s_300_%d.z", s1, s2, episodeID, mat)
		resp, err := a.get(ctx, reqURL)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			break
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			break
		}

		comments, err := decodeDanmakuSegment(body)
		if err != nil || len(comments) == 0 {
			break
		}
		all = append(all, comments...)

		if progress != nil {
			progress(min(int(float64(mat)/100.0*100), 99))
		}
	}

	out := formatIqiyiComments(all)
	if progress != nil {
		progress(100)
	}
	return out, nil
}

// decodeDanmakuSegment inflates a ".z" segment and parses its
// <bulletInfo> entries with antchfx/xmlquery.
func decodeDanmakuSegment(compressed []byte) ([]iqiyiComment, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("iqiyi: zlib decompress: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil || len(data) < 10 {
		return nil, fmt.Errorf("iqiyi: read decompressed segment: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("iqiyi: parse danmaku xml: %w", err)
	}

	var out []iqiyiComment
	for _, node := range xmlquery.Find(doc, "//bulletInfo") {
		content := xmlquery.FindOne(node, "content")
		showTime := xmlquery.FindOne(node, "showTime")
		if content == nil || showTime == nil {
			continue
		}
		t, err := strconv.Atoi(showTime.InnerText())
		if err != nil {
			continue
		}
		color := "ffffff"
		if c := xmlquery.FindOne(node, "color"); c != nil && c.InnerText() != "" {
			color = c.InnerText()
		}
		cid := "0"
		if c := xmlquery.FindOne(node, "contentId"); c != nil && c.InnerText() != "" {
			cid = c.InnerText()
		}
		out = append(out, iqiyiComment{ContentID: cid, Content: content.InnerText(), ShowTime: t, Color: color})
	}
	return out, nil
}

func formatIqiyiComments(comments []iqiyiComment) []provider.RawComment {
	if len(comments) == 0 {
		return nil
	}

	unique := map[string]iqiyiComment{}
	for _, c := range comments {
		if _, exists := unique[c.ContentID]; !exists {
			unique[c.ContentID] = c
		}
	}

	grouped := map[string][]iqiyiComment{}
	for _, c := range unique {
		grouped[c.Content] = append(grouped[c.Content], c)
	}

	out := make([]provider.RawComment, 0, len(grouped))
	for content, group := range grouped {
		chosen := group[0]
		if len(group) > 1 {
			sort.Slice(group, func(i, j int) bool { return group[i].ShowTime < group[j].ShowTime })
			chosen = group[0]
			chosen.Content = fmt.Sprintf("%s X%d", content, len(group))
		}
		color := 0xFFFFFF
		if v, err := strconv.ParseInt(chosen.Color, 16, 64); err == nil {
			color = int(v)
		}
		out = append(out, provider.RawComment{
			CID:      chosen.ContentID,
			Text:     chosen.Content,
			TimeSec:  float64(chosen.ShowTime),
			Mode:     1,
			FontSize: 25,
			ColorRGB: color,
		})
	}
	return out
}
