// SPDX-License-Identifier: AGPL-3.0-or-later

package gamer

import (
	"encoding/json"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/quzard/misaka-danmu-server/internal/provider"
)

type gamerComment struct {
	SN       string  `json:"sn"`
	Text     string  `json:"text"`
	Time     float64 `json:"time"`
	Position int     `json:"position"`
	Color    string  `json:"color"`
}

// GetComments implements provider.Adapter. episodeID is the bare "sn".
// The danmu endpoint returns every comment for an episode in one POST;
// there is no pagination. Comments are deduped by "sn" (the danmaku's own
// serial, not the commenting user's id — reusing userid collides whenever
// one viewer posts more than once) then grouped by identical text and
// collapsed to the earliest timestamp with an "X{n}" suffix, exactly as
// internal/comment's normalizer also does downstream — redundant but
// harmless (see DESIGN.md idempotence note).
func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress provider.ProgressFunc) ([]provider.RawComment, error) {
	if progress != nil {
		progress(10)
	}

	form := url.Values{"sn": {episodeID}}
	resp, err := a.postForm(ctx, "https://ani.gamer.com.tw/ajax/danmuGet.php", form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw []gamerComment
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("gamer: decode danmu response: %w", err)
	}
	if progress != nil {
		progress(50)
	}

	seen := make(map[string]gamerComment, len(raw))
	order := make([]string, 0, len(raw))
	for _, c := range raw {
		if c.SN == "" {
			continue
		}
		if _, ok := seen[c.SN]; !ok {
			order = append(order, c.SN)
		}
		seen[c.SN] = c
	}

	grouped := map[string][]gamerComment{}
	for _, sn := range order {
		c := seen[sn]
		grouped[c.Text] = append(grouped[c.Text], c)
	}

	out := make([]provider.RawComment, 0, len(grouped))
	for text, group := range grouped {
		chosen := group[0]
		if len(group) > 1 {
			sort.Slice(group, func(i, j int) bool { return group[i].Time < group[j].Time })
			chosen = group[0]
			text = fmt.Sprintf("%s X%d", text, len(group))
		}

		mode := 1
		switch chosen.Position {
		case 1:
			mode = 5
		case 2:
			mode = 4
		}

		color := 16777215
		hex := strings.TrimPrefix(chosen.Color, "#")
		if hex != "" {
			if n, err := strconv.ParseInt(hex, 16, 64); err == nil {
				color = int(n)
			}
		}

		out = append(out, provider.RawComment{
			CID:      chosen.SN,
			Text:     text,
			TimeSec:  chosen.Time / 10.0,
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
