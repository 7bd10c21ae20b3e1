// SPDX-License-Identifier: AGPL-3.0-or-later

package hanjutv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/provider"
)

const hanjutvMaxAxis = 100000000

type hanjutvDanmu struct {
	Did int64   `json:"did"`
	T   float64 `json:"t"`
	Tp  int     `json:"tp"`
	Sc  int     `json:"sc"`
	Con string  `json:"con"`
}

type hanjutvDanmuData struct {
	List     []hanjutvDanmu `json:"list"`
	NextAxis int64          `json:"nextAxis"`
}

type hanjutvDanmuResult struct {
	Data *hanjutvDanmuData `json:"data"`
}

// fetchDanmaku walks the full danmu stream for one episode. The danmu host
// paginates by an "axis" cursor rather than an offset/limit pair: each
// response reports the nextAxis to resume from, and the loop continues
// until that cursor reaches the upstream's fixed max axis.
func (a *Adapter) fetchDanmaku(ctx context.Context, pid string, progress provider.ProgressFunc) ([]hanjutvDanmu, error) {
	var all []hanjutvDanmu
	fromAxis := int64(0)
	for fromAxis < hanjutvMaxAxis {
		q := url.Values{
			"fromAxis": {fmt.Sprintf("%d", fromAxis)},
			"pid":      {pid},
			"toAxis":   {fmt.Sprintf("%d", hanjutvMaxAxis)},
		}
		resp, err := a.get(ctx, danmuURL+"/api/danmu/playItem/list?"+q.Encode())
		if err != nil {
			return nil, err
		}

		var result hanjutvDanmuResult
		decodeErr := json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, apperr.NewUpstreamSchemaError(providerName, decodeErr)
		}
		if result.Data == nil {
			break
		}

		all = append(all, result.Data.List...)
		if progress != nil && hanjutvMaxAxis > 0 {
			pct := int(float64(result.Data.NextAxis) / float64(hanjutvMaxAxis) * 90)
			if pct > 90 {
				pct = 90
			}
			progress(pct)
		}

		if result.Data.NextAxis <= fromAxis || result.Data.NextAxis >= hanjutvMaxAxis {
			break
		}
		fromAxis = result.Data.NextAxis
	}
	return all, nil
}

// formatDanmaku maps HanjuTV's native fields directly to the shared
// comment shape: "tp" already uses the bilibili-style mode numbering
// (1=scroll, 4=bottom, 5=top), so no remapping table is needed here unlike
// most other adapters.
func formatDanmaku(raw []hanjutvDanmu) []provider.RawComment {
	out := make([]provider.RawComment, 0, len(raw))
	for _, d := range raw {
		mode := d.Tp
		if mode != 1 && mode != 4 && mode != 5 {
			mode = 1
		}
		out = append(out, provider.RawComment{
			CID:      fmt.Sprintf("%d", d.Did),
			Text:     d.Con,
			TimeSec:  d.T / 1000,
			Mode:     mode,
			FontSize: 25,
			ColorRGB: d.Sc,
		})
	}
	return out
}

// GetComments implements provider.Adapter. episodeID is the bare "pid".
func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress provider.ProgressFunc) ([]provider.RawComment, error) {
	if progress != nil {
		progress(5)
	}
	raw, err := a.fetchDanmaku(ctx, episodeID, progress)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(100)
	}
	return formatDanmaku(raw), nil
}
