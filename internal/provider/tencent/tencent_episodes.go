// SPDX-License-Identifier: AGPL-3.0-or-later

package tencent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/provider/filter"
)

// tencentItemParams is one item_data's playable-unit payload: a vid
// plus the title/trailer flag needed to filter and render it.
type tencentItemParams struct {
	Vid        string `json:"vid"`
	Title      string `json:"title"`
	IsTrailer  string `json:"is_trailer"`
	UnionTitle string `json:"union_title"`
}

type tencentItemData struct {
	ItemParams *tencentItemParams `json:"item_params"`
}

type tencentItemDataLists struct {
	ItemDatas []tencentItemData `json:"item_datas"`
}

type tencentModuleData struct {
	ModuleParams *struct {
		Tabs string `json:"tabs"`
	} `json:"module_params"`
	ItemDataLists *tencentItemDataLists `json:"item_data_lists"`
}

type tencentModuleListData struct {
	ModuleDatas []tencentModuleData `json:"module_datas"`
}

type tencentPageData struct {
	ModuleListDatas []tencentModuleListData `json:"module_list_datas"`
}

type tencentPageResult struct {
	Ret  int              `json:"ret"`
	Data *tencentPageData `json:"data"`
}

// GetEpisodes implements provider.Adapter. tencent exposes three
// overlapping listing strategies (cached chapter tabs, a newer
// paginated-card API, and a generic page-number fallback); this port
// uses only the single vsite_episode_list page_params payload the
// other two ultimately page through, walking page_num forward until
// an empty page is returned (see DESIGN.md for the simplification).
func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex *int, dbMediaType string) ([]provider.EpisodeInfo, error) {
	var raw []provider.RawEpisode
	pageNum := 0
	for {
		page, err := a.fetchEpisodePage(ctx, mediaID, pageNum)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		raw = append(raw, page...)
		pageNum++
		if pageNum > 200 {
			break
		}
	}

	episodes := filter.FilterAndRenumber(raw, a.filterConfig(ctx))
	if targetIndex == nil {
		return episodes, nil
	}
	for _, ep := range episodes {
		if ep.EpisodeIndex == *targetIndex {
			return []provider.EpisodeInfo{ep}, nil
		}
	}
	return nil, nil
}

func (a *Adapter) fetchEpisodePage(ctx context.Context, cid string, pageNum int) ([]provider.RawEpisode, error) {
	pageContext := fmt.Sprintf("cid=%s&req_from=web_vsite", cid)
	payload := map[string]any{
		"page_params": map[string]any{
			"req_from":     "web_vsite",
			"page_id":      "vsite_episode_list",
			"page_type":    "detail_operation",
			"id_type":      "1",
			"cid":          cid,
			"page_context": pageContext,
			"page_num":     fmt.Sprintf("%d", pageNum),
			"page_size":    "30",
		},
	}
	resp, err := a.postJSON(ctx, episodesAPIURL, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed tencentPageResult
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("tencent: decode episode page: %w", err)
	}
	if parsed.Ret != 0 || parsed.Data == nil {
		return nil, nil
	}

	var out []provider.RawEpisode
	for _, mld := range parsed.Data.ModuleListDatas {
		for _, md := range mld.ModuleDatas {
			if md.ItemDataLists == nil {
				continue
			}
			for _, item := range md.ItemDataLists.ItemDatas {
				if item.ItemParams == nil || item.ItemParams.Vid == "" {
					continue
				}
				if item.ItemParams.IsTrailer == "1" {
					continue
				}
				title := item.ItemParams.UnionTitle
				if title == "" {
					title = item.ItemParams.Title
				}
				title = strings.TrimSpace(title)
				out = append(out, provider.RawEpisode{
					ProviderEpisodeID: item.ItemParams.Vid,
					Title:             title,
					URL:               "https://v.qq.com/x/cover/" + cid + "/" + item.ItemParams.Vid + ".html",
				})
			}
		}
	}
	return out, nil
}
