// SPDX-License-Identifier: AGPL-3.0-or-later

package tencent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/quzard/misaka-danmu-server/internal/provider"
)

// tencentSearchRequest mirrors the desktop MbSearchHttp request body;
// the mobile and multiterminal variants the upstream source also
// supports are deliberately not ported here (see DESIGN.md) since the
// desktop API alone covers the same result set for this deployment.
type tencentSearchRequest struct {
	Query        string `json:"query"`
	Version      string `json:"version"`
	FilterValue  string `json:"filterValue"`
	Retry        int    `json:"retry"`
	Pagenum      int    `json:"pagenum"`
	Pagesize     int    `json:"pagesize"`
	QueryFrom    int    `json:"queryFrom"`
	IsNeedQc     bool   `json:"isneedQc"`
	AdReqInfo    string `json:"adRequestInfo"`
	SdkReqInfo   string `json:"sdkRequestInfo"`
	SceneID      int    `json:"sceneId"`
	Platform     string `json:"platform"`
}

func newTencentSearchRequest(keyword string) tencentSearchRequest {
	return tencentSearchRequest{
		Query:       keyword,
		FilterValue: "firstTabid=150",
		Pagesize:    20,
		QueryFrom:   4,
		IsNeedQc:    true,
		SceneID:     21,
		Platform:    "23",
	}
}

type tencentVideoInfo struct {
	Title      string `json:"title"`
	Year       *int   `json:"year"`
	TypeName   string `json:"typeName"`
	ImgURL     string `json:"imgUrl"`
	SubjectDoc *struct {
		VideoNum int `json:"videoNum"`
	} `json:"subjectDoc"`
	PlaySites    []map[string]any `json:"playSites"`
	EpisodeSites []map[string]any `json:"episodeSites"`
	SubTitle     string           `json:"subTitle"`
	PlayFlag     *int             `json:"playFlag"`
}

type tencentSearchResponse struct {
	Data struct {
		NormalList *struct {
			ItemList []struct {
				VideoInfo *tencentVideoInfo `json:"videoInfo"`
				Doc       struct {
					ID string `json:"id"`
				} `json:"doc"`
			} `json:"itemList"`
		} `json:"normalList"`
	} `json:"data"`
}

var tencentTypeMapping = map[string]string{
	"电视剧": "tv_series", "动漫": "tv_series",
	"电影": "movie",
	"纪录片": "tv_series",
	"综艺": "tv_series", "综艺节目": "tv_series",
}

var nonFormalMovieKeywords = []string{
	"花絮", "彩蛋", "幕后", "独家", "解说", "特辑", "探班", "拍摄", "制作", "导演", "记录", "回顾", "盘点", "混剪", "解析", "抢先",
}

var emTagPattern = regexp.MustCompile(`</?em>`)

// Search implements provider.Adapter via tencent's desktop search API.
func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]provider.SearchInfo, error) {
	payload := newTencentSearchRequest(keyword)
	resp, err := a.postJSON(ctx, "https://pbaccess.video.qq.com/trpc.videosearch.mobile_search.HttpMobileRecall/MbSearchHttp", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed tencentSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("tencent: decode search response: %w", err)
	}
	if parsed.Data.NormalList == nil {
		return nil, nil
	}

	out := make([]provider.SearchInfo, 0, len(parsed.Data.NormalList.ItemList))
	for _, item := range parsed.Data.NormalList.ItemList {
		info := filterSearchItem(item.Doc.ID, item.VideoInfo)
		if info == nil {
			continue
		}
		if hint != nil {
			info.CurrentEpisodeIndex = hint.Episode
			if hint.Season != nil {
				info.Season = *hint.Season
			}
		}
		out = append(out, *info)
	}
	return out, nil
}

func filterSearchItem(mediaID string, v *tencentVideoInfo) *provider.SearchInfo {
	if v == nil || mediaID == "" || v.Year == nil {
		return nil
	}
	if v.SubTitle == "全网搜" || (v.PlayFlag != nil && *v.PlayFlag == 2) {
		return nil
	}

	title := emTagPattern.ReplaceAllString(v.Title, "")
	if title == "" {
		return nil
	}
	if strings.Contains(v.TypeName, "短剧") {
		return nil
	}

	mediaType, ok := tencentTypeMapping[v.TypeName]
	if !ok {
		return nil
	}

	allSites := append(append([]map[string]any{}, v.PlaySites...), v.EpisodeSites...)
	if len(allSites) > 0 {
		foundQQ := false
		for _, s := range allSites {
			if en, _ := s["enName"].(string); en == "qq" {
				foundQQ = true
				break
			}
		}
		if !foundQQ {
			return nil
		}
	}

	if v.TypeName == "电影" {
		for _, kw := range nonFormalMovieKeywords {
			if strings.Contains(title, kw) {
				return nil
			}
		}
	}

	episodeCount := 0
	if mediaType == "movie" {
		episodeCount = 1
	} else if v.SubjectDoc != nil {
		episodeCount = v.SubjectDoc.VideoNum
	}

	return &provider.SearchInfo{
		ProviderName: providerName,
		MediaID:      mediaID,
		Title:        title,
		Type:         mediaType,
		Year:         v.Year,
		ImageURL:     v.ImgURL,
		EpisodeCount: episodeCount,
	}
}

var (
	coverVidPattern  = regexp.MustCompile(`/cover/([^/]+)/([^/.]+)\.html`)
	pageVidPattern   = regexp.MustCompile(`/(?:x/)?page/([^/.]+)\.html`)
	coverOnlyPattern = regexp.MustCompile(`/cover/([^/.]+)\.html`)
)

// GetInfoFromURL implements provider.Adapter, extracting the cover ID
// (tencent's media_id) from any of the three URL shapes the site uses.
func (a *Adapter) GetInfoFromURL(ctx context.Context, rawURL string) (*provider.SearchInfo, error) {
	cid, _, ok := parseCidVidFromURL(rawURL)
	if !ok {
		return nil, nil
	}
	resp, err := a.get(ctx, "https://v.qq.com/x/cover/"+cid+".html")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return &provider.SearchInfo{
		ProviderName: providerName,
		MediaID:      cid,
		Title:        cid,
		Type:         "tv_series",
	}, nil
}

// parseCidVidFromURL extracts (cid, vid) from a tencent URL, falling
// back through the three shapes the original scraper handles: a
// cid+vid cover page, a bare page/vid URL, or a cid-only cover page.
func parseCidVidFromURL(rawURL string) (cid, vid string, ok bool) {
	if m := coverVidPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1], m[2], true
	}
	if m := pageVidPattern.FindStringSubmatch(rawURL); m != nil {
		return "", m[1], true
	}
	if m := coverOnlyPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1], "", true
	}
	return "", "", false
}

// GetIDFromURL implements provider.Adapter. For tencent the "ID" that
// comment-fetching needs is a vid, not the cid mediaId GetInfoFromURL
// returns, so this resolves the page-specific vid directly.
func (a *Adapter) GetIDFromURL(ctx context.Context, rawURL string) (string, error) {
	_, vid, ok := parseCidVidFromURL(rawURL)
	if ok && vid != "" {
		return vid, nil
	}
	cid, _, ok := parseCidVidFromURL(rawURL)
	if !ok || cid == "" {
		return "", nil
	}
	return a.movieVidFromAPI(ctx, cid)
}

// movieVidFromAPI asks the page-data API for the first non-trailer vid
// under a cid, used when a URL names only the cover and not a specific
// episode (typically movies, which have exactly one playable vid).
func (a *Adapter) movieVidFromAPI(ctx context.Context, cid string) (string, error) {
	payload := map[string]any{
		"page_params": map[string]any{
			"cid":          cid,
			"page_type":    "detail_operation",
			"page_id":      "vsite_episode_list_search",
			"id_type":      "1",
			"page_size":    "10",
			"lid":          "",
			"req_from":     "web_vsite",
			"page_context": "cid=" + cid + "&req_from=web_vsite",
			"page_num":     "0",
		},
	}
	resp, err := a.postJSON(ctx, episodesAPIURL, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed tencentPageResult
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("tencent: decode page data: %w", err)
	}
	if parsed.Data == nil {
		return "", nil
	}
	for _, mld := range parsed.Data.ModuleListDatas {
		for _, md := range mld.ModuleDatas {
			if md.ItemDataLists == nil {
				continue
			}
			for _, item := range md.ItemDataLists.ItemDatas {
				if item.ItemParams == nil {
					continue
				}
				if item.ItemParams.Vid != "" && item.ItemParams.IsTrailer != "1" {
					return item.ItemParams.Vid, nil
				}
			}
		}
	}
	return "", nil
}
