// SPDX-License-Identifier: AGPL-3.0-or-later

package tencent

import (
	"encoding/json"
	"testing"
)

func TestFormatEpisodeIDForCommentsIsIdentity(t *testing.T) {
	a := &Adapter{}
	if got := a.FormatEpisodeIDForComments("abc123"); got != "abc123" {
		t.Errorf("FormatEpisodeIDForComments() = %q, want abc123", got)
	}
}

func TestParseCidVidFromURL(t *testing.T) {
	cases := []struct {
		url     string
		cid     string
		vid     string
		matches bool
	}{
		{"https://v.qq.com/x/cover/mzc00200op53nyk/f0044bdn8e0.html", "mzc00200op53nyk", "f0044bdn8e0", true},
		{"https://v.qq.com/x/page/f0044bdn8e0.html", "", "f0044bdn8e0", true},
		{"https://v.qq.com/x/cover/mzc00200op53nyk.html", "mzc00200op53nyk", "", true},
		{"https://example.com/nope", "", "", false},
	}
	for _, tc := range cases {
		cid, vid, ok := parseCidVidFromURL(tc.url)
		if ok != tc.matches || cid != tc.cid || vid != tc.vid {
			t.Errorf("parseCidVidFromURL(%q) = (%q, %q, %v), want (%q, %q, %v)", tc.url, cid, vid, ok, tc.cid, tc.vid, tc.matches)
		}
	}
}

func TestFormatTencentCommentAppliesPositionAndColor(t *testing.T) {
	c := tencentComment{
		ID:           "1",
		TimeOffset:   "2500",
		Content:      "hello",
		ContentStyle: json.RawMessage(`{"position":2,"color":"#FF0000"}`),
	}
	got := formatTencentComment(c)
	if got.Mode != 5 {
		t.Errorf("Mode = %d, want 5 (top)", got.Mode)
	}
	if got.ColorRGB != 0xFF0000 {
		t.Errorf("ColorRGB = %x, want ff0000", got.ColorRGB)
	}
	if got.TimeSec != 2.5 {
		t.Errorf("TimeSec = %v, want 2.5", got.TimeSec)
	}
}

func TestFormatTencentCommentDefaultsWhenStyleEmpty(t *testing.T) {
	c := tencentComment{ID: "2", TimeOffset: "1000", Content: "x", ContentStyle: json.RawMessage(`""`)}
	got := formatTencentComment(c)
	if got.Mode != 1 || got.ColorRGB != 0xFFFFFF {
		t.Errorf("formatTencentComment() = %+v, want default mode=1 color=ffffff", got)
	}
}

func TestFilterSearchItemRejectsNonQQSites(t *testing.T) {
	year := 2020
	v := &tencentVideoInfo{
		Title:    "测试剧集",
		Year:     &year,
		TypeName: "电视剧",
		PlaySites: []map[string]any{
			{"enName": "iqiyi"},
		},
	}
	if got := filterSearchItem("cid123", v); got != nil {
		t.Errorf("filterSearchItem() = %+v, want nil (no qq site)", got)
	}
}

func TestFilterSearchItemAcceptsQQSite(t *testing.T) {
	year := 2020
	v := &tencentVideoInfo{
		Title:    "测试剧集",
		Year:     &year,
		TypeName: "电视剧",
		PlaySites: []map[string]any{
			{"enName": "qq"},
		},
	}
	got := filterSearchItem("cid123", v)
	if got == nil {
		t.Fatal("filterSearchItem() = nil, want a result")
	}
	if got.Type != "tv_series" {
		t.Errorf("Type = %q, want tv_series", got.Type)
	}
}
