// SPDX-License-Identifier: AGPL-3.0-or-later

package filter

import (
	"regexp"
	"testing"

	"github.com/quzard/misaka-danmu-server/internal/provider"
)

func TestFilterAndRenumberDropsJunkAndRenumbers(t *testing.T) {
	items := []provider.RawEpisode{
		{ProviderEpisodeID: "1", Title: "第1集"},
		{ProviderEpisodeID: "2", Title: "幕后花絮特辑"},
		{ProviderEpisodeID: "3", Title: "第2集"},
		{ProviderEpisodeID: "4", Title: "预告片"},
		{ProviderEpisodeID: "5", Title: "第3集"},
	}

	out := FilterAndRenumber(items, Config{})
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	for i, ep := range out {
		if ep.EpisodeIndex != i+1 {
			t.Errorf("out[%d].EpisodeIndex = %d, want %d", i, ep.EpisodeIndex, i+1)
		}
	}
	if out[0].ProviderEpisodeID != "1" || out[1].ProviderEpisodeID != "3" || out[2].ProviderEpisodeID != "5" {
		t.Errorf("unexpected surviving episodes: %+v", out)
	}
}

func TestFilterAndRenumberAppliesProviderBlacklist(t *testing.T) {
	items := []provider.RawEpisode{
		{ProviderEpisodeID: "1", Title: "第1集"},
		{ProviderEpisodeID: "2", Title: "番外篇SP"},
	}

	out := FilterAndRenumber(items, Config{BlacklistPattern: regexp.MustCompile("SP")})
	if len(out) != 1 || out[0].ProviderEpisodeID != "1" {
		t.Errorf("FilterAndRenumber() = %+v, want only episode 1 surviving", out)
	}
}

func TestIsJunkTitle(t *testing.T) {
	if !IsJunkTitle("独家专访：主创团队") {
		t.Error("expected IsJunkTitle to flag an interview title")
	}
	if IsJunkTitle("第10集") {
		t.Error("expected IsJunkTitle to pass a normal episode title")
	}
}
