// SPDX-License-Identifier: AGPL-3.0-or-later

package provider_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/provider"
)

type stubAdapter struct {
	meta provider.Meta
}

func (s stubAdapter) Meta() provider.Meta { return s.meta }
func (s stubAdapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]provider.SearchInfo, error) {
	return nil, nil
}
func (s stubAdapter) GetInfoFromURL(ctx context.Context, url string) (*provider.SearchInfo, error) {
	return nil, nil
}
func (s stubAdapter) GetIDFromURL(ctx context.Context, url string) (string, error) { return "", nil }
func (s stubAdapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex *int, dbMediaType string) ([]provider.EpisodeInfo, error) {
	return nil, nil
}
func (s stubAdapter) GetComments(ctx context.Context, episodeID string, progress provider.ProgressFunc) ([]provider.RawComment, error) {
	return nil, nil
}
func (s stubAdapter) FormatEpisodeIDForComments(raw string) string { return raw }
func (s stubAdapter) ExecuteAction(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	return nil, apperr.NotFound
}

func TestRegisterAndGet(t *testing.T) {
	r := provider.NewRegistry()
	r.Register(stubAdapter{meta: provider.Meta{Name: "bilibili", HandledDomains: []string{"bilibili.com"}}})

	a, ok := r.Get("bilibili")
	if !ok || a.Meta().Name != "bilibili" {
		t.Fatalf("Get(bilibili) = %v, %v", a, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) ok = true, want false")
	}
}

func TestRouteByURLMatchesSubdomain(t *testing.T) {
	r := provider.NewRegistry()
	r.Register(stubAdapter{meta: provider.Meta{Name: "bilibili", HandledDomains: []string{"bilibili.com"}}})

	a, ok := r.RouteByURL("https://www.bilibili.com/video/BV1xx")
	if !ok || a.Meta().Name != "bilibili" {
		t.Errorf("RouteByURL(www.bilibili.com) = %v, %v, want bilibili", a, ok)
	}

	if _, ok := r.RouteByURL("https://example.com"); ok {
		t.Error("RouteByURL(example.com) ok = true, want false")
	}
}

func TestRegisterPanicsOnEmptyHandledDomains(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected Register to panic on empty HandledDomains")
		}
	}()
	provider.NewRegistry().Register(stubAdapter{meta: provider.Meta{Name: "bad"}})
}

func TestRegisterPanicsOnDuplicateName(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected Register to panic on duplicate name")
		}
	}()
	r := provider.NewRegistry()
	r.Register(stubAdapter{meta: provider.Meta{Name: "dup", HandledDomains: []string{"a.com"}}})
	r.Register(stubAdapter{meta: provider.Meta{Name: "dup", HandledDomains: []string{"b.com"}}})
}

func TestAllReturnsEveryManifest(t *testing.T) {
	r := provider.NewRegistry()
	r.Register(stubAdapter{meta: provider.Meta{Name: "a", HandledDomains: []string{"a.com"}}})
	r.Register(stubAdapter{meta: provider.Meta{Name: "b", HandledDomains: []string{"b.com"}}})

	all := r.All()
	if len(all) != 2 {
		t.Fatalf("len(All()) = %d, want 2", len(all))
	}
}
