// SPDX-License-Identifier: AGPL-3.0-or-later

package base

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
)

func TestDoSucceedsOnFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New("test-provider", 0)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("resp.StatusCode = %d, want 200", resp.StatusCode)
	}
}

func TestDoRetriesTransientFailureThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New("test-provider-retry", 0)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()
	if atomic.LoadInt32(&attempts) < 2 {
		t.Errorf("attempts = %d, want retry to have happened", attempts)
	}
}

func TestDoReturnsUpstreamNetworkErrorAfterExhaustingRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New("test-provider-fail", 0)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	_, err := c.Do(req)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.ErrorKind() != apperr.KindUpstreamNetwork {
		t.Errorf("Do() error = %v, want apperr KindUpstreamNetwork", err)
	}
}

func TestThrottleEnforcesMinInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New("test-provider-throttle", 50*time.Millisecond)
	req1, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	resp1, err := c.Do(req1)
	if err != nil {
		t.Fatalf("first Do() error = %v", err)
	}
	resp1.Body.Close()

	start := time.Now()
	req2, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	resp2, err := c.Do(req2)
	if err != nil {
		t.Fatalf("second Do() error = %v", err)
	}
	resp2.Body.Close()
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("elapsed = %v, want at least ~50ms throttle wait", elapsed)
	}
}

func TestSetProxyRebuildsClientOnChange(t *testing.T) {
	c := New("test-provider-proxy", 0)
	before := c.httpClient

	if err := c.SetProxy("http://127.0.0.1:8080"); err != nil {
		t.Fatalf("SetProxy() error = %v", err)
	}
	if c.httpClient == before {
		t.Error("expected SetProxy to rebuild the http.Client")
	}

	after := c.httpClient
	if err := c.SetProxy("http://127.0.0.1:8080"); err != nil {
		t.Fatalf("SetProxy() (no-op) error = %v", err)
	}
	if c.httpClient != after {
		t.Error("expected SetProxy to be a no-op when the proxy URL is unchanged")
	}
}

func TestSetProxyRejectsMalformedURL(t *testing.T) {
	c := New("test-provider-badproxy", 0)
	if err := c.SetProxy("://not-a-url"); err == nil {
		t.Error("expected SetProxy to reject a malformed proxy URL")
	}
}

func TestSetProxyEmptyStringClearsProxy(t *testing.T) {
	c := New("test-provider-clearproxy", 0)
	if err := c.SetProxy("http://127.0.0.1:8080"); err != nil {
		t.Fatalf("SetProxy() error = %v", err)
	}
	if err := c.SetProxy(""); err != nil {
		t.Fatalf("SetProxy(\"\") error = %v", err)
	}
	if c.proxyURL != "" {
		t.Errorf("c.proxyURL = %q, want empty", c.proxyURL)
	}
}
