// SPDX-License-Identifier: AGPL-3.0-or-later

package base

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/logging"
	"github.com/quzard/misaka-danmu-server/internal/metrics"
)

// defaultTimeout bounds a single round trip; providers that need longer
// (comment-stream pagination) set their own context deadline per call.
const defaultTimeout = 30 * time.Second

// maxRetries bounds the backoff loop per spec.md §5: three attempts
// total before NewUpstreamNetworkError is returned to the caller.
const maxRetries = 3

// Client wraps one provider's outbound HTTP traffic with a circuit
// breaker, retry-with-backoff, a minimum interval between requests and a
// proxy-aware transport that rebuilds itself when internal/configstore's
// network.proxy_url changes. One Client per provider adapter; adapters
// never share a Client since the breaker and throttle are per-upstream.
type Client struct {
	name string

	cb *gobreaker.CircuitBreaker[*http.Response]

	// throttle enforces the per-provider minimum interval: one token,
	// refilled every minInterval, so concurrent callers queue in Wait.
	throttle *rate.Limiter

	mu         sync.Mutex
	httpClient *http.Client
	proxyURL   string
}

// intervalLimit converts a minimum interval into the rate the throttle
// refills at. Zero or negative means no throttling.
func intervalLimit(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

// New builds a Client for the named provider with the circuit breaker
// closed and no proxy configured. minInterval is the per-provider
// throttle floor (spec.md §5: 0.3-0.8s), adjustable later via SetMinInterval.
func New(name string, minInterval time.Duration) *Client {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	c := &Client{
		name:       name,
		httpClient: &http.Client{Timeout: defaultTimeout},
		throttle:   rate.NewLimiter(intervalLimit(minInterval), 1),
	}

	c.cb = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			trip := ratio >= 0.6
			if trip {
				logging.Warn().Str("provider", name).Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", ratio*100).Msg("provider circuit breaker opening")
			}
			return trip
		},
		OnStateChange: func(breakerName string, from, to gobreaker.State) {
			logging.Info().Str("provider", breakerName).Str("from", stateString(from)).
				Str("to", stateString(to)).Msg("provider circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(stateFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(breakerName, stateString(from), stateString(to)).Inc()
		},
	})

	return c
}

func stateFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// SetMinInterval updates the per-request throttle floor; called when
// internal/configstore's search.provider_min_interval_seconds changes.
func (c *Client) SetMinInterval(d time.Duration) {
	c.throttle.SetLimit(intervalLimit(d))
}

// SetProxy rebuilds the underlying transport if proxyURL differs from
// what's currently configured. An empty string clears the proxy. This is
// the hook internal/configstore's watcher calls on network.proxy_url change.
func (c *Client) SetProxy(proxyURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if proxyURL == c.proxyURL {
		return nil
	}

	transport := &http.Transport{}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return fmt.Errorf("provider %s: parse proxy url: %w", c.name, err)
		}
		transport.Proxy = http.ProxyURL(parsed)
	}

	c.httpClient = &http.Client{Timeout: defaultTimeout, Transport: transport}
	c.proxyURL = proxyURL
	logging.Info().Str("provider", c.name).Bool("proxy_set", proxyURL != "").Msg("provider HTTP client rebuilt")
	return nil
}

// Do executes req through the throttle, circuit breaker and a bounded
// retry-with-backoff loop, and returns apperr.NewUpstreamNetworkError on
// final failure so callers can pattern-match with errors.As uniformly.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if err := c.throttle.Wait(ctx); err != nil {
		return nil, apperr.NewUpstreamNetworkError(c.name, err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0
	bounded := backoff.WithMaxRetries(bo, maxRetries-1)
	ctxBo := backoff.WithContext(bounded, ctx)

	var lastErr error
	var resp *http.Response

	op := func() error {
		c.mu.Lock()
		client := c.httpClient
		c.mu.Unlock()

		var opErr error
		resp, opErr = c.cb.Execute(func() (*http.Response, error) {
			r, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				r.Body.Close()
				return nil, fmt.Errorf("upstream status %d", r.StatusCode)
			}
			return r, nil
		})
		if opErr != nil {
			if errors.Is(opErr, gobreaker.ErrOpenState) || errors.Is(opErr, gobreaker.ErrTooManyRequests) {
				metrics.ProviderFetchErrors.WithLabelValues(c.name, "circuit_open").Inc()
				return backoff.Permanent(opErr)
			}
			metrics.ProviderFetchErrors.WithLabelValues(c.name, "request").Inc()
			lastErr = opErr
			return opErr
		}
		return nil
	}

	if err := backoff.Retry(op, ctxBo); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, apperr.NewUpstreamNetworkError(c.name, lastErr)
	}

	return resp, nil
}
