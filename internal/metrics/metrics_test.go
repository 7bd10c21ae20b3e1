// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDBQuery(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		table     string
		duration  time.Duration
		err       error
	}{
		{"successful select", "SELECT", "episode", 10 * time.Millisecond, nil},
		{"successful insert", "INSERT", "comment", 5 * time.Millisecond, nil},
		{"failed update", "UPDATE", "work", 100 * time.Millisecond, errors.New("constraint violation")},
		{"fast query", "SELECT", "source", 500 * time.Microsecond, nil},
		{"slow query", "SELECT", "comment", 5500 * time.Millisecond, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordDBQuery(tt.operation, tt.table, tt.duration, tt.err)
		})
	}
}

func TestRecordProviderFetch(t *testing.T) {
	tests := []struct {
		name      string
		provider  string
		operation string
		duration  time.Duration
		err       error
	}{
		{"bilibili search ok", "bilibili", "search", 200 * time.Millisecond, nil},
		{"tencent comments failed", "tencent", "get_comments", 2 * time.Second, errors.New("timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordProviderFetch(tt.provider, tt.operation, tt.duration, tt.err)
		})
	}
}

func TestRecordAPIRequest(t *testing.T) {
	tests := []struct {
		method     string
		route      string
		statusCode string
		duration   time.Duration
	}{
		{"GET", "/api/v3/search/anime", "200", 25 * time.Millisecond},
		{"POST", "/api/v3/import", "200", 150 * time.Millisecond},
		{"GET", "/api/v3/comment/{commentId}", "404", 2 * time.Millisecond},
		{"POST", "/api/v3/import", "500", 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			RecordAPIRequest(tt.method, tt.route, tt.statusCode, tt.duration)
		})
	}
}

func TestTrackActiveRequest(t *testing.T) {
	for i := 0; i < 10; i++ {
		TrackActiveRequest(true)
	}
	for i := 0; i < 10; i++ {
		TrackActiveRequest(false)
	}
}

func TestRecordTaskLifecycle(t *testing.T) {
	queues := []string{"download", "management", "fallback"}
	for _, q := range queues {
		RecordTaskEnqueued(q, "generic_import")
		RecordTaskCompleted(q, "generic_import", "success", 2*time.Second)
		UpdateTaskQueueDepth(q, 3)
	}
}

func TestRecordRateLimitCheck(t *testing.T) {
	RecordRateLimitCheck("bilibili", true)
	RecordRateLimitCheck("bilibili", false)
}

func TestRecordComments(t *testing.T) {
	RecordCommentsInserted("bilibili", 120)
	RecordCommentsDeduplicated("bilibili", 8)
}

func TestCircuitBreakerMetrics(t *testing.T) {
	provider := "youku"
	CircuitBreakerState.WithLabelValues(provider).Set(0)
	CircuitBreakerState.WithLabelValues(provider).Set(2)
	CircuitBreakerTransitions.WithLabelValues(provider, "closed", "open").Inc()
}

func TestCacheMetrics(t *testing.T) {
	for _, cacheType := range []string{"search", "episodes", "rate_limit_artifact"} {
		CacheHits.WithLabelValues(cacheType).Add(100)
		CacheMisses.WithLabelValues(cacheType).Add(20)
		CacheEntries.WithLabelValues(cacheType).Set(50)
	}
}

func TestAppMetrics(t *testing.T) {
	AppInfo.WithLabelValues("dev", "go1.25.5").Set(1)
	AppUptime.Set(3600)
	AppUptime.Add(60)
}

func TestConcurrentMetricRecording(t *testing.T) {
	var wg sync.WaitGroup
	const n = 50
	wg.Add(n * 3)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			RecordDBQuery("SELECT", "comment", time.Millisecond, nil)
		}()
		go func() {
			defer wg.Done()
			RecordAPIRequest("GET", "/api/v3/search/anime", "200", time.Millisecond)
		}()
		go func() {
			defer wg.Done()
			TrackActiveRequest(true)
			TrackActiveRequest(false)
		}()
	}
	wg.Wait()
}

func TestMetricsRegistration(t *testing.T) {
	collectors := []prometheus.Collector{
		DBQueryDuration, DBQueryErrors, DBConnectionsInUse,
		ProviderFetchDuration, ProviderFetchErrors, ProviderCommentsFetched,
		CircuitBreakerState, CircuitBreakerTransitions,
		TasksEnqueued, TasksCompleted, TaskDuration, TaskQueueDepth,
		RateLimitChecks, RateLimitArtifactAge,
		CommentsInserted, CommentsDeduplicated,
		APIRequestsTotal, APIRequestDuration, APIActiveRequests, APIRateLimitHits,
		CacheHits, CacheMisses, CacheEntries,
		AppInfo, AppUptime,
	}

	for _, c := range collectors {
		ch := make(chan *prometheus.Desc, 10)
		c.Describe(ch)
		close(ch)

		count := 0
		for range ch {
			count++
		}
		if count == 0 {
			t.Errorf("metric %v has no descriptors", c)
		}
	}
}

func TestMetricGathering(t *testing.T) {
	RecordDBQuery("TEST", "test_table", time.Millisecond, nil)
	RecordAPIRequest("GET", "/test", "200", time.Millisecond)

	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Logf("lint errors (may be expected): %v", err)
	}
	for _, p := range problems {
		t.Logf("metric lint problem: %s", p.Text)
	}
}

func BenchmarkRecordDBQuery(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordDBQuery("SELECT", "comment", 10*time.Millisecond, nil)
	}
}

func BenchmarkRecordAPIRequest(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordAPIRequest("GET", "/api/v3/search/anime", "200", 25*time.Millisecond)
	}
}

func BenchmarkRecordProviderFetch(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordProviderFetch("bilibili", "get_comments", 200*time.Millisecond, nil)
	}
}
