// SPDX-License-Identifier: AGPL-3.0-or-later

package apperr

import (
	"errors"
	"testing"
)

func TestNewNotFoundMatchesSentinelViaIs(t *testing.T) {
	err := NewNotFound("episode", "42")

	if !errors.Is(err, NotFound) {
		t.Error("expected errors.Is(err, NotFound) to be true")
	}
	if errors.Is(err, Conflict) {
		t.Error("expected errors.Is(err, Conflict) to be false")
	}
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewUpstreamNetworkError("bilibili", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
	if err.ErrorKind() != KindUpstreamNetwork {
		t.Errorf("ErrorKind() = %v, want KindUpstreamNetwork", err.ErrorKind())
	}
}

func TestRateLimitExceededMessage(t *testing.T) {
	err := &RateLimitExceeded{Provider: "tencent", RetryAfterSeconds: 30}

	if err.ErrorKind() != KindRateLimitExceeded {
		t.Errorf("ErrorKind() = %v, want KindRateLimitExceeded", err.ErrorKind())
	}

	want := "RateLimitExceeded: tencent rate limited, retry after 30s"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestKindedInterfaceSatisfiedByBothTypes(t *testing.T) {
	var errs = []Kinded{
		NewNotFound("work", "1"),
		NewConflict("duplicate cid"),
		&RateLimitExceeded{Provider: "iqiyi"},
		NewUpstreamSchemaError("youku", errors.New("unexpected field")),
		ConfigVerificationFailed,
		NewInternal(errors.New("nil pointer")),
	}

	for _, e := range errs {
		if e.ErrorKind() == KindUnknown {
			t.Errorf("%v: expected a concrete Kind, got KindUnknown", e)
		}
	}
}

func TestTaskResultVariantsAreDistinctTypes(t *testing.T) {
	var results = []TaskResult{
		TaskSuccess{Message: "imported 10 comments"},
		TaskPauseForRateLimit{RetryAfterSeconds: 60},
	}

	switch v := results[0].(type) {
	case TaskSuccess:
		if v.Message != "imported 10 comments" {
			t.Errorf("Message = %q", v.Message)
		}
	default:
		t.Errorf("expected TaskSuccess, got %T", v)
	}

	switch v := results[1].(type) {
	case TaskPauseForRateLimit:
		if v.RetryAfterSeconds != 60 {
			t.Errorf("RetryAfterSeconds = %d", v.RetryAfterSeconds)
		}
	default:
		t.Errorf("expected TaskPauseForRateLimit, got %T", v)
	}
}
