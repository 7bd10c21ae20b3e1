// SPDX-License-Identifier: AGPL-3.0-or-later

package library

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

func TestRateLimitStateCreateResetIncrement(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var afterCreate *RateLimitState
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		st, err := s.GetOrCreateRateLimitStateTx(ctx, tx, "bilibili")
		afterCreate = st
		return err
	})
	if err != nil {
		t.Fatalf("GetOrCreateRateLimitStateTx: %v", err)
	}
	if afterCreate.RequestCount != 0 {
		t.Errorf("new state RequestCount = %d, want 0", afterCreate.RequestCount)
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.IncrementRateLimitCountTx(ctx, tx, "bilibili")
	})
	if err != nil {
		t.Fatalf("IncrementRateLimitCountTx: %v", err)
	}

	var afterIncrement *RateLimitState
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		st, err := s.GetOrCreateRateLimitStateTx(ctx, tx, "bilibili")
		afterIncrement = st
		return err
	})
	if err != nil {
		t.Fatalf("GetOrCreateRateLimitStateTx: %v", err)
	}
	if afterIncrement.RequestCount != 1 {
		t.Errorf("RequestCount after increment = %d, want 1", afterIncrement.RequestCount)
	}

	resetTime := time.Now().Add(time.Hour)
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.ResetRateLimitWindowTx(ctx, tx, "bilibili", resetTime)
	})
	if err != nil {
		t.Fatalf("ResetRateLimitWindowTx: %v", err)
	}

	var afterReset *RateLimitState
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		st, err := s.GetOrCreateRateLimitStateTx(ctx, tx, "bilibili")
		afterReset = st
		return err
	})
	if err != nil {
		t.Fatalf("GetOrCreateRateLimitStateTx: %v", err)
	}
	if afterReset.RequestCount != 0 {
		t.Errorf("RequestCount after reset = %d, want 0", afterReset.RequestCount)
	}
	if diff := afterReset.LastResetTime.Sub(resetTime); diff > time.Second || diff < -time.Second {
		t.Errorf("LastResetTime = %v, want close to %v", afterReset.LastResetTime, resetTime)
	}
}
