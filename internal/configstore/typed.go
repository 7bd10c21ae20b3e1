// SPDX-License-Identifier: AGPL-3.0-or-later

package configstore

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// GetBool reads key as the lowercase-string boolean convention described
// in doc.go ("true"/"false"), falling back to fallback on any other
// content rather than erroring, since a malformed operator edit to
// app_config should degrade to a safe default, not break every caller.
func (s *Store) GetBool(ctx context.Context, key string, fallback bool) (bool, error) {
	raw, err := s.Get(ctx, key, strconv.FormatBool(fallback))
	if err != nil {
		return false, err
	}
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return fallback, nil
	}
}

// GetInt reads key as a base-10 integer, falling back to fallback if the
// stored value does not parse.
func (s *Store) GetInt(ctx context.Context, key string, fallback int) (int, error) {
	raw, err := s.Get(ctx, key, strconv.Itoa(fallback))
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, nil
	}
	return v, nil
}

// GetDuration reads key as a count of seconds and returns it as a
// time.Duration.
func (s *Store) GetDuration(ctx context.Context, key string, fallback time.Duration) (time.Duration, error) {
	secs, err := s.GetInt(ctx, key, int(fallback/time.Second))
	if err != nil {
		return 0, fmt.Errorf("get duration %q: %w", key, err)
	}
	return time.Duration(secs) * time.Second, nil
}
