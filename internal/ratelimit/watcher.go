// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/quzard/misaka-danmu-server/internal/config"
	"github.com/quzard/misaka-danmu-server/internal/logging"
)

// WatchArtifact watches the directory containing cfg's artifact and
// signature files and calls l.Reload on every write, debounced by
// cfg.WatchDebounceSecs so a multi-step "copy new artifact, copy new
// signature" operator workflow doesn't trigger a reload against a
// half-written pair. It runs until stop is closed.
func (l *Limiter) WatchArtifact(cfg config.LimiterConfig, stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(cfg.ArtifactPath)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	debounce := time.Duration(cfg.WatchDebounceSecs) * time.Second
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	var timer *time.Timer
	reload := func() {
		if err := l.Reload(cfg); err != nil {
			logging.Warn().Err(err).Msg("rate limit artifact reload failed")
		} else {
			logging.Info().Msg("rate limit artifact reloaded")
		}
	}

	for {
		select {
		case <-stop:
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != cfg.ArtifactPath && event.Name != cfg.SignaturePath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn().Err(err).Msg("rate limit artifact watcher error")
		}
	}
}
