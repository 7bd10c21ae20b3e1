// SPDX-License-Identifier: AGPL-3.0-or-later

// Package danmakufile is the optional file-based storage backend: after
// an import persists an episode's comments, the episode's full comment
// list can additionally be written out as a danmaku XML file whose path
// is built from an operator-configured template. Movies and TV series
// use separate roots and templates. Disabled by default; toggled and
// configured entirely through internal/configstore.
package danmakufile

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/quzard/misaka-danmu-server/internal/configstore"
	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/logging"
)

// Tokens are the values substituted into a path template. Every token
// the template syntax knows is here; a template is free to use a subset.
type Tokens struct {
	Title     string
	Season    int
	Episode   int
	Year      *int
	Provider  string
	AnimeID   int64
	SourceID  int64
	EpisodeID int64
}

// sanitizeComponent strips characters that would change the meaning of
// the rendered path when they appear inside a token value (a title
// containing "/" must not create a directory).
func sanitizeComponent(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}

// Render substitutes t into template and appends ".xml" if the result
// does not already end in it. Unknown ${...} tokens are left verbatim so
// a typo is visible in the produced path instead of silently vanishing.
func Render(template string, t Tokens) string {
	year := ""
	if t.Year != nil {
		year = strconv.Itoa(*t.Year)
	}
	r := strings.NewReplacer(
		"${title}", sanitizeComponent(t.Title),
		"${season}", strconv.Itoa(t.Season),
		"${episode}", strconv.Itoa(t.Episode),
		"${year}", year,
		"${provider}", sanitizeComponent(t.Provider),
		"${animeId}", strconv.FormatInt(t.AnimeID, 10),
		"${sourceId}", strconv.FormatInt(t.SourceID, 10),
		"${episodeId}", strconv.FormatInt(t.EpisodeID, 10),
	)
	out := r.Replace(template)
	if !strings.HasSuffix(out, ".xml") {
		out += ".xml"
	}
	return out
}

// ComposeXML serializes comments into the danmaku XML document shape of
// the custom import format, so a written file round-trips through the
// manual-import parser.
func ComposeXML(comments []*library.Comment) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString("<i>\n")
	b.WriteString("  <chatserver>danmu</chatserver>\n")
	b.WriteString("  <chatid>0</chatid>\n")
	b.WriteString("  <mission>0</mission>\n")
	fmt.Fprintf(&b, "  <maxlimit>%d</maxlimit>\n", len(comments))
	b.WriteString("  <source>kuyun</source>\n")
	for _, c := range comments {
		b.WriteString(`  <d p="`)
		xmlEscape(&b, c.P)
		b.WriteString(`">`)
		xmlEscape(&b, c.M)
		b.WriteString("</d>\n")
	}
	b.WriteString("</i>\n")
	return b.String()
}

func xmlEscape(b *strings.Builder, s string) {
	// EscapeText only fails on a failing writer; strings.Builder never does.
	_ = xml.EscapeText(b, []byte(s))
}

// Writer renders a path per episode and writes the composed XML there,
// creating intermediate directories. All tunables come from the config
// store at call time, so an operator toggle applies to the next write
// without restart.
type Writer struct {
	cfg *configstore.Store
}

// NewWriter builds a Writer over cfg.
func NewWriter(cfg *configstore.Store) *Writer {
	return &Writer{cfg: cfg}
}

// WriteEpisode writes the episode's comments to the templated path and
// returns it. Returns ("", nil) when the backend is disabled.
func (w *Writer) WriteEpisode(ctx context.Context, workType library.WorkType, t Tokens, comments []*library.Comment) (string, error) {
	enabled, err := w.cfg.GetBool(ctx, configstore.KeyDanmakuOutputEnabled, false)
	if err != nil {
		return "", err
	}
	if !enabled {
		return "", nil
	}

	rootKey, tmplKey := configstore.KeyDanmakuOutputTVRoot, configstore.KeyDanmakuOutputTVTemplate
	if workType == library.WorkTypeMovie {
		rootKey, tmplKey = configstore.KeyDanmakuOutputMovieRoot, configstore.KeyDanmakuOutputMovieTemplate
	}
	root, err := w.cfg.Get(ctx, rootKey, "")
	if err != nil {
		return "", err
	}
	tmpl, err := w.cfg.Get(ctx, tmplKey, "")
	if err != nil {
		return "", err
	}
	if root == "" || tmpl == "" {
		return "", fmt.Errorf("danmakufile: output enabled but %s/%s not configured", rootKey, tmplKey)
	}

	path := filepath.Join(root, filepath.FromSlash(Render(tmpl, t)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("danmakufile: create directories: %w", err)
	}
	if err := os.WriteFile(path, []byte(ComposeXML(comments)), 0o644); err != nil {
		return "", fmt.Errorf("danmakufile: write %s: %w", path, err)
	}

	logging.Debug().Str("path", path).Int("comments", len(comments)).Msg("danmaku file written")
	return path, nil
}
