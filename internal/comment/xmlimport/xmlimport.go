// SPDX-License-Identifier: AGPL-3.0-or-later

// Package xmlimport parses the custom danmaku XML format accepted on
// manual import for the "custom" provider (spec.md §6.2), plus the
// plain-text line fallback that gets converted to the same XML shape
// before parsing. It streams entries with antchfx/xmlquery's
// CreateStreamParser rather than unmarshaling the whole document, so a
// multi-megabyte danmaku file doesn't need to live in memory twice.
package xmlimport

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/provider"
)

// Entry is one <d> element's parsed p-tuple plus its text, ready for
// internal/comment.Normalize (using "custom" or the caller-supplied
// provider tag, per spec.md §6.1 "[provider_tag]").
type Entry struct {
	TimeSec  float64
	Mode     int
	FontSize int
	ColorRGB int
	Text     string
}

// ParseXML streams every <d p="..."> element out of r. A p attribute
// with fewer than 4 fields (missing font_size, the most common
// truncation) is repaired by inserting the default font_size=25 per
// spec.md §6.2; anything with fewer than 3 fields is skipped as
// unparseable rather than guessed at.
func ParseXML(r io.Reader) ([]Entry, error) {
	parser, err := xmlquery.CreateStreamParser(r, "//d")
	if err != nil {
		return nil, apperr.NewUpstreamSchemaError("custom", fmt.Errorf("create xml stream parser: %w", err))
	}

	var out []Entry
	for {
		node, err := parser.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperr.NewUpstreamSchemaError("custom", fmt.Errorf("read xml node: %w", err))
		}

		pAttr := node.SelectAttr("p")
		if pAttr == "" {
			continue
		}
		entry, ok := parseP(pAttr)
		if !ok {
			continue
		}
		entry.Text = node.InnerText()
		out = append(out, entry)
	}
	return out, nil
}

// parseP parses a "p" attribute's CSV tuple, repairing a 3-field
// time,mode,color tuple (missing font_size) with the default.
func parseP(p string) (Entry, bool) {
	fields := strings.Split(p, ",")
	if len(fields) < 3 {
		return Entry{}, false
	}

	timeSec, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Entry{}, false
	}
	mode, err := strconv.Atoi(fields[1])
	if err != nil {
		return Entry{}, false
	}

	var fontSize, colorIdx int
	if len(fields) >= 4 {
		fontSize, err = strconv.Atoi(fields[2])
		if err != nil {
			fontSize = 25
		}
		colorIdx = 3
	} else {
		fontSize = 25
		colorIdx = 2
	}

	colorRGB, err := strconv.Atoi(fields[colorIdx])
	if err != nil {
		colorRGB = 16777215
	}

	return Entry{TimeSec: timeSec, Mode: mode, FontSize: fontSize, ColorRGB: colorRGB}, true
}

// ToRawComments adapts parsed Entries into provider.RawComment so they
// can be fed straight into internal/comment.Normalize. Custom XML/text
// entries carry no upstream comment id, so CID is synthesized from the
// entry's position, matching the "custom" provider's manual-import path
// where re-imports overwrite rather than append (spec.md §4.6.6
// manual_import).
func ToRawComments(entries []Entry) []provider.RawComment {
	out := make([]provider.RawComment, len(entries))
	for i, e := range entries {
		out[i] = provider.RawComment{
			CID:      fmt.Sprintf("custom-%d", i),
			Text:     e.Text,
			TimeSec:  e.TimeSec,
			Mode:     e.Mode,
			FontSize: e.FontSize,
			ColorRGB: e.ColorRGB,
		}
	}
	return out
}

// ConvertPlainText turns the line-oriented fallback format
// "time,mode,size,color[,...] | text" into the same Entry shape ParseXML
// produces, per spec.md §6.2's "Plain-text fallback format".
func ConvertPlainText(text string) []Entry {
	var out []Entry
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 2)
		if len(parts) != 2 {
			continue
		}
		entry, ok := parseP(strings.TrimSpace(parts[0]))
		if !ok {
			continue
		}
		entry.Text = strings.TrimSpace(parts[1])
		if entry.Text == "" {
			continue
		}
		out = append(out, entry)
	}
	return out
}
