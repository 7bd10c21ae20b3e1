// SPDX-License-Identifier: AGPL-3.0-or-later

package comment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/provider"
)

// DefaultFontSize is used when an upstream comment carries no font-size
// hint, matching spec.md §4.7 step 2.
const DefaultFontSize = 25

// validModes is the closed set p's mode field may hold: 1=scroll,
// 4=bottom, 5=top (spec.md §3).
var validModes = map[int]bool{1: true, 4: true, 5: true}

// Normalize converts one provider's raw comment batch into the canonical
// wire shape, in the five steps spec.md §4.7 enumerates:
//
//  1. strip NUL bytes from text, drop entries that are empty afterward,
//  2. fill in mode/font-size/color defaults,
//  3. compose p/m/cid/t,
//  4. dedup by cid within the batch,
//  5. collapse identical-text groups (size > 1) to their earliest entry,
//     appending " X{count}" to its text.
//
// Normalize is idempotent: running it again over its own output is a
// no-op, since every cid is already unique and every collapsed group is
// already size 1.
func Normalize(providerName string, raw []provider.RawComment) []*library.Comment {
	seen := make(map[string]struct{}, len(raw))
	deduped := make([]*library.Comment, 0, len(raw))

	for _, rc := range raw {
		text := stripNUL(rc.Text)
		if text == "" {
			continue
		}
		if _, ok := seen[rc.CID]; ok {
			continue
		}
		seen[rc.CID] = struct{}{}

		mode := rc.Mode
		if !validModes[mode] {
			mode = 1
		}
		fontSize := rc.FontSize
		if fontSize <= 0 {
			fontSize = DefaultFontSize
		}

		deduped = append(deduped, &library.Comment{
			CID: rc.CID,
			P:   formatP(rc.TimeSec, mode, fontSize, rc.ColorRGB, providerName),
			M:   text,
			T:   rc.TimeSec,
		})
	}

	return collapseDuplicateText(deduped)
}

// formatP composes the five-field CSV described in spec.md §6.1.
func formatP(timeSec float64, mode, fontSize, colorRGB int, providerName string) string {
	return fmt.Sprintf("%.2f,%d,%d,%d,[%s]", timeSec, mode, fontSize, colorRGB, providerName)
}

// stripNUL removes embedded NUL bytes, the only sanitization spec.md
// §4.7 step 1 calls for.
func stripNUL(s string) string {
	if !strings.ContainsRune(s, 0) {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// collapseDuplicateText groups comments by identical m; any group with
// more than one member keeps only its earliest-timestamp entry, with its
// text rewritten to "{text} X{count}" (spec.md §4.7 step 5, scenario
// §8 #5).
func collapseDuplicateText(in []*library.Comment) []*library.Comment {
	groups := make(map[string][]*library.Comment, len(in))
	order := make([]string, 0, len(in))
	for _, c := range in {
		if _, ok := groups[c.M]; !ok {
			order = append(order, c.M)
		}
		groups[c.M] = append(groups[c.M], c)
	}

	out := make([]*library.Comment, 0, len(in))
	for _, text := range order {
		group := groups[text]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].T < group[j].T })
		winner := group[0]
		winner.M = fmt.Sprintf("%s X%d", text, len(group))
		out = append(out, winner)
	}
	return out
}
