// SPDX-License-Identifier: AGPL-3.0-or-later

package comment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quzard/misaka-danmu-server/internal/provider"
)

func TestNormalizeCollapsesDuplicateText(t *testing.T) {
	raw := []provider.RawComment{
		{CID: "a", Text: "lol", TimeSec: 10.5, Mode: 1, ColorRGB: 16777215},
		{CID: "b", Text: "lol", TimeSec: 11.0, Mode: 1, ColorRGB: 16777215},
		{CID: "c", Text: "lol", TimeSec: 12.0, Mode: 1, ColorRGB: 16777215},
	}

	out := Normalize("bilibili", raw)

	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].CID)
	assert.Equal(t, "lol X3", out[0].M)
	assert.Equal(t, 10.5, out[0].T)
	assert.Equal(t, "10.50,1,25,16777215,[bilibili]", out[0].P)
}

func TestNormalizeStripsNULAndDropsEmpty(t *testing.T) {
	raw := []provider.RawComment{
		{CID: "a", Text: "hi\x00there", TimeSec: 1, Mode: 1},
		{CID: "b", Text: "\x00\x00", TimeSec: 2, Mode: 1},
	}

	out := Normalize("iqiyi", raw)

	require.Len(t, out, 1)
	assert.Equal(t, "hithere", out[0].M)
}

func TestNormalizeDefaultsAndClampsMode(t *testing.T) {
	raw := []provider.RawComment{
		{CID: "a", Text: "hi", TimeSec: 1, Mode: 9, FontSize: 0},
	}

	out := Normalize("tencent", raw)

	require.Len(t, out, 1)
	assert.Equal(t, "1.00,1,25,0,[tencent]", out[0].P)
}

func TestNormalizeDedupsByCIDWithinBatch(t *testing.T) {
	raw := []provider.RawComment{
		{CID: "x", Text: "one", TimeSec: 1, Mode: 1},
		{CID: "x", Text: "two", TimeSec: 2, Mode: 1},
	}

	out := Normalize("youku", raw)

	require.Len(t, out, 1)
	assert.Equal(t, "one", out[0].M)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raw := []provider.RawComment{
		{CID: "a", Text: "lol", TimeSec: 10.5, Mode: 1, ColorRGB: 255},
		{CID: "b", Text: "lol", TimeSec: 11.0, Mode: 1, ColorRGB: 255},
	}

	first := Normalize("mgtv", raw)

	second := make([]provider.RawComment, len(first))
	for i, c := range first {
		second[i] = provider.RawComment{CID: c.CID, Text: c.M, TimeSec: c.T, Mode: 1, FontSize: 25}
	}

	third := Normalize("mgtv", second)
	require.Len(t, third, len(first))
	assert.Equal(t, first[0].M, third[0].M)
}
