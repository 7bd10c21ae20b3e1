// SPDX-License-Identifier: AGPL-3.0-or-later

package xmlimport

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<i>
  <chatserver>danmu</chatserver>
  <chatid>0</chatid>
  <mission>0</mission>
  <maxlimit>2</maxlimit>
  <source>kuyun</source>
  <d p="12.34,1,25,16777215,[custom_xml]">hello</d>
  <d p="5.0,4,16711680">no font size</d>
</i>`

func TestParseXMLRepairsMissingFontSize(t *testing.T) {
	entries, err := ParseXML(strings.NewReader(sampleXML))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, 12.34, entries[0].TimeSec)
	assert.Equal(t, 1, entries[0].Mode)
	assert.Equal(t, 25, entries[0].FontSize)
	assert.Equal(t, 16777215, entries[0].ColorRGB)
	assert.Equal(t, "hello", entries[0].Text)

	assert.Equal(t, 5.0, entries[1].TimeSec)
	assert.Equal(t, 4, entries[1].Mode)
	assert.Equal(t, 25, entries[1].FontSize)
	assert.Equal(t, 16711680, entries[1].ColorRGB)
}

func TestConvertPlainTextParsesLines(t *testing.T) {
	text := "12.5,1,25,16777215 | hello there\n\n5,4,16711680 | short tuple\nbad line without pipe\n"

	entries := ConvertPlainText(text)

	require.Len(t, entries, 2)
	assert.Equal(t, "hello there", entries[0].Text)
	assert.Equal(t, 25, entries[0].FontSize)
	assert.Equal(t, "short tuple", entries[1].Text)
	assert.Equal(t, 25, entries[1].FontSize)
}

func TestToRawCommentsAssignsSyntheticCIDs(t *testing.T) {
	entries := []Entry{{TimeSec: 1, Mode: 1, FontSize: 25, ColorRGB: 1, Text: "a"}}
	raw := ToRawComments(entries)
	require.Len(t, raw, 1)
	assert.Equal(t, "custom-0", raw[0].CID)
}
