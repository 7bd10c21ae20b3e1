// SPDX-License-Identifier: AGPL-3.0-or-later

package iqiyi

import (
	"bytes"
	"compress/zlib"
	"strconv"
	"testing"
)

func TestFormatEpisodeIDForCommentsIsIdentity(t *testing.T) {
	a := &Adapter{}
	if got := a.FormatEpisodeIDForComments("abc123"); got != "abc123" {
		t.Errorf("FormatEpisodeIDForComments() = %q, want abc123", got)
	}
}

func TestLinkIDPatternExtractsSlug(t *testing.T) {
	m := linkIDPattern.FindStringSubmatch("https://www.iqiyi.com/v_2nsxxxxxx.html")
	if m == nil || m[1] != "2nsxxxxxx" {
		t.Fatalf("linkIDPattern match = %v, want 2nsxxxxxx", m)
	}
}

func buildDanmakuXML(contentID, content string, showTime int) []byte {
	xml := `<danmu><data><entry><list><bulletInfo>` +
		`<contentId>` + contentID + `</contentId>` +
		`<content>` + content + `</content>` +
		`<showTime>` + strconv.Itoa(showTime) + `</showTime>` +
		`<color>ff0000</color>` +
		`</bulletInfo></list></entry></data></danmu>`
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write([]byte(xml))
	w.Close()
	return buf.Bytes()
}

func TestDecodeDanmakuSegmentParsesEntries(t *testing.T) {
	compressed := buildDanmakuXML("42", "hello world", 120)
	comments, err := decodeDanmakuSegment(compressed)
	if err != nil {
		t.Fatalf("decodeDanmakuSegment: %v", err)
	}
	if len(comments) != 1 {
		t.Fatalf("len(comments) = %d, want 1", len(comments))
	}
	if comments[0].ContentID != "42" || comments[0].Content != "hello world" || comments[0].ShowTime != 120 {
		t.Errorf("decoded comment = %+v, want {ContentID:42 Content:hello world ShowTime:120}", comments[0])
	}
}

func TestFormatIqiyiCommentsParsesColor(t *testing.T) {
	out := formatIqiyiComments([]iqiyiComment{{ContentID: "1", Content: "x", ShowTime: 5, Color: "ff0000"}})
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].ColorRGB != 0xFF0000 {
		t.Errorf("ColorRGB = %x, want ff0000", out[0].ColorRGB)
	}
}
