// SPDX-License-Identifier: AGPL-3.0-or-later

package bilibili

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestWbiSignIncludesWRid(t *testing.T) {
	params := map[string]string{"keyword": "斗罗大陆", "search_type": "media_bangumi"}
	query := wbiSign(params, "abcdef0123456789abcdef0123456789")

	if !contains(query, "w_rid=") {
		t.Errorf("wbiSign() = %q, missing w_rid", query)
	}
	if !contains(query, "wts=") {
		t.Errorf("wbiSign() = %q, missing wts", query)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestLastPathSegmentNoExt(t *testing.T) {
	got := lastPathSegmentNoExt("https://i0.hdslb.com/bfs/wbi/7e5f.png")
	if got != "7e5f" {
		t.Errorf("lastPathSegmentNoExt() = %q, want 7e5f", got)
	}
}

func TestParseEpisodeIDRoundTrip(t *testing.T) {
	aid, cid, err := parseEpisodeID("123,456")
	if err != nil {
		t.Fatalf("parseEpisodeID: %v", err)
	}
	if aid != 123 || cid != 456 {
		t.Errorf("parseEpisodeID() = (%d, %d), want (123, 456)", aid, cid)
	}

	if _, _, err := parseEpisodeID("malformed"); err == nil {
		t.Error("expected error for malformed episode id")
	}
}

func TestFormatEpisodeIDForCommentsIsIdentity(t *testing.T) {
	a := &Adapter{}
	if got := a.FormatEpisodeIDForComments("123,456"); got != "123,456" {
		t.Errorf("FormatEpisodeIDForComments() = %q, want 123,456", got)
	}
}

// buildDanmakuElem hand-encodes a minimal DanmakuElem (fields 1,2,3,7)
// as protobuf wire bytes, mirroring what bilibili's seg.so endpoint
// returns embedded in a DmSegMobileReply's field 1.
func buildDanmakuElem(id int64, progress, mode int32, content string) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(id))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(progress))
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(mode))
	b = protowire.AppendTag(b, 7, protowire.BytesType)
	b = protowire.AppendString(b, content)
	return b
}

func TestDecodeDmSegMobileReplyParsesElems(t *testing.T) {
	elem := buildDanmakuElem(1001, 5000, 1, "hello")

	var reply []byte
	reply = protowire.AppendTag(reply, 1, protowire.BytesType)
	reply = protowire.AppendBytes(reply, elem)

	elems, err := decodeDmSegMobileReply(reply)
	if err != nil {
		t.Fatalf("decodeDmSegMobileReply: %v", err)
	}
	if len(elems) != 1 {
		t.Fatalf("len(elems) = %d, want 1", len(elems))
	}
	if elems[0].ID != 1001 || elems[0].Progress != 5000 || elems[0].Content != "hello" {
		t.Errorf("decoded elem = %+v, want {ID:1001 Progress:5000 Content:hello}", elems[0])
	}
}
