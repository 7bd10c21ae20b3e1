// SPDX-License-Identifier: AGPL-3.0-or-later

package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/provider"
)

// danmakuElem is the subset of biliproto.community.service.dm.v1.
// DanmakuElem fields this adapter needs; decoded by hand with protowire
// rather than generated code since a full .proto/protoc toolchain isn't
// worth carrying for one message shape.
type danmakuElem struct {
	ID       int64
	Progress int32
	Mode     int32
	FontSize int32
	Color    uint32
	Content  string
}

// decodeDmSegMobileReply parses a DmSegMobileReply's field-1 (repeated
// DanmakuElem) entries out of raw protobuf wire bytes.
func decodeDmSegMobileReply(data []byte) ([]danmakuElem, error) {
	var elems []danmakuElem
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]

		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			if num == 1 {
				elem, err := decodeDanmakuElem(v)
				if err != nil {
					return nil, err
				}
				elems = append(elems, elem)
			}
			data = data[n:]
		case protowire.VarintType:
			_, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return elems, nil
}

func decodeDanmakuElem(data []byte) (danmakuElem, error) {
	var e danmakuElem
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return e, protowire.ParseError(n)
		}
		data = data[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			switch num {
			case 1:
				e.ID = int64(v)
			case 2:
				e.Progress = int32(v)
			case 3:
				e.Mode = int32(v)
			case 4:
				e.FontSize = int32(v)
			case 5:
				e.Color = uint32(v)
			}
			data = data[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			if num == 7 {
				e.Content = string(v)
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return e, nil
}

// GetComments implements provider.Adapter. episodeID is "aid,cid" as
// produced by GetEpisodes; danmaku is fetched per subtitle/cc pool in
// addition to the primary pool, then deduplicated by elem ID.
func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress provider.ProgressFunc) ([]provider.RawComment, error) {
	aid, cid, err := parseEpisodeID(episodeID)
	if err != nil {
		return nil, err
	}

	if progress != nil {
		progress(0)
	}
	pools, err := a.danmakuPools(ctx, aid, cid)
	if err != nil {
		pools = []int64{cid}
	}

	seen := map[int64]danmakuElem{}
	for i, poolCid := range pools {
		elems, err := a.fetchPoolSegments(ctx, aid, poolCid)
		if err != nil {
			continue
		}
		for _, e := range elems {
			seen[e.ID] = e
		}
		if progress != nil {
			progress(int(float64(i+1) / float64(len(pools)) * 100))
		}
	}

	out := make([]provider.RawComment, 0, len(seen))
	for _, e := range seen {
		content := strings.ReplaceAll(e.Content, "\x00", "")
		if content == "" {
			continue
		}
		out = append(out, provider.RawComment{
			CID:      strconv.FormatInt(e.ID, 10),
			Text:     content,
			TimeSec:  float64(e.Progress) / 1000.0,
			Mode:     int(e.Mode),
			FontSize: int(e.FontSize),
			ColorRGB: int(e.Color),
		})
	}
	if progress != nil {
		progress(100)
	}
	return out, nil
}

func parseEpisodeID(episodeID string) (aid, cid int64, err error) {
	parts := strings.SplitN(episodeID, ",", 2)
	if len(parts) != 2 {
		return 0, 0, apperr.NewUpstreamSchemaError(providerName, fmt.Errorf("malformed episode id %q", episodeID))
	}
	a, err1 := strconv.ParseInt(parts[0], 10, 64)
	c, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, apperr.NewUpstreamSchemaError(providerName, fmt.Errorf("malformed episode id %q", episodeID))
	}
	return a, c, nil
}

// danmakuPools returns every cid carrying danmaku for a video, including
// subtitle/CC pools bilibili exposes alongside the primary track.
func (a *Adapter) danmakuPools(ctx context.Context, aid, cid int64) ([]int64, error) {
	pools := map[int64]struct{}{cid: {}}

	resp, err := a.get(ctx, fmt.Sprintf("https://api.bilibili.com/x/player/v2?aid=%d&cid=%d", aid, cid))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed struct {
		Code int `json:"code"`
		Data struct {
			Subtitle struct {
				List []struct {
					ID int64 `json:"id"`
				} `json:"list"`
			} `json:"subtitle"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil && parsed.Code == 0 {
		for _, sub := range parsed.Data.Subtitle.List {
			if sub.ID != 0 {
				pools[sub.ID] = struct{}{}
			}
		}
	}

	out := make([]int64, 0, len(pools))
	for p := range pools {
		out = append(out, p)
	}
	return out, nil
}

// fetchPoolSegments pages through one cid's danmaku segments until a 304
// or an empty body signals there's no more to fetch.
func (a *Adapter) fetchPoolSegments(ctx context.Context, aid, cid int64) ([]danmakuElem, error) {
	var all []danmakuElem
	for segment := 1; segment <= 100; segment++ {
		reqURL := fmt.Sprintf("https://api.bilibili.com/x/v2/dm/web/seg.so?type=1&oid=%d&pid=%d&segment_index=%d", cid, aid, segment)
		resp, err := a.get(ctx, reqURL)
		if err != nil {
			return all, err
		}

		if resp.StatusCode == http.StatusNotModified {
			resp.Body.Close()
			break
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil || len(body) == 0 {
			break
		}

		elems, err := decodeDmSegMobileReply(body)
		if err != nil || len(elems) == 0 {
			break
		}
		all = append(all, elems...)
	}
	return all, nil
}
