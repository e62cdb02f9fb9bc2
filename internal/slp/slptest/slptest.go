// Package slptest builds replay files for tests.
package slptest

import (
	"bytes"
	"encoding/binary"
	"os"
	"sort"
	"strconv"

	"github.com/verte-zerg/eppi/internal/slp"
)

const (
	gameStartSize = 0x1A0
	frameSize     = 0x40
	gameEndSize   = 0x06
)

// Replay describes the content of a generated replay.
type Replay struct {
	StageID uint16
	// Ports lists occupied 0-based ports.
	Ports []int
	// Codes maps 0-based ports to connect codes stored in metadata.
	Codes map[int]string
	// NoMetadata omits the metadata object entirely.
	NoMetadata bool
	// Placements maps ports to final placements. Nil writes no game end event.
	Placements map[int]int
	// Frames are written as pre-frame events in order.
	Frames []int32
}

// OneVsOne returns a finished two-player replay where winner (0 or 1) took
// the game.
func OneVsOne(p1, p2 string, winner int) Replay {
	placements := map[int]int{0: 1, 1: 1}
	placements[winner] = 0
	return Replay{
		StageID:    31,
		Ports:      []int{0, 1},
		Codes:      map[int]string{0: p1, 1: p2},
		Placements: placements,
		Frames:     []int32{-123, -122, 0, 1, 3600},
	}
}

// Bytes encodes the replay.
func (r Replay) Bytes() []byte {
	raw := r.rawEvents()
	var buf bytes.Buffer
	buf.Write(slp.Header)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(raw)))
	buf.Write(raw)
	if !r.NoMetadata {
		buf.Write([]byte{'U', 8})
		buf.WriteString("metadata")
		writeValue(&buf, r.metadata())
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// BytesWithMetadata encodes the replay with payload written verbatim as the
// value of the metadata key.
func (r Replay) BytesWithMetadata(payload []byte) []byte {
	r.NoMetadata = true
	out := r.Bytes()
	out = out[:len(out)-1]
	out = append(out, 'U', 8)
	out = append(out, "metadata"...)
	out = append(out, payload...)
	return append(out, '}')
}

// WriteFile writes the encoded replay to path.
func (r Replay) WriteFile(path string) error {
	return os.WriteFile(path, r.Bytes(), 0o644)
}

func (r Replay) rawEvents() []byte {
	var buf bytes.Buffer
	sizes := [][2]int{
		{int(slp.EventGameStart), gameStartSize},
		{int(slp.EventPreFrame), frameSize},
		{int(slp.EventGameEnd), gameEndSize},
	}
	buf.WriteByte(slp.EventPayloads)
	buf.WriteByte(byte(len(sizes)*3 + 1))
	for _, s := range sizes {
		buf.WriteByte(byte(s[0]))
		_ = binary.Write(&buf, binary.BigEndian, uint16(s[1]))
	}

	start := make([]byte, gameStartSize)
	copy(start[:4], []byte{3, 14, 0, 0})
	binary.BigEndian.PutUint16(start[0x12:0x14], r.StageID)
	for port := 0; port < 4; port++ {
		start[0x64+port*0x24+1] = slp.PlayerTypeEmpty
	}
	for _, port := range r.Ports {
		base := 0x64 + port*0x24
		start[base] = 2
		start[base+1] = 0
	}
	buf.WriteByte(slp.EventGameStart)
	buf.Write(start)

	for _, frame := range r.Frames {
		for range r.Ports {
			payload := make([]byte, frameSize)
			binary.BigEndian.PutUint32(payload[:4], uint32(frame))
			buf.WriteByte(slp.EventPreFrame)
			buf.Write(payload)
		}
	}

	if r.Placements != nil {
		end := make([]byte, gameEndSize)
		end[0] = 2
		end[1] = 0xFF
		for port := 0; port < 4; port++ {
			placement := -1
			if p, ok := r.Placements[port]; ok {
				placement = p
			}
			end[2+port] = byte(int8(placement))
		}
		buf.WriteByte(slp.EventGameEnd)
		buf.Write(end)
	}
	return buf.Bytes()
}

func (r Replay) metadata() map[string]interface{} {
	players := map[string]interface{}{}
	for port, code := range r.Codes {
		players[strconv.Itoa(port)] = map[string]interface{}{
			"names": map[string]interface{}{
				"netplay": code,
				"code":    code,
			},
		}
	}
	md := map[string]interface{}{
		"startAt":  "2024-01-01T00:00:00Z",
		"playedOn": "dolphin",
		"players":  players,
	}
	if len(r.Frames) > 0 {
		md["lastFrame"] = int64(r.Frames[len(r.Frames)-1])
	}
	return md
}

func writeValue(buf *bytes.Buffer, v interface{}) {
	switch val := v.(type) {
	case nil:
		buf.WriteByte('Z')
	case string:
		buf.WriteByte('S')
		writeString(buf, val)
	case int64:
		buf.WriteByte('l')
		_ = binary.Write(buf, binary.BigEndian, int32(val))
	case map[string]interface{}:
		buf.WriteByte('{')
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeString(buf, k)
			writeValue(buf, val[k])
		}
		buf.WriteByte('}')
	}
}

func writeString(buf *bytes.Buffer, s string) {
	if len(s) < 256 {
		buf.WriteByte('U')
		buf.WriteByte(byte(len(s)))
	} else {
		buf.WriteByte('l')
		_ = binary.Write(buf, binary.BigEndian, int32(len(s)))
	}
	buf.WriteString(s)
}
