// Package slp decodes Slippi replay files into game records.
//
// A replay is a UBJSON object with a "raw" byte array holding the event
// stream and an optional "metadata" object. Only the events needed to
// summarize a match are interpreted; every other event is skipped using the
// sizes announced by the leading Event Payloads event.
package slp

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Event command bytes.
const (
	EventPayloads   byte = 0x35
	EventGameStart  byte = 0x36
	EventPreFrame   byte = 0x37
	EventPostFrame  byte = 0x38
	EventGameEnd    byte = 0x39
	EventFrameStart byte = 0x3A
)

// PlayerTypeEmpty marks an unoccupied port in the game start block.
const PlayerTypeEmpty = 3

const (
	offsetStage       = 0x12
	offsetPlayerBlock = 0x64
	playerBlockSize   = 0x24
	gameStartMinSize  = offsetPlayerBlock + 3*playerBlockSize + 2
	numPorts          = 4
)

// Header is the fixed prefix of every replay: `{U\x03raw[$U#l`.
var Header = []byte{'{', 'U', 3, 'r', 'a', 'w', '[', '$', 'U', '#', 'l'}

var metadataKey = []byte{'U', 8, 'm', 'e', 't', 'a', 'd', 'a', 't', 'a'}

var (
	// ErrBadHeader is returned when the stream does not start with a replay header.
	ErrBadHeader = errors.New("slp: not a replay file")
	// ErrNoGameStart is returned when the event stream has no game start event.
	ErrNoGameStart = errors.New("slp: missing game start")
)

// Player is an occupied port from the game start block. Port is 0-based.
type Player struct {
	Port        int
	CharacterID uint8
	Type        uint8
}

// Start holds the game start event.
type Start struct {
	Version [4]byte
	StageID uint16
	Players []Player
}

// PlayerEnd is a port's final placement; 0 is the winner.
type PlayerEnd struct {
	Port      int
	Placement int
}

// End holds the game end event.
type End struct {
	Method  uint8
	Players []PlayerEnd
}

// FrameID is one entry of the frame index. Valid is false for a frame whose
// number could not be recovered.
type FrameID struct {
	N     int32
	Valid bool
}

// Game is a decoded replay.
type Game struct {
	Start    Start
	End      *End
	Metadata map[string]interface{}
	Frames   []FrameID
}

// Decoder decodes replays from a byte stream.
type Decoder struct{}

// Decode implements the replay decoder used by the parser.
func (Decoder) Decode(r io.Reader) (*Game, error) {
	return Read(r)
}

// Read decodes a full replay from r.
func Read(r io.Reader) (*Game, error) {
	br := bufio.NewReader(r)
	head := make([]byte, len(Header))
	if _, err := io.ReadFull(br, head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if !bytes.Equal(head, Header) {
		return nil, ErrBadHeader
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("failed to read raw length: %w", err)
	}
	rawLen := int64(binary.BigEndian.Uint32(lenBuf[:]))

	game := &Game{}
	// A zero length is written while a game is still in progress; the
	// event stream then runs until the metadata key or the end of file.
	var events io.Reader = br
	if rawLen > 0 {
		events = io.LimitReader(br, rawLen)
	}
	ev := eventReader{r: bufio.NewReader(events), open: rawLen == 0}
	if err := ev.decode(game); err != nil {
		return nil, err
	}
	if rawLen > 0 {
		// The limit reader may leave bytes unread if the stream was cut short.
		if _, err := io.Copy(io.Discard, events); err != nil {
			return nil, fmt.Errorf("failed to skip raw events: %w", err)
		}
		md, err := readMetadata(br)
		if err != nil {
			return nil, err
		}
		game.Metadata = md
	} else if ev.sawMetadata {
		md, err := readMetadata(io.MultiReader(bytes.NewReader([]byte{'U'}), ev.r))
		if err != nil {
			return nil, err
		}
		game.Metadata = md
	}
	return game, nil
}

type eventReader struct {
	r           *bufio.Reader
	open        bool
	sizes       map[byte]int
	lastFrame   int32
	haveFrame   bool
	sawStart    bool
	sawMetadata bool
}

func (e *eventReader) decode(game *Game) error {
	for {
		cmd, err := e.r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if e.sizes == nil {
			if cmd != EventPayloads {
				return fmt.Errorf("slp: first event is 0x%02x, expected payload sizes", cmd)
			}
			if err := e.readPayloadSizes(); err != nil {
				return err
			}
			continue
		}
		size, ok := e.sizes[cmd]
		if !ok {
			if e.open && cmd == 'U' {
				e.sawMetadata = true
				break
			}
			return fmt.Errorf("slp: unknown event 0x%02x", cmd)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(e.r, payload); err != nil {
			if e.open && errors.Is(err, io.ErrUnexpectedEOF) {
				// Truncated trailing event of an in-progress game.
				break
			}
			return fmt.Errorf("failed to read event 0x%02x: %w", cmd, err)
		}
		if err := e.handle(game, cmd, payload); err != nil {
			return err
		}
	}
	if !e.sawStart {
		return ErrNoGameStart
	}
	return nil
}

func (e *eventReader) readPayloadSizes() error {
	n, err := e.r.ReadByte()
	if err != nil {
		return fmt.Errorf("failed to read payload sizes: %w", err)
	}
	if n == 0 || (int(n)-1)%3 != 0 {
		return fmt.Errorf("slp: invalid payload sizes length %d", n)
	}
	buf := make([]byte, int(n)-1)
	if _, err := io.ReadFull(e.r, buf); err != nil {
		return fmt.Errorf("failed to read payload sizes: %w", err)
	}
	e.sizes = make(map[byte]int, len(buf)/3)
	for i := 0; i+2 < len(buf); i += 3 {
		e.sizes[buf[i]] = int(binary.BigEndian.Uint16(buf[i+1 : i+3]))
	}
	return nil
}

func (e *eventReader) handle(game *Game, cmd byte, payload []byte) error {
	switch cmd {
	case EventGameStart:
		start, err := parseGameStart(payload)
		if err != nil {
			return err
		}
		game.Start = start
		e.sawStart = true
	case EventPreFrame, EventFrameStart:
		if len(payload) < 4 {
			game.Frames = append(game.Frames, FrameID{})
			return nil
		}
		n := int32(binary.BigEndian.Uint32(payload[:4]))
		if e.haveFrame && n == e.lastFrame {
			return nil
		}
		e.lastFrame = n
		e.haveFrame = true
		game.Frames = append(game.Frames, FrameID{N: n, Valid: true})
	case EventGameEnd:
		game.End = parseGameEnd(payload)
	}
	return nil
}

func parseGameStart(payload []byte) (Start, error) {
	if len(payload) < gameStartMinSize {
		return Start{}, fmt.Errorf("slp: game start too short (%d bytes)", len(payload))
	}
	var start Start
	copy(start.Version[:], payload[:4])
	start.StageID = binary.BigEndian.Uint16(payload[offsetStage : offsetStage+2])
	for port := 0; port < numPorts; port++ {
		base := offsetPlayerBlock + port*playerBlockSize
		playerType := payload[base+1]
		if playerType == PlayerTypeEmpty {
			continue
		}
		start.Players = append(start.Players, Player{
			Port:        port,
			CharacterID: payload[base],
			Type:        playerType,
		})
	}
	return start, nil
}

func parseGameEnd(payload []byte) *End {
	end := &End{}
	if len(payload) > 0 {
		end.Method = payload[0]
	}
	// Placements were added in 3.13; older replays carry none.
	if len(payload) >= 2+numPorts {
		for port := 0; port < numPorts; port++ {
			placement := int8(payload[2+port])
			if placement < 0 {
				continue
			}
			end.Players = append(end.Players, PlayerEnd{Port: port, Placement: int(placement)})
		}
	}
	return end
}

func readMetadata(r io.Reader) (map[string]interface{}, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	key := make([]byte, len(metadataKey))
	n, err := io.ReadFull(br, key)
	if n == 0 || (n == 1 && key[0] == '}') {
		return nil, nil
	}
	if err != nil || !bytes.Equal(key, metadataKey) {
		// Unknown trailing keys are tolerated; metadata is optional.
		return nil, nil
	}
	v, err := newUBJSONDecoder(br).decodeValue()
	if err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	md, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("slp: metadata is %T, expected object", v)
	}
	return md, nil
}

// Lookup walks nested metadata objects by key and returns the string found
// at the end of the path.
func Lookup(md map[string]interface{}, path ...string) (string, bool) {
	var cur interface{} = md
	for _, key := range path {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		cur, ok = obj[key]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok
}
