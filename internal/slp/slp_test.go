package slp_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/eppi/internal/slp"
	"github.com/verte-zerg/eppi/internal/slp/slptest"
)

func TestReadOneVsOne(t *testing.T) {
	data := slptest.OneVsOne("AAA#111", "BBB#222", 1).Bytes()

	game, err := slp.Read(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, uint16(31), game.Start.StageID)
	require.Len(t, game.Start.Players, 2)
	assert.Equal(t, 0, game.Start.Players[0].Port)
	assert.Equal(t, 1, game.Start.Players[1].Port)

	require.NotNil(t, game.End)
	assert.Contains(t, game.End.Players, slp.PlayerEnd{Port: 1, Placement: 0})
	assert.Contains(t, game.End.Players, slp.PlayerEnd{Port: 0, Placement: 1})

	code, ok := slp.Lookup(game.Metadata, "players", "0", "names", "code")
	require.True(t, ok)
	assert.Equal(t, "AAA#111", code)

	require.NotEmpty(t, game.Frames)
	last := game.Frames[len(game.Frames)-1]
	assert.True(t, last.Valid)
	assert.Equal(t, int32(3600), last.N)
}

func TestReadDeduplicatesFramesAcrossPorts(t *testing.T) {
	replay := slptest.OneVsOne("A#1", "B#2", 0)
	replay.Frames = []int32{-123, -122, -121}

	game, err := slp.Read(bytes.NewReader(replay.Bytes()))
	require.NoError(t, err)
	assert.Len(t, game.Frames, 3)
}

func TestReadWithoutMetadataOrGameEnd(t *testing.T) {
	replay := slptest.Replay{
		StageID:    8,
		Ports:      []int{0, 2},
		NoMetadata: true,
	}

	game, err := slp.Read(bytes.NewReader(replay.Bytes()))
	require.NoError(t, err)
	assert.Nil(t, game.Metadata)
	assert.Nil(t, game.End)
	assert.Empty(t, game.Frames)
	require.Len(t, game.Start.Players, 2)
	assert.Equal(t, 2, game.Start.Players[1].Port)
}

func TestReadRejectsGarbage(t *testing.T) {
	_, err := slp.Read(bytes.NewReader([]byte("definitely not a replay")))
	require.ErrorIs(t, err, slp.ErrBadHeader)
}

func TestReadRejectsTruncatedEvents(t *testing.T) {
	data := slptest.OneVsOne("A#1", "B#2", 0).Bytes()
	// Keep the header and length but cut the event stream short.
	_, err := slp.Read(bytes.NewReader(data[:len(slp.Header)+4+20]))
	require.Error(t, err)
}

func TestReadRejectsDeeplyNestedMetadata(t *testing.T) {
	payload := bytes.Repeat([]byte{'['}, 1<<20)
	data := slptest.OneVsOne("A#1", "B#2", 0).BytesWithMetadata(payload)

	_, err := slp.Read(bytes.NewReader(data))
	require.ErrorIs(t, err, slp.ErrTooDeep)
}

func TestReadAcceptsModeratelyNestedMetadata(t *testing.T) {
	depth := 32
	payload := []byte{'{', 'U', 1, 'x'}
	payload = append(payload, bytes.Repeat([]byte{'['}, depth)...)
	payload = append(payload, bytes.Repeat([]byte{']'}, depth)...)
	payload = append(payload, '}')
	data := slptest.OneVsOne("A#1", "B#2", 0).BytesWithMetadata(payload)

	game, err := slp.Read(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Contains(t, game.Metadata, "x")
}

func TestReadRejectsZeroWidthAmplification(t *testing.T) {
	// An outer typed array of 255 arrays, each declaring 2^24 nulls that take
	// no bytes to encode.
	payload := []byte{'[', '$', '[', '#', 'U', 0xff}
	payload = append(payload, bytes.Repeat([]byte{'$', 'Z', '#', 'l', 0x01, 0x00, 0x00, 0x00}, 255)...)
	data := slptest.OneVsOne("A#1", "B#2", 0).BytesWithMetadata(payload)

	_, err := slp.Read(bytes.NewReader(data))
	require.ErrorIs(t, err, slp.ErrTooLarge)
}

func FuzzRead(f *testing.F) {
	f.Add(slptest.OneVsOne("AAA#111", "BBB#222", 0).Bytes())
	f.Add(slptest.Replay{StageID: 8, Ports: []int{0, 2}, NoMetadata: true}.Bytes())
	f.Add(slptest.OneVsOne("A#1", "B#2", 1).BytesWithMetadata([]byte("[[[[")))
	f.Add([]byte("definitely not a replay"))

	f.Fuzz(func(t *testing.T, data []byte) {
		game, err := slp.Read(bytes.NewReader(data))
		if err == nil {
			assert.NotNil(t, game)
		}
	})
}

func TestLookupMissingPath(t *testing.T) {
	md := map[string]interface{}{"players": map[string]interface{}{}}
	_, ok := slp.Lookup(md, "players", "1", "names", "code")
	assert.False(t, ok)
	_, ok = slp.Lookup(nil, "players")
	assert.False(t, ok)
}
