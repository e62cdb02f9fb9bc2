package stats

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/eppi/internal/model"
)

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Name", "Stage", "Time"}
	rows := [][]string{
		{"ME#1", "Battlefield", "1:05"},
		{"ジョン#9", "FD", "12:30"},
	}

	lines := formatTable(headers, rows, map[int]bool{2: true})
	require.Len(t, lines, 3)
	assert.Equal(t, "Name      Stage         Time", lines[0])
	assert.Equal(t, "ME#1      Battlefield   1:05", lines[1])
	assert.Equal(t, "ジョン#9  FD           12:30", lines[2])
}

func TestRenderReplays(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-30 * time.Hour)
	frames := 3600
	replays := []model.ReplayInfo{
		{
			Player1:      model.PlayerInfo{Name: "ME#1"},
			Player2:      model.PlayerInfo{Name: "OPP#2"},
			Result:       model.ResultPlayer2Won,
			StageName:    "Battlefield",
			Date:         &yesterday,
			Duration:     &frames,
			OpponentRank: "Gold 2",
		},
		{
			Player1:   model.PlayerInfo{Name: "A#1"},
			Player2:   model.PlayerInfo{Name: "B#2"},
			Result:    model.ResultUnknown,
			StageName: "Final Destination",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderReplays(&buf, replays, "ME#1", now, 0))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Player 1"))
	assert.Contains(t, lines[1], "LOSS")
	assert.Contains(t, lines[1], "1 day ago")
	assert.Contains(t, lines[1], "1:00")
	assert.Contains(t, lines[1], "Gold 2")
	assert.Contains(t, lines[2], "Unknown")
	assert.True(t, strings.HasSuffix(lines[2], "N/A"))
}

func TestRenderReplaysTruncatesToWidth(t *testing.T) {
	replays := []model.ReplayInfo{{Player1: model.PlayerInfo{Name: "A#1"}, Player2: model.PlayerInfo{Name: "B#2"}}}
	var buf bytes.Buffer
	require.NoError(t, RenderReplays(&buf, replays, "", time.Now(), 20))
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), 20)
	}
}

func TestRenderReplaysEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderReplays(&buf, nil, "", time.Now(), 0))
	assert.Equal(t, "No replays found.\n", buf.String())
}

func TestSummaryLine(t *testing.T) {
	a := NewAnalyzer()
	a.SetReplays([]model.ReplayInfo{
		{Player1: model.PlayerInfo{Name: "ME#1"}, Player2: model.PlayerInfo{Name: "X#1"}, Result: model.ResultPlayer1Won},
		{Player1: model.PlayerInfo{Name: "ME#1"}, Player2: model.PlayerInfo{Name: "X#1"}, Result: model.ResultPlayer2Won},
		{Player1: model.PlayerInfo{Name: "X#1"}, Player2: model.PlayerInfo{Name: "ME#1"}, Result: model.ResultPlayer2Won},
	})
	assert.Equal(t, "Showing 3 replays", SummaryLine(a, ""))
	assert.Equal(t, "Showing 3 replays | Your stats: 2/1 (66.7%)", SummaryLine(a, "ME#1"))
}

func TestRenderScans(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderScans(&buf, nil))
	assert.Equal(t, "No scans recorded.\n", buf.String())

	buf.Reset()
	scans := []model.ScanRecord{
		{Root: "/games/slippi", FinishedAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.Local), Candidates: 120, Parsed: 118, Skipped: 3, NewlyBad: 2, Elapsed: 1234567 * time.Microsecond},
	}
	require.NoError(t, RenderScans(&buf, scans))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "2024-06-01 10:00  /games/slippi"))
	assert.Contains(t, lines[1], "118")
	assert.True(t, strings.HasSuffix(lines[1], "1.235s"))
}
