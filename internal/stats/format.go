package stats

import (
	"fmt"
	"time"

	"github.com/verte-zerg/eppi/internal/model"
)

// Cell values shared by the table renderers.
const (
	UnknownCell   = "Unknown"
	NotApplicable = "N/A"
)

const framesPerSecond = 60

// FormatDate renders t relative to now in whole days. Dates in the future
// render as UnknownCell.
func FormatDate(t, now time.Time) string {
	if t.After(now) {
		return UnknownCell
	}
	days := int(now.Sub(t) / (24 * time.Hour))
	switch {
	case days == 0:
		return "Today"
	case days == 1:
		return "1 day ago"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	case days < 30:
		if weeks := days / 7; weeks > 1 {
			return fmt.Sprintf("%d weeks ago", weeks)
		}
		return "1 week ago"
	}
	if months := days / 30; months > 1 {
		return fmt.Sprintf("%d months ago", months)
	}
	return "1 month ago"
}

// FormatDuration renders a frame count as m:ss. Games that ended during the
// countdown have negative frame ids and render as 0:00.
func FormatDuration(frames int) string {
	total := max(frames, 0) / framesPerSecond
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// WinRate returns the win percentage, 0 when no game counted.
func WinRate(wins, losses int) float64 {
	total := wins + losses
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total) * 100
}

// Outcome labels the result of r from the point of view of connectCode.
func Outcome(r model.ReplayInfo, connectCode string) string {
	switch r.Result {
	case model.ResultPlayer1Won:
		if connectCode != "" && r.Player1.Name == connectCode {
			return "WIN"
		}
		if connectCode != "" && r.Player2.Name == connectCode {
			return "LOSS"
		}
	case model.ResultPlayer2Won:
		if connectCode != "" && r.Player2.Name == connectCode {
			return "WIN"
		}
		if connectCode != "" && r.Player1.Name == connectCode {
			return "LOSS"
		}
	}
	return r.Result.String()
}

// OpponentName returns the other player of r, or false when connectCode is
// not in the replay.
func OpponentName(r model.ReplayInfo, connectCode string) (string, bool) {
	if connectCode == "" {
		return "", false
	}
	switch connectCode {
	case r.Player1.Name:
		return r.Player2.Name, true
	case r.Player2.Name:
		return r.Player1.Name, true
	}
	return "", false
}

// RankCell is the opponent rank column for the replay at index.
func RankCell(r model.ReplayInfo, index int, connectCode string) string {
	if _, ok := OpponentName(r, connectCode); !ok {
		return NotApplicable
	}
	if index == 0 && r.OpponentRank != "" {
		return r.OpponentRank
	}
	return UnknownCell
}

// ReplayRow renders the columns of one replay.
func ReplayRow(r model.ReplayInfo, index int, connectCode string, now time.Time) []string {
	date := UnknownCell
	if r.Date != nil {
		date = FormatDate(*r.Date, now)
	}
	duration := UnknownCell
	if r.Duration != nil {
		duration = FormatDuration(*r.Duration)
	}
	return []string{
		r.Player1.Name,
		r.Player2.Name,
		Outcome(r, connectCode),
		r.StageName,
		date,
		duration,
		RankCell(r, index, connectCode),
	}
}

// ReplayHeaders are the column titles matching ReplayRow.
var ReplayHeaders = []string{"Player 1", "Player 2", "Result", "Stage", "Date", "Duration", "Opponent Rank"}
