// Package model defines shared data structures.
package model

import "time"

// UnknownName is used when a player's connect code cannot be resolved.
const UnknownName = "Unknown"

// Config defines the settings shared by the TUI and the CLI commands.
type Config struct {
	ReplayDir    string
	ConnectCode  string
	Workers      int
	RankEndpoint string
	RankTimeout  time.Duration
	RankRPS      float64
}

// GameResult is the side that won a match.
type GameResult int

const (
	// ResultUnknown means no winner could be determined.
	ResultUnknown GameResult = iota
	// ResultPlayer1Won means the side of ports 1/3 won.
	ResultPlayer1Won
	// ResultPlayer2Won means the side of ports 2/4 won.
	ResultPlayer2Won
)

func (r GameResult) String() string {
	switch r {
	case ResultPlayer1Won:
		return "P1 Win"
	case ResultPlayer2Won:
		return "P2 Win"
	default:
		return "Unknown"
	}
}

// PlayerInfo identifies one side of a match.
type PlayerInfo struct {
	Name string
}

// ReplayInfo summarizes a single replay file.
type ReplayInfo struct {
	Path      string
	Player1   PlayerInfo
	Player2   PlayerInfo
	Result    GameResult
	StageName string
	// Duration is the match length in frames.
	Duration *int
	// Date is the file modification time.
	Date *time.Time
	// OpponentRank is empty until a rank lookup fills it in.
	OpponentRank string
}

// HasPlayer reports whether tag matches either side exactly.
func (r ReplayInfo) HasPlayer(tag string) bool {
	return r.Player1.Name == tag || r.Player2.Name == tag
}

// ScanRecord is one completed scan as kept in the history database.
type ScanRecord struct {
	ID         int64
	Root       string
	FinishedAt time.Time
	Candidates int
	Parsed     int
	Skipped    int
	NewlyBad   int
	Elapsed    time.Duration
}
