// Package stats holds the scanned replays, the player's record and the
// opponent rank lookup flow.
package stats

import (
	"context"
	"errors"

	"github.com/verte-zerg/eppi/internal/model"
)

// NegativeRank is cached after a failed lookup so the opponent is not
// requested again until the next rescan.
const NegativeRank = "Unknown"

var (
	// ErrNoReplays is returned when a lookup is requested before any replay
	// was loaded.
	ErrNoReplays = errors.New("no replays loaded")
	// ErrNotInReplay is returned when the connect code is not one of the two
	// players of the most recent replay.
	ErrNotInReplay = errors.New("connect code not found in most recent replay")
)

// Fetcher resolves a connect code to a rank label.
type Fetcher interface {
	FetchRank(ctx context.Context, connectCode string) (string, error)
}

// RankLookup describes what BeginRankLookup decided.
type RankLookup struct {
	Opponent string
	// Cached is the cached rank when Hit is true.
	Cached string
	Hit    bool
}

// Analyzer owns the replay list and the per-scan rank cache. It is not safe
// for concurrent use; the UI touches it from its update loop only.
type Analyzer struct {
	replays   []model.ReplayInfo
	rankCache map[string]string
}

// NewAnalyzer returns an empty analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{rankCache: make(map[string]string)}
}

// SetReplays replaces the replay list and clears every cached rank.
func (a *Analyzer) SetReplays(replays []model.ReplayInfo) {
	a.replays = replays
	a.rankCache = make(map[string]string)
}

// Replays returns the current list, newest first.
func (a *Analyzer) Replays() []model.ReplayInfo {
	return a.replays
}

// StatsForPlayer counts wins and losses of the player with the given tag.
// Matching is exact; replays without a known result count for neither.
func (a *Analyzer) StatsForPlayer(tag string) (wins, losses int) {
	for _, r := range a.replays {
		isP1 := r.Player1.Name == tag
		isP2 := r.Player2.Name == tag
		if !isP1 && !isP2 {
			continue
		}
		switch r.Result {
		case model.ResultPlayer1Won:
			if isP1 {
				wins++
			} else {
				losses++
			}
		case model.ResultPlayer2Won:
			if isP2 {
				wins++
			} else {
				losses++
			}
		}
	}
	return wins, losses
}

// CachedRank returns the cached rank for tag, including the negative entry.
func (a *Analyzer) CachedRank(tag string) (string, bool) {
	rank, ok := a.rankCache[tag]
	return rank, ok
}

// BeginRankLookup picks the opponent in the most recent replay. On a cache hit
// the replay is annotated immediately and no request is needed.
func (a *Analyzer) BeginRankLookup(connectCode string) (RankLookup, error) {
	if len(a.replays) == 0 {
		return RankLookup{}, ErrNoReplays
	}
	latest := &a.replays[0]
	var opponent string
	switch connectCode {
	case latest.Player1.Name:
		opponent = latest.Player2.Name
	case latest.Player2.Name:
		opponent = latest.Player1.Name
	default:
		return RankLookup{}, ErrNotInReplay
	}
	if rank, ok := a.rankCache[opponent]; ok {
		latest.OpponentRank = rank
		return RankLookup{Opponent: opponent, Cached: rank, Hit: true}, nil
	}
	return RankLookup{Opponent: opponent}, nil
}

// ApplyRankResult records the outcome of a lookup for tag. A failure caches
// NegativeRank. The result is applied even if the list was rescanned in the
// meantime.
func (a *Analyzer) ApplyRankResult(tag, rank string, err error) {
	if err != nil {
		a.rankCache[tag] = NegativeRank
		return
	}
	a.rankCache[tag] = rank
	if len(a.replays) > 0 {
		a.replays[0].OpponentRank = rank
	}
}

// LookupOpponentRank runs the whole lookup synchronously. It returns the
// resolved lookup and the fetch error, if any.
func (a *Analyzer) LookupOpponentRank(ctx context.Context, fetcher Fetcher, connectCode string) (RankLookup, error) {
	lookup, err := a.BeginRankLookup(connectCode)
	if err != nil || lookup.Hit {
		return lookup, err
	}
	rank, err := fetcher.FetchRank(ctx, lookup.Opponent)
	a.ApplyRankResult(lookup.Opponent, rank, err)
	if err != nil {
		return lookup, err
	}
	lookup.Cached = rank
	return lookup, nil
}
