// Package replay scans replay directories and parses replay files into
// match summaries.
package replay

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/verte-zerg/eppi/internal/model"
	"github.com/verte-zerg/eppi/internal/slp"
)

// ErrInsufficientPlayers is returned for replays with fewer than two players.
var ErrInsufficientPlayers = errors.New("replay has fewer than two players")

// Decoder turns a replay byte stream into a game record.
type Decoder interface {
	Decode(r io.Reader) (*slp.Game, error)
}

// Parser builds ReplayInfo values from replay files.
type Parser struct {
	decoder Decoder
}

// NewParser returns a parser using dec, or the bundled slp decoder when dec is nil.
func NewParser(dec Decoder) *Parser {
	if dec == nil {
		dec = slp.Decoder{}
	}
	return &Parser{decoder: dec}
}

// Parse decodes the replay at path.
func (p *Parser) Parse(path string) (model.ReplayInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return model.ReplayInfo{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only replay.
			_ = cerr
		}
	}()

	game, err := p.decoder.Decode(file)
	if err != nil {
		return model.ReplayInfo{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if game == nil {
		return model.ReplayInfo{}, fmt.Errorf("failed to decode %s: empty game", path)
	}
	if len(game.Start.Players) < 2 {
		return model.ReplayInfo{}, fmt.Errorf("%s: %w", path, ErrInsufficientPlayers)
	}

	info := model.ReplayInfo{
		Path:      path,
		Player1:   model.PlayerInfo{Name: playerName(game.Metadata, 0)},
		Player2:   model.PlayerInfo{Name: playerName(game.Metadata, 1)},
		Result:    gameResult(game.End),
		StageName: StageName(game.Start.StageID),
		Duration:  lastFrame(game.Frames),
	}
	if stat, err := file.Stat(); err == nil {
		modTime := stat.ModTime()
		info.Date = &modTime
	}
	return info, nil
}

func playerName(md map[string]interface{}, port int) string {
	if md == nil {
		return model.UnknownName
	}
	code, ok := slp.Lookup(md, "players", strconv.Itoa(port), "names", "code")
	if !ok {
		return model.UnknownName
	}
	return code
}

// gameResult maps the winning port to a side: ports 1/3 (0-based 0/2) are
// player 1, ports 2/4 (0-based 1/3) are player 2.
func gameResult(end *slp.End) model.GameResult {
	if end == nil {
		return model.ResultUnknown
	}
	for _, p := range end.Players {
		if p.Placement != 0 {
			continue
		}
		if p.Port%2 == 0 {
			return model.ResultPlayer1Won
		}
		return model.ResultPlayer2Won
	}
	return model.ResultUnknown
}

func lastFrame(frames []slp.FrameID) *int {
	if len(frames) == 0 {
		return nil
	}
	last := frames[len(frames)-1]
	if !last.Valid {
		return nil
	}
	n := int(last.N)
	return &n
}
