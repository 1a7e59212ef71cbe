// Package chessengine is the reference two-player engine, backed by
// corentings/chess. Player 0 plays white.
package chessengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/turnkeeper/internal/engine"
)

const (
	Name    = "chess"
	version = 1
)

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrNotYourTurn = errors.New("not your turn")
	ErrPlayerCount = errors.New("chess needs exactly two players")
)

type state struct {
	Moves   []string `json:"moves"`
	Dropped [2]bool  `json:"dropped"`
	FEN     string   `json:"fen,omitempty"`
	// Log holds the messages produced by the last change.
	Log []string `json:"log,omitempty"`
}

type Engine struct{}

func New() *Engine { return &Engine{} }

var (
	_ engine.Engine    = (*Engine)(nil)
	_ engine.Factioner = (*Engine)(nil)
	_ engine.Rounder   = (*Engine)(nil)
	_ engine.Messenger = (*Engine)(nil)
	_ engine.Saver     = (*Engine)(nil)
)

func (*Engine) Name() string { return Name }
func (*Engine) Version() int { return version }

func (*Engine) Init(p engine.InitParams) (engine.State, error) {
	if p.Players != 2 {
		return nil, ErrPlayerCount
	}
	return encode(&state{Moves: []string{}, FEN: nchess.NewGame().FEN()})
}

func (*Engine) Move(raw engine.State, move string, player int) (engine.State, error) {
	st, game, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if finished(st, game) {
		return nil, fmt.Errorf("game is over")
	}
	if turnIndex(game) != player {
		return nil, ErrNotYourTurn
	}
	uci := strings.ToLower(strings.TrimSpace(move))
	if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		// fall back to SAN input
		if err2 := game.PushNotationMove(strings.TrimSpace(move), nchess.AlgebraicNotation{}, nil); err2 != nil {
			return nil, fmt.Errorf("%w: %s", ErrIllegalMove, move)
		}
		moves := game.Moves()
		uci = moves[len(moves)-1].String()
	}
	st.Moves = append(st.Moves, uci)
	st.FEN = game.FEN()
	st.Log = nil
	if msg := outcomeMessage(game); msg != "" {
		st.Log = []string{msg}
	}
	return encode(st)
}

func (*Engine) DropPlayer(raw engine.State, player int) (engine.State, error) {
	if player < 0 || player > 1 {
		return nil, fmt.Errorf("player index %d out of range", player)
	}
	st, _, err := decode(raw)
	if err != nil {
		return nil, err
	}
	st.Dropped[player] = true
	st.Log = []string{fmt.Sprintf("%s forfeits", colorName(player))}
	return encode(st)
}

func (*Engine) CurrentPlayers(raw engine.State) ([]int, error) {
	st, game, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if finished(st, game) {
		return nil, nil
	}
	return []int{turnIndex(game)}, nil
}

func (*Engine) Scores(raw engine.State) ([]float64, error) {
	st, game, err := decode(raw)
	if err != nil {
		return nil, err
	}
	switch {
	case st.Dropped[0] && st.Dropped[1]:
		return []float64{0, 0}, nil
	case st.Dropped[0]:
		return []float64{0, 1}, nil
	case st.Dropped[1]:
		return []float64{1, 0}, nil
	}
	switch game.Outcome() {
	case nchess.WhiteWon:
		return []float64{1, 0}, nil
	case nchess.BlackWon:
		return []float64{0, 1}, nil
	case nchess.Draw:
		return []float64{0.5, 0.5}, nil
	}
	return []float64{0, 0}, nil
}

func (*Engine) Ended(raw engine.State) (bool, error) {
	st, game, err := decode(raw)
	if err != nil {
		return false, err
	}
	return finished(st, game), nil
}

func (*Engine) Factions(engine.State) ([]string, error) {
	return []string{"white", "black"}, nil
}

func (*Engine) Round(raw engine.State) (int, error) {
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return 0, err
	}
	return len(st.Moves)/2 + 1, nil
}

func (*Engine) Messages(raw engine.State) ([]string, error) {
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return st.Log, nil
}

// ToSave drops the transient message log.
func (*Engine) ToSave(raw engine.State) (engine.State, error) {
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	st.Log = nil
	return encode(&st)
}

func decode(raw engine.State) (*state, *nchess.Game, error) {
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, nil, fmt.Errorf("decode chess state: %w", err)
	}
	game := nchess.NewGame()
	for _, mv := range st.Moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, nil, fmt.Errorf("replay %s: %w", mv, err)
		}
	}
	return &st, game, nil
}

func encode(st *state) (engine.State, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func finished(st *state, game *nchess.Game) bool {
	return st.Dropped[0] || st.Dropped[1] || game.Outcome() != nchess.NoOutcome
}

func turnIndex(game *nchess.Game) int {
	if game.Position().Turn() == nchess.White {
		return 0
	}
	return 1
}

func colorName(player int) string {
	if player == 0 {
		return "White"
	}
	return "Black"
}

func outcomeMessage(game *nchess.Game) string {
	method := strings.ToLower(game.Method().String())
	switch game.Outcome() {
	case nchess.WhiteWon:
		return "White wins by " + method
	case nchess.BlackWon:
		return "Black wins by " + method
	case nchess.Draw:
		return "Draw by " + method
	}
	return ""
}
