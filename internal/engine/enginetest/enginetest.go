// Package enginetest provides a small deterministic engine for tests of the
// game core.
//
// Players act in seat order, skipping dropped ones. Every move adds one
// point to the mover. The game ends after Limit moves (engine option
// {"limit": n}, default 10) or once every player dropped. Moves named
// "boom" panic.
package enginetest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/park285/turnkeeper/internal/engine"
)

const Name = "stub"

var ErrBadMove = errors.New("bad move")

type State struct {
	Players int       `json:"players"`
	Turn    int       `json:"turn"`
	Moves   int       `json:"moves"`
	Limit   int       `json:"limit"`
	Dropped []bool    `json:"dropped"`
	Scores  []float64 `json:"scores"`
	Secret  string    `json:"secret,omitempty"`
	Log     []string  `json:"log,omitempty"`
}

type Engine struct {
	// FailDrop makes DropPlayer panic, to simulate a faulty plugin.
	FailDrop bool
	name     string
}

func New() *Engine { return &Engine{name: Name} }

// Named returns an engine registered under a different boardgame name.
func Named(name string, failDrop bool) *Engine { return &Engine{name: name, FailDrop: failDrop} }

var (
	_ engine.Engine         = (*Engine)(nil)
	_ engine.SecretStripper = (*Engine)(nil)
	_ engine.Messenger      = (*Engine)(nil)
)

func (e *Engine) Name() string { return e.name }
func (*Engine) Version() int   { return 1 }

func (*Engine) Init(p engine.InitParams) (engine.State, error) {
	if p.Players < 1 {
		return nil, fmt.Errorf("need players")
	}
	st := State{Players: p.Players, Limit: 10, Dropped: make([]bool, p.Players), Scores: make([]float64, p.Players), Secret: p.Seed}
	if len(p.Options) > 0 {
		var o struct {
			Limit int `json:"limit"`
		}
		if err := json.Unmarshal(p.Options, &o); err != nil {
			return nil, err
		}
		if o.Limit > 0 {
			st.Limit = o.Limit
		}
	}
	return encode(&st)
}

func (*Engine) Move(raw engine.State, move string, player int) (engine.State, error) {
	st, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if move == "boom" {
		panic("stub engine exploded")
	}
	if move == "" {
		return nil, ErrBadMove
	}
	if player != st.Turn {
		return nil, fmt.Errorf("player %d moved out of turn", player)
	}
	st.Scores[player]++
	st.Moves++
	st.Log = []string{fmt.Sprintf("seat %d played %s", player, move)}
	st.Turn = st.next(st.Turn)
	return encode(st)
}

func (e *Engine) DropPlayer(raw engine.State, player int) (engine.State, error) {
	if e.FailDrop {
		panic("drop not supported")
	}
	st, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	st.Dropped[player] = true
	st.Log = nil
	if st.Turn == player {
		st.Turn = st.next(player)
	}
	return encode(st)
}

func (*Engine) CurrentPlayers(raw engine.State) ([]int, error) {
	st, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if st.ended() {
		return nil, nil
	}
	return []int{st.Turn}, nil
}

func (*Engine) Scores(raw engine.State) ([]float64, error) {
	st, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return st.Scores, nil
}

func (*Engine) Ended(raw engine.State) (bool, error) {
	st, err := Decode(raw)
	if err != nil {
		return false, err
	}
	return st.ended(), nil
}

func (*Engine) StripSecret(raw engine.State, viewer int) (engine.State, error) {
	if viewer >= 0 {
		return raw, nil
	}
	st, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	st.Secret = ""
	return encode(st)
}

func (*Engine) Messages(raw engine.State) ([]string, error) {
	st, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return st.Log, nil
}

func Decode(raw engine.State) (*State, error) {
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func encode(st *State) (engine.State, error) { return json.Marshal(st) }

func (st *State) ended() bool {
	if st.Moves >= st.Limit {
		return true
	}
	for _, d := range st.Dropped {
		if !d {
			return false
		}
	}
	return true
}

// next returns the seat after i that has not dropped, or i when none is left.
func (st *State) next(i int) int {
	for k := 1; k <= st.Players; k++ {
		j := (i + k) % st.Players
		if !st.Dropped[j] {
			return j
		}
	}
	return i
}
