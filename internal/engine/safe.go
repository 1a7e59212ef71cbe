package engine

import (
	"fmt"
)

// Safe guards calls into an engine: errors are wrapped with ErrEngine and
// panics are recovered into errors. Optional capabilities report ok=false
// when the engine does not implement them.
type Safe struct {
	e Engine
}

func Wrap(e Engine) Safe { return Safe{e: e} }

func (s Safe) Engine() Engine { return s.e }

func (s Safe) Name() string { return s.e.Name() }

func (s Safe) Version() int { return s.e.Version() }

func guard(op string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %s: panic: %v", ErrEngine, op, r)
		return
	}
	if *err != nil {
		*err = fmt.Errorf("%w: %s: %v", ErrEngine, op, *err)
	}
}

func (s Safe) Init(p InitParams) (st State, err error) {
	defer guard("init", &err)
	return s.e.Init(p)
}

func (s Safe) Move(st State, move string, player int) (out State, err error) {
	defer guard("move", &err)
	return s.e.Move(st, move, player)
}

func (s Safe) DropPlayer(st State, player int) (out State, err error) {
	defer guard("drop_player", &err)
	return s.e.DropPlayer(st, player)
}

func (s Safe) CurrentPlayers(st State) (out []int, err error) {
	defer guard("current_players", &err)
	return s.e.CurrentPlayers(st)
}

func (s Safe) Scores(st State) (out []float64, err error) {
	defer guard("scores", &err)
	return s.e.Scores(st)
}

func (s Safe) Ended(st State) (out bool, err error) {
	defer guard("ended", &err)
	return s.e.Ended(st)
}

func (s Safe) Rankings(st State) (out []int, ok bool, err error) {
	r, ok := s.e.(Ranker)
	if !ok {
		return nil, false, nil
	}
	defer guard("rankings", &err)
	out, err = r.Rankings(st)
	return out, true, err
}

func (s Safe) Cancelled(st State) (out bool, err error) {
	c, ok := s.e.(Canceller)
	if !ok {
		return false, nil
	}
	defer guard("cancelled", &err)
	return c.Cancelled(st)
}

func (s Safe) Factions(st State) (out []string, ok bool, err error) {
	f, ok := s.e.(Factioner)
	if !ok {
		return nil, false, nil
	}
	defer guard("factions", &err)
	out, err = f.Factions(st)
	return out, true, err
}

func (s Safe) Round(st State) (out int, ok bool, err error) {
	r, ok := s.e.(Rounder)
	if !ok {
		return 0, false, nil
	}
	defer guard("round", &err)
	out, err = r.Round(st)
	return out, true, err
}

// StripSecret returns st unchanged when the engine keeps no secrets.
func (s Safe) StripSecret(st State, viewer int) (out State, err error) {
	ss, ok := s.e.(SecretStripper)
	if !ok {
		return st, nil
	}
	defer guard("strip_secret", &err)
	return ss.StripSecret(st, viewer)
}

// ToSave returns st unchanged when the engine has no compact form.
func (s Safe) ToSave(st State) (out State, err error) {
	sv, ok := s.e.(Saver)
	if !ok {
		return st, nil
	}
	defer guard("to_save", &err)
	return sv.ToSave(st)
}

func (s Safe) Messages(st State) (out []string, err error) {
	m, ok := s.e.(Messenger)
	if !ok {
		return nil, nil
	}
	defer guard("messages", &err)
	return m.Messages(st)
}
