package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panicky struct{}

func (panicky) Name() string { return "Panicky" }
func (panicky) Version() int { return 1 }
func (panicky) Init(InitParams) (State, error) { return State(`{}`), nil }
func (panicky) Move(State, string, int) (State, error) { panic("bad move table") }
func (panicky) DropPlayer(State, int) (State, error) { return nil, errors.New("cannot drop") }
func (panicky) CurrentPlayers(State) ([]int, error) { return []int{0}, nil }
func (panicky) Scores(State) ([]float64, error) { return []float64{0}, nil }
func (panicky) Ended(State) (bool, error) { return false, nil }
func (panicky) Rankings(State) ([]int, error) { panic("rankings") }

func TestSafeRecoversPanics(t *testing.T) {
	e := Wrap(panicky{})

	_, err := e.Move(State(`{}`), "x", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngine)
	assert.Contains(t, err.Error(), "bad move table")

	_, err = e.DropPlayer(State(`{}`), 0)
	assert.ErrorIs(t, err, ErrEngine)

	_, ok, err := e.Rankings(State(`{}`))
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrEngine)
}

func TestSafeOptionalCapabilities(t *testing.T) {
	e := Wrap(panicky{})
	st := State(`{"secret":1}`)

	_, ok, err := e.Factions(st)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = e.Round(st)
	assert.NoError(t, err)
	assert.False(t, ok)

	out, err := e.StripSecret(st, -1)
	assert.NoError(t, err)
	assert.Equal(t, st, out)

	out, err = e.ToSave(st)
	assert.NoError(t, err)
	assert.Equal(t, st, out)

	msgs, err := e.Messages(st)
	assert.NoError(t, err)
	assert.Nil(t, msgs)

	cancelled, err := e.Cancelled(st)
	assert.NoError(t, err)
	assert.False(t, cancelled)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(panicky{})
	e, err := r.Get(" panicky ")
	require.NoError(t, err)
	assert.Equal(t, "Panicky", e.Name())

	_, err = r.Get("go")
	assert.ErrorIs(t, err, ErrUnknown)
	assert.Equal(t, []string{"panicky"}, r.Names())
}
