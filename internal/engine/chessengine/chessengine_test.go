package chessengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/turnkeeper/internal/engine"
)

func TestFoolsMate(t *testing.T) {
	e := engine.Wrap(New())
	st, err := e.Init(engine.InitParams{Players: 2})
	require.NoError(t, err)

	cur, err := e.CurrentPlayers(st)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, cur)

	moves := []struct {
		uci    string
		player int
	}{{"f2f3", 0}, {"e7e5", 1}, {"g2g4", 0}, {"d8h4", 1}}
	for _, m := range moves {
		st, err = e.Move(st, m.uci, m.player)
		require.NoError(t, err, m.uci)
	}

	ended, err := e.Ended(st)
	require.NoError(t, err)
	assert.True(t, ended)

	scores, err := e.Scores(st)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, scores)

	cur, err = e.CurrentPlayers(st)
	require.NoError(t, err)
	assert.Empty(t, cur)

	msgs, err := e.Messages(st)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Black wins")

	round, ok, err := e.Round(st)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, round)
}

func TestMoveRejections(t *testing.T) {
	e := engine.Wrap(New())
	st, err := e.Init(engine.InitParams{Players: 2})
	require.NoError(t, err)

	_, err = e.Move(st, "e7e5", 1)
	assert.ErrorIs(t, err, ErrNotYourTurn)
	assert.ErrorIs(t, err, engine.ErrEngine)

	_, err = e.Move(st, "e2e5", 0)
	assert.ErrorIs(t, err, ErrIllegalMove)

	st, err = e.Move(st, "Nf3", 0)
	require.NoError(t, err, "SAN input is accepted")
	cur, err := e.CurrentPlayers(st)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, cur)
}

func TestInitNeedsTwoPlayers(t *testing.T) {
	_, err := engine.Wrap(New()).Init(engine.InitParams{Players: 3})
	assert.ErrorIs(t, err, ErrPlayerCount)
}

func TestDropEndsGame(t *testing.T) {
	e := engine.Wrap(New())
	st, err := e.Init(engine.InitParams{Players: 2})
	require.NoError(t, err)

	st, err = e.DropPlayer(st, 0)
	require.NoError(t, err)

	ended, err := e.Ended(st)
	require.NoError(t, err)
	assert.True(t, ended)

	scores, err := e.Scores(st)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, scores)

	saved, err := e.ToSave(st)
	require.NoError(t, err)
	msgs, err := e.Messages(saved)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
