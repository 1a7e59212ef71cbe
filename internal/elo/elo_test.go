package elo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/turnkeeper/internal/domain"
)

func eloDiff(a, b Participant, droppedGame bool) int {
	d := Compute([]Participant{a, b}, droppedGame)
	return d[0] - d[1]
}

func TestExpectedAndK(t *testing.T) {
	assert.InDelta(t, 0.5, Expected(1500, 1500), 1e-9)
	assert.InDelta(t, 1, Expected(1500, 1400)+Expected(1400, 1500), 1e-9)
	assert.Greater(t, Expected(1600, 1400), 0.5)

	assert.Equal(t, 60.0, KFactor(0))
	assert.Equal(t, 60.0, KFactor(9))
	assert.Equal(t, 40.0, KFactor(10))
	assert.Equal(t, 40.0, KFactor(19))
	assert.Equal(t, 20.0, KFactor(20))
}

func TestScenarioSimpleWin(t *testing.T) {
	a := Participant{ID: "a", Score: 0, Elo: domain.EloRecord{Value: 105, Games: 105}}
	b := Participant{ID: "b", Score: 0, Dropped: true, Elo: domain.EloRecord{Value: 106, Games: 105}}
	assert.Greater(t, eloDiff(a, b, false), 10)
}

func TestScenarioDropPenalty(t *testing.T) {
	a := Participant{ID: "a", Score: 10, Dropped: true, Elo: domain.EloRecord{Value: 130, Games: 105}}
	b := Participant{ID: "b", Score: 0, Elo: domain.EloRecord{Value: 106, Games: 105}}
	assert.Less(t, eloDiff(a, b, false), 0)
}

func TestScenarioMutualDrop(t *testing.T) {
	a := Participant{ID: "a", Score: 5, Dropped: true, Elo: domain.EloRecord{Value: 130, Games: 105}}
	b := Participant{ID: "b", Score: 0, Dropped: true, Elo: domain.EloRecord{Value: 106, Games: 105}}
	assert.Equal(t, 0, eloDiff(a, b, false))
	assert.Equal(t, []int{0, 0}, Compute([]Participant{a, b}, false))
}

func TestScenarioCancelledByOther(t *testing.T) {
	a := Participant{ID: "a", Score: 5, Elo: domain.EloRecord{Value: 130, Games: 105}}
	b := Participant{ID: "b", Score: 0, Elo: domain.EloRecord{Value: 106, Games: 105}}
	assert.Equal(t, 0, eloDiff(a, b, true))
}

func TestTwoPlayerRawDeltasAreOpposite(t *testing.T) {
	cases := [][2]Participant{
		{{Score: 3, Elo: domain.EloRecord{Value: 1200, Games: 30}}, {Score: 1, Elo: domain.EloRecord{Value: 1400, Games: 30}}},
		{{Score: 1, Elo: domain.EloRecord{Value: 900, Games: 50}}, {Score: 1, Elo: domain.EloRecord{Value: 1000, Games: 50}}},
		{{Score: 0, Elo: domain.EloRecord{Value: 0, Games: 25}}, {Score: 2, Elo: domain.EloRecord{Value: 150, Games: 25}}},
	}
	for _, c := range cases {
		raw := RawDeltas(c[:], false)
		assert.InDelta(t, 0, raw[0]+raw[1], 1e-9)
	}
}

func TestRankingsOverrideScores(t *testing.T) {
	a := Participant{ID: "a", Score: 1, Ranking: 1, Elo: domain.EloRecord{Value: 1000, Games: 30}}
	b := Participant{ID: "b", Score: 9, Ranking: 2, Elo: domain.EloRecord{Value: 1000, Games: 30}}
	d := Compute([]Participant{a, b}, false)
	assert.Greater(t, d[0], 0)
	assert.Less(t, d[1], 0)

	// scores decide when a ranking is missing
	a.Ranking = 0
	d = Compute([]Participant{a, b}, false)
	assert.Less(t, d[0], 0)
}

func TestThreePlayerScaling(t *testing.T) {
	ps := []Participant{
		{ID: "a", Score: 3, Elo: domain.EloRecord{Value: 1000, Games: 30}},
		{ID: "b", Score: 2, Elo: domain.EloRecord{Value: 1000, Games: 30}},
		{ID: "c", Score: 1, Elo: domain.EloRecord{Value: 1000, Games: 30}},
	}
	// per pair 3*20/4*(1-0.5) = 7.5
	assert.Equal(t, []int{15, 0, -15}, Compute(ps, false))
}

func TestNewValue(t *testing.T) {
	assert.Equal(t, 1010, NewValue(domain.EloRecord{Value: 1000, Games: 40}, 10))
	assert.Equal(t, 12, NewValue(domain.EloRecord{}, 12))
	assert.Equal(t, NewPlayerFloor, NewValue(domain.EloRecord{}, -30))
	assert.Equal(t, NewPlayerFloor, NewValue(domain.EloRecord{}, 0))
	assert.Equal(t, 990, NewValue(domain.EloRecord{Value: 1000, Games: 40}, -10))
	assert.Equal(t, Floor, NewValue(domain.EloRecord{Value: 105, Games: 40}, -10))
}

type recorder struct {
	added map[string]int
	set   map[string]int
}

func (r *recorder) AddElo(_, user string, d int)  { r.added[user] = d }
func (r *recorder) SetElo(_, user string, v int) { r.set[user] = v }

func newRecorder() *recorder { return &recorder{added: map[string]int{}, set: map[string]int{}} }

func TestSettle(t *testing.T) {
	g := &domain.Game{
		Boardgame: "chess",
		Status:    domain.StatusEnded,
		Players: []domain.Player{
			{ID: "a", Score: 1},
			{ID: "b", Score: 0},
		},
	}
	recs := map[string]domain.EloRecord{"a": {Value: 100, Games: 40}}
	w := newRecorder()
	require.True(t, Settle(w, g, recs))

	assert.Greater(t, w.added["a"], 0)
	assert.Equal(t, NewPlayerFloor, w.set["b"])
	require.NotNil(t, g.Players[0].Elo)
	assert.Equal(t, 100, g.Players[0].Elo.Initial)
	assert.Equal(t, w.added["a"], g.Players[0].Elo.Delta)
	assert.Equal(t, 0, g.Players[1].Elo.Initial)
}

func TestSettleSkips(t *testing.T) {
	w := newRecorder()
	cancelled := &domain.Game{Cancelled: true, Players: []domain.Player{{ID: "a"}, {ID: "b"}}}
	assert.False(t, Settle(w, cancelled, nil))

	unrated := &domain.Game{Options: domain.Options{Unrated: true}, Players: []domain.Player{{ID: "a"}, {ID: "b"}}}
	assert.False(t, Settle(w, unrated, nil))

	assert.Empty(t, w.added)
	assert.Empty(t, w.set)

	// cancelled because someone dropped is still rated
	dropped := &domain.Game{Cancelled: true, Players: []domain.Player{{ID: "a"}, {ID: "b", Dropped: true}}}
	assert.True(t, Settle(w, dropped, nil))
	assert.Greater(t, w.added["a"], 0)
}
