// Package elo computes N-player rating changes by summing pairwise ELO
// updates scaled by 3/(N+1).
package elo

import (
	"math"

	"github.com/park285/turnkeeper/internal/domain"
)

const (
	// NewPlayerFloor is what a player without a rating gets after a loss.
	NewPlayerFloor = 1
	// Floor is the lowest rating a loss can push an established player to.
	Floor = 100
)

// Participant is one player's input to Compute.
type Participant struct {
	ID      string
	Score   float64
	Ranking int
	Dropped bool
	Elo     domain.EloRecord
}

// Expected returns the expected score of a player rated a against b.
func Expected(a, b float64) float64 {
	return 1 / (1 + math.Pow(10, (b-a)/400))
}

// KFactor shrinks with experience.
func KFactor(games int) float64 {
	switch {
	case games < 10:
		return 60
	case games < 20:
		return 40
	default:
		return 20
	}
}

// outcome returns A's actual result against B. counts is false when the
// pair must not move either rating.
func outcome(a, b Participant, useRanking, droppedGame bool) (w float64, counts bool) {
	switch {
	case a.Dropped && b.Dropped:
		return 0, false
	case a.Dropped:
		return 0, true
	case b.Dropped:
		return 1, true
	case droppedGame:
		return 0, false
	}
	sa, sb := a.Score, b.Score
	if useRanking {
		sa, sb = -float64(a.Ranking), -float64(b.Ranking)
	}
	switch {
	case sa > sb:
		return 1, true
	case sa < sb:
		return 0, true
	default:
		return 0.5, true
	}
}

// RawDeltas returns the unrounded delta of every participant.
func RawDeltas(ps []Participant, droppedGame bool) []float64 {
	useRanking := len(ps) > 0
	for _, p := range ps {
		if p.Ranking <= 0 {
			useRanking = false
			break
		}
	}
	n := float64(len(ps))
	out := make([]float64, len(ps))
	for i, a := range ps {
		k := KFactor(a.Elo.Games)
		for j, b := range ps {
			if i == j {
				continue
			}
			w, counts := outcome(a, b, useRanking, droppedGame)
			if !counts {
				continue
			}
			e := Expected(float64(a.Elo.Value), float64(b.Elo.Value))
			out[i] += 3 * k / (n + 1) * (w - e)
		}
	}
	return out
}

// Compute returns each participant's delta rounded to the nearest integer.
func Compute(ps []Participant, droppedGame bool) []int {
	raw := RawDeltas(ps, droppedGame)
	out := make([]int, len(raw))
	for i, d := range raw {
		out[i] = int(math.Round(d))
	}
	return out
}

// NewValue applies delta to rec following the write rules: a gain is added,
// a loss leaves a new player at NewPlayerFloor and an established one at no
// less than Floor.
func NewValue(rec domain.EloRecord, delta int) int {
	if delta > 0 {
		return rec.Value + delta
	}
	if rec.Value == 0 {
		return NewPlayerFloor
	}
	if v := rec.Value + delta; v > Floor {
		return v
	}
	return Floor
}

// ShouldRate reports whether a finished game affects ratings at all.
func ShouldRate(g *domain.Game) bool {
	if g.Options.Unrated {
		return false
	}
	if g.Cancelled && !g.AnyDropped() {
		return false
	}
	return len(g.Players) >= 2
}
