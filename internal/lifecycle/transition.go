package lifecycle

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/park285/turnkeeper/internal/domain"
	"github.com/park285/turnkeeper/internal/engine"
	"github.com/park285/turnkeeper/internal/msgcat"
	"github.com/park285/turnkeeper/internal/timewindow"
)

// start moves an open game to active.
func (s *Service) start(g *domain.Game, eng engine.Safe, fx *effects, now time.Time) error {
	if g.Status != domain.StatusOpen {
		return fmt.Errorf("%w: cannot start a %s game", ErrInvalidState, g.Status)
	}
	if g.Options.RandomOrder {
		shufflePlayers(g)
	}
	data, err := eng.Init(engine.InitParams{
		Players:    len(g.Players),
		Expansions: g.Options.Setup.Expansions,
		Options:    g.Options.Setup.EngineOptions,
		Seed:       seedOf(g),
	})
	if err != nil {
		return err
	}
	g.Data = data
	g.Status = domain.StatusActive
	g.Ready = true
	g.StartedAt = now
	g.EngineVersion = eng.Version()
	for i := range g.Players {
		if g.Players[i].RemainingTime <= 0 {
			g.Players[i].RemainingTime = g.Options.Timing.TimePerGame
		}
	}
	fx.notify(domain.KindGameStarted, g.ID, "", nil)
	fx.event("started")
	return s.advance(g, eng, fx, now)
}

// maybeStart starts a ready game unless the host finalizes it or it waits
// for a scheduled start.
func (s *Service) maybeStart(g *domain.Game, eng engine.Safe, fx *effects, now time.Time) error {
	if !g.Ready || g.Options.HostFinalize {
		return nil
	}
	if ss := g.Options.Timing.ScheduledStart; ss != nil && ss.After(now) {
		return nil
	}
	return s.start(g, eng, fx, now)
}

// advance recomputes everything derived from the engine state after a
// change and runs the resulting transition.
func (s *Service) advance(g *domain.Game, eng engine.Safe, fx *effects, now time.Time) error {
	if err := refreshScores(g, eng); err != nil {
		return err
	}
	ended, err := eng.Ended(g.Data)
	if err != nil {
		return err
	}
	cancelled, err := eng.Cancelled(g.Data)
	if err != nil {
		return err
	}
	if cancelled {
		ended = true
	}
	if allOut(g) {
		ended, cancelled = true, true
	}

	var next []int
	if !ended {
		idx, err := eng.CurrentPlayers(g.Data)
		if err != nil {
			return err
		}
		for _, i := range idx {
			if i < 0 || i >= len(g.Players) {
				return fmt.Errorf("%w: current player %d out of range", engine.ErrEngine, i)
			}
			if g.Players[i].Gone() {
				continue
			}
			next = append(next, i)
		}
		if len(next) == 0 {
			return fmt.Errorf("%w: no current player in an unfinished game", engine.ErrEngine)
		}
	}

	rotateTimers(g, next, fx, now)
	if ended {
		s.end(g, cancelled, fx)
	}
	return nil
}

// rotateTimers debits players leaving the current set and starts the clock
// of players entering it. Players staying current keep their timer.
func rotateTimers(g *domain.Game, next []int, fx *effects, now time.Time) {
	timing := g.Options.Timing
	stay := make(map[string]bool, len(next))
	for _, i := range next {
		stay[g.Players[i].ID] = true
	}

	cps := make([]domain.CurrentPlayer, 0, len(next))
	for _, cp := range g.CurrentPlayers {
		if stay[cp.ID] {
			cps = append(cps, cp)
			continue
		}
		if p := g.Player(cp.ID); p != nil {
			elapsed := timewindow.ElapsedSeconds(cp.TimerStart, timing.ActiveWindow, now)
			p.RemainingTime = clamp(p.RemainingTime-elapsed+timing.TimePerMove, timing.TimePerMove, timing.TimePerGame)
		}
	}
	for _, i := range next {
		p := &g.Players[i]
		if g.Current(p.ID) != nil {
			continue
		}
		cps = append(cps, domain.CurrentPlayer{
			ID:         p.ID,
			TimerStart: now,
			Deadline:   timewindow.Deadline(p.RemainingTime, timing.ActiveWindow, now),
		})
		fx.notify(domain.KindCurrentMove, g.ID, p.ID, nil)
	}
	if len(cps) == 0 {
		cps = nil
	}
	g.CurrentPlayers = cps
}

func (s *Service) end(g *domain.Game, cancelled bool, fx *effects) {
	wasEnded := g.Status == domain.StatusEnded
	g.Status = domain.StatusEnded
	g.CurrentPlayers = nil
	if cancelled {
		g.Cancelled = true
	}
	if wasEnded {
		return
	}
	fx.notify(domain.KindGameEnded, g.ID, "", nil)
	if g.Cancelled {
		fx.event("cancelled")
		fx.say(s.text(msgcat.GameCancelled, nil))
		return
	}
	fx.event("ended")
	fx.say(s.text(msgcat.GameEnded, nil))
}

// refreshScores copies scores, rankings, factions and round from the engine.
// Rankings fall back to dense ranks by descending score.
func refreshScores(g *domain.Game, eng engine.Safe) error {
	n := len(g.Players)
	scores, err := eng.Scores(g.Data)
	if err != nil {
		return err
	}
	if len(scores) != n {
		return fmt.Errorf("%w: %d scores for %d players", engine.ErrEngine, len(scores), n)
	}
	for i := range g.Players {
		g.Players[i].Score = scores[i]
	}

	rankings, ok, err := eng.Rankings(g.Data)
	if err != nil {
		return err
	}
	if !ok || len(rankings) != n {
		rankings = DenseRankings(scores)
	}
	for i := range g.Players {
		g.Players[i].Ranking = rankings[i]
	}

	factions, ok, err := eng.Factions(g.Data)
	if err != nil {
		return err
	}
	if ok && len(factions) == n {
		for i := range g.Players {
			g.Players[i].Faction = factions[i]
		}
	}

	round, ok, err := eng.Round(g.Data)
	if err != nil {
		return err
	}
	if ok {
		g.Round = round
	}
	return nil
}

// DenseRankings ranks scores descending; equal scores share a rank and the
// next distinct score takes the following rank.
func DenseRankings(scores []float64) []int {
	distinct := append([]float64(nil), scores...)
	sort.Sort(sort.Reverse(sort.Float64Slice(distinct)))
	rankOf := make(map[float64]int, len(distinct))
	rank := 0
	for i, v := range distinct {
		if i == 0 || v != distinct[i-1] {
			rank++
			rankOf[v] = rank
		}
	}
	out := make([]int, len(scores))
	for i, v := range scores {
		out[i] = rankOf[v]
	}
	return out
}

// allOut reports whether no player is still willing to play.
func allOut(g *domain.Game) bool {
	for _, p := range g.Players {
		if !p.Gone() && !p.VotedCancel {
			return false
		}
	}
	return len(g.Players) > 0
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func seedOf(g *domain.Game) string {
	if s := strings.TrimSpace(g.Options.Setup.Seed); s != "" {
		return s
	}
	return g.ID
}

// shufflePlayers reorders seats deterministically from the game seed.
func shufflePlayers(g *domain.Game) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seedOf(g)))
	sum := h.Sum64()
	r := rand.New(rand.NewPCG(sum, sum>>7|1))
	r.Shuffle(len(g.Players), func(i, j int) { g.Players[i], g.Players[j] = g.Players[j], g.Players[i] })
}

// messages forwards engine-produced texts to chat.
func messages(g *domain.Game, eng engine.Safe, fx *effects) error {
	msgs, err := eng.Messages(g.Data)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		fx.say(m)
	}
	return nil
}
