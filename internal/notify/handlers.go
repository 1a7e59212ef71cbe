package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/turnkeeper/internal/auditlog"
	"github.com/park285/turnkeeper/internal/domain"
	"github.com/park285/turnkeeper/internal/elo"
	"github.com/park285/turnkeeper/internal/lease"
	"github.com/park285/turnkeeper/internal/lifecycle"
	"github.com/park285/turnkeeper/internal/msgcat"
	"github.com/park285/turnkeeper/internal/store"
)

// currentMove arms the reminder of every subject, then marks the whole
// batch processed.
func (p *Processor) currentMove(ctx context.Context, ns []*domain.Notification) (int, error) {
	users := make([]string, 0, len(ns))
	for _, n := range ns {
		if n.User != "" {
			users = append(users, n.User)
		}
	}
	due, err := p.reminders(ctx, users)
	if err != nil {
		return 0, err
	}
	err = p.store.Atomically(ctx, func(tx *store.Tx) error {
		for u, at := range due {
			tx.SetNextReminder(u, at)
		}
		for _, n := range ns {
			tx.MarkProcessed(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(ns), nil
}

// reminders returns the users whose reminder moves to now+delay. A future
// reminder that is already earlier stays untouched.
func (p *Processor) reminders(ctx context.Context, users []string) (map[string]time.Time, error) {
	now := p.now()
	at := now.Add(p.cfg.ReminderDelay)
	out := make(map[string]time.Time, len(users))
	seen := make(map[string]bool, len(users))
	for _, u := range users {
		if seen[u] {
			continue
		}
		seen[u] = true
		cur, err := p.store.NextReminderAt(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("reminder of %s: %w", u, err)
		}
		if cur.After(now) && !cur.After(at) {
			continue
		}
		out[u] = at
	}
	return out, nil
}

func (p *Processor) gameStarted(ctx context.Context, n *domain.Notification) error {
	g, err := p.store.GetGame(ctx, n.Game)
	if err != nil {
		return err
	}
	if g == nil {
		return p.store.MarkProcessed(ctx, n)
	}
	var users []string
	first := ""
	for _, cp := range g.CurrentPlayers {
		users = append(users, cp.ID)
		if first == "" {
			if pl := g.Player(cp.ID); pl != nil {
				first = pl.Name
			}
		}
	}
	due, err := p.reminders(ctx, users)
	if err != nil {
		return err
	}
	if err := p.store.Atomically(ctx, func(tx *store.Tx) error {
		for u, at := range due {
			tx.SetNextReminder(u, at)
		}
		tx.MarkProcessed(n)
		return nil
	}); err != nil {
		return err
	}
	_ = p.chat.Post(ctx, g.ID, p.msgs.Text(msgcat.GameStarted, map[string]string{"First": first}))
	return nil
}

// gameEnded settles karma and ratings of a finished game. Settled markers
// on the game make a redelivered notification a no-op.
func (p *Processor) gameEnded(ctx context.Context, n *domain.Notification) error {
	acquired, err := p.leases.Do(ctx, []string{"game", n.Game}, func(ctx context.Context) error {
		g, err := p.store.GetGame(ctx, n.Game)
		if err != nil {
			return err
		}
		if g == nil {
			p.logger.Info("game_ended_missing_game", p.fields(n)...)
			return p.store.MarkProcessed(ctx, n)
		}
		if g.Status != domain.StatusEnded {
			p.logger.Warn("game_ended_not_ended", append(p.fields(n), zap.String("status", string(g.Status)))...)
			return p.store.MarkProcessed(ctx, n)
		}
		if err := p.games.Finalize(g); err != nil {
			return err
		}

		var records map[string]domain.EloRecord
		rate := !g.Settled.Elo && elo.ShouldRate(g)
		if rate {
			ids := make([]string, len(g.Players))
			for i, pl := range g.Players {
				ids[i] = pl.ID
			}
			if records, err = p.store.EloRecords(ctx, g.Boardgame, ids); err != nil {
				return err
			}
		}

		now := p.now()
		return p.store.Atomically(ctx, func(tx *store.Tx) error {
			if !g.Settled.Karma {
				if !g.Cancelled && p.cfg.KarmaBonus > 0 {
					for _, pl := range g.Players {
						if !pl.Dropped {
							tx.IncrKarma(pl.ID, p.cfg.KarmaBonus)
						}
					}
				}
				g.Settled.Karma = true
			}
			if !g.Settled.Elo {
				if rate {
					elo.Settle(tx, g, records)
				}
				g.Settled.Elo = true
			}
			if err := tx.SaveGame(g); err != nil {
				return err
			}
			tx.MarkProcessed(n)
			// the audit row goes first; a failed write discards the batch
			return p.audit.Write(ctx, auditlog.FromGame(n.ID, g, now))
		})
	})
	if err != nil {
		return err
	}
	if !acquired {
		return errPending
	}
	return nil
}

func (p *Processor) playerQuit(ctx context.Context, n *domain.Notification) error {
	name := n.User
	g, err := p.store.GetGame(ctx, n.Game)
	if err != nil {
		return err
	}
	if g != nil {
		if pl := g.Player(n.User); pl != nil {
			name = pl.Name
		}
	}
	if err := p.store.MarkProcessed(ctx, n); err != nil {
		return err
	}
	if g != nil {
		_ = p.chat.Post(ctx, g.ID, p.msgs.Text(msgcat.PlayerQuit, map[string]string{"Player": name}))
	}
	return nil
}

// dropPlayer executes a queued drop request. A request that no longer
// applies is consumed; contention keeps it for the next drain.
func (p *Processor) dropPlayer(ctx context.Context, n *domain.Notification) error {
	var deadline time.Time
	if raw := n.Meta[domain.MetaDeadline]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fmt.Errorf("bad deadline %q: %w", raw, err)
		}
		deadline = t
	}
	dropped, err := p.games.DropPlayer(ctx, n.Game, n.User, deadline)
	if errors.Is(err, lifecycle.ErrBusy) {
		return errPending
	}
	if err != nil {
		return err
	}
	if !dropped {
		p.logger.Info("drop_request_stale", p.fields(n)...)
	}
	return p.store.MarkProcessed(ctx, n)
}

// playerDrop charges the drop penalty once per notification. Each round
// takes at most one notification per user, so a user dropped from several
// games is charged for every one of them.
func (p *Processor) playerDrop(ctx context.Context, ns []*domain.Notification) (int, error) {
	done := 0
	rest := ns
	for first := true; len(rest) > 0; first = false {
		if !first {
			if err := lease.Refresh(ctx); err != nil {
				return done, err
			}
		}
		var round, next []*domain.Notification
		seen := make(map[string]bool, len(rest))
		for _, n := range rest {
			if seen[n.User] {
				next = append(next, n)
				continue
			}
			seen[n.User] = true
			round = append(round, n)
		}
		charges := make([]store.Charge, 0, len(round))
		err := p.store.Atomically(ctx, func(tx *store.Tx) error {
			for _, n := range round {
				charges = append(charges, tx.ChargeDrop(n, p.cfg.DropPenalty))
			}
			return nil
		})
		if err != nil {
			return done, err
		}
		for i, c := range charges {
			if c.Applied() {
				done++
			} else {
				p.logger.Debug("notification_already_processed", p.fields(round[i])...)
			}
		}
		rest = next
	}
	return done, nil
}
