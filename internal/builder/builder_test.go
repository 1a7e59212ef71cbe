package builder

import (
	"context"
	"sort"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/turnkeeper/internal/auditlog"
	"github.com/park285/turnkeeper/internal/chat"
	"github.com/park285/turnkeeper/internal/config"
	"github.com/park285/turnkeeper/internal/domain"
	"github.com/park285/turnkeeper/internal/engine/enginetest"
	"github.com/park285/turnkeeper/internal/lifecycle"
)

func testConfig(addr string) *config.AppConfig {
	return &config.AppConfig{
		RedisURL:         "redis://" + addr + "/0",
		LeaseTTL:         30 * time.Second,
		SweepInterval:    time.Minute,
		DrainInterval:    time.Minute,
		DrainBatch:       50,
		KarmaMax:         100,
		KarmaDefault:     75,
		KarmaDropPenalty: 10,
		KarmaGameBonus:   1,
		ReminderDelay:    time.Minute,
		NotificationTTL:  24 * time.Hour,
		WorkerID:         "test",
	}
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestNewFailsWithoutRedis(t *testing.T) {
	cfg := testConfig("127.0.0.1:1")
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNewWiresWorker(t *testing.T) {
	mr := miniredis.RunT(t)
	sink := &chat.Memory{}
	d, err := New(context.Background(), testConfig(mr.Addr()), nil, WithEngines(enginetest.New()), WithChat(sink))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	assert.Equal(t, []string{"chess", enginetest.Name}, d.Engines.Names())
	assert.IsType(t, &auditlog.Memory{}, d.Audit)

	names := d.Scheduler.Names()
	sort.Strings(names)
	assert.Len(t, names, 3+len(domain.Kinds))
	assert.Contains(t, names, "sweep-deadlines")
	assert.Contains(t, names, "drain-gameEnded")
	assert.Contains(t, names, "reap-notifications")

	ctx := context.Background()
	g, err := d.Games.Create(ctx, lifecycle.CreateRequest{
		Name: "wired", Boardgame: "chess", Creator: "alice", CreatorName: "Alice",
		Options: domain.Options{Seats: 2, Timing: domain.Timing{TimePerGame: 600, TimePerMove: 10}},
	})
	require.NoError(t, err)
	_, err = d.Games.Join(ctx, g.ID, "bob", "Bob")
	require.NoError(t, err)

	require.NoError(t, d.Scheduler.RunOnce(ctx, "drain-gameStarted"))
	assert.Contains(t, sink.Messages(), chat.Message{Game: g.ID, Text: "The game has started. Alice moves first."})
}

func TestCloseIsIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	d, err := New(context.Background(), testConfig(mr.Addr()), nil)
	require.NoError(t, err)
	assert.NoError(t, d.Close())
	assert.NoError(t, d.Close())
	var nilDeps *Deps
	assert.NoError(t, nilDeps.Close())
}
