package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/park285/turnkeeper/internal/builder"
	"github.com/park285/turnkeeper/internal/config"
	"github.com/park285/turnkeeper/internal/domain"
	"github.com/park285/turnkeeper/internal/lifecycle"
	"github.com/park285/turnkeeper/internal/obslog"
)

func main() {
	// a missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = obslog.L().Sync() }()

	app := &cli.App{
		Name:  "turnkeeper",
		Usage: "turn scheduling and notification worker",
		Commands: []*cli.Command{
			workerCommand(),
			sweepCommand(),
			drainCommand(),
			dropCommand(),
			viewCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		obslog.L().Error("command_failed", zap.Error(err))
		_ = obslog.L().Sync()
		os.Exit(1)
	}
}

// withDeps loads the configuration, wires a worker and runs fn with it.
func withDeps(c *cli.Context, fn func(ctx context.Context, d *builder.Deps) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	d, err := builder.New(c.Context, cfg, obslog.L())
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return fn(c.Context, d)
}

func workerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "run sweeps and notification drains until interrupted",
		Action: func(c *cli.Context) error {
			return withDeps(c, func(ctx context.Context, d *builder.Deps) error {
				if addr := d.Config.MetricsAddr; addr != "" {
					go func() {
						if err := d.Metrics.Serve(ctx, addr, d.Logger); err != nil {
							d.Logger.Error("metrics_serve_error", zap.Error(err))
						}
					}()
				}
				d.Scheduler.Start(ctx)
				d.Logger.Info("worker_started", zap.String("worker_id", d.Config.WorkerID))
				<-ctx.Done()
				d.Logger.Info("worker_stopping")
				return nil
			})
		},
	}
}

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "drop expired players and resolve due scheduled starts once",
		Action: func(c *cli.Context) error {
			return withDeps(c, func(ctx context.Context, d *builder.Deps) error {
				dropped, err := d.Games.SweepDeadlines(ctx)
				if err != nil {
					return err
				}
				scheduled, err := d.Games.SweepScheduled(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("deadlines: %d games changed, scheduled: %d games changed\n", dropped, scheduled)
				return nil
			})
		},
	}
}

func drainCommand() *cli.Command {
	return &cli.Command{
		Name:  "drain",
		Usage: "process one batch of pending notifications",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Usage: "notification kind; all kinds when empty"},
		},
		Action: func(c *cli.Context) error {
			return withDeps(c, func(ctx context.Context, d *builder.Deps) error {
				kind := c.String("kind")
				if kind == "" {
					n, err := d.Notify.DrainAll(ctx)
					fmt.Printf("processed %d notifications\n", n)
					return err
				}
				n, err := d.Notify.Drain(ctx, domain.NotificationKind(kind))
				fmt.Printf("processed %d %s notifications\n", n, kind)
				return err
			})
		},
	}
}

func dropCommand() *cli.Command {
	return &cli.Command{
		Name:  "drop",
		Usage: "request the drop of a player whose time ran out",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "game", Required: true},
			&cli.StringFlag{Name: "user", Required: true},
		},
		Action: func(c *cli.Context) error {
			return withDeps(c, func(ctx context.Context, d *builder.Deps) error {
				n, err := d.Games.RequestDrop(ctx, c.String("game"), c.String("user"))
				if err != nil {
					return printDomainError(err)
				}
				fmt.Printf("queued drop request %s\n", n.ID)
				done, err := d.Notify.Drain(ctx, domain.KindDropPlayer)
				if err != nil {
					return err
				}
				fmt.Printf("processed %d drop requests\n", done)
				return nil
			})
		},
	}
}

func viewCommand() *cli.Command {
	return &cli.Command{
		Name:  "view",
		Usage: "print a game as seen by a user",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "game", Required: true},
			&cli.StringFlag{Name: "user", Usage: "viewer id; empty for a spectator"},
		},
		Action: func(c *cli.Context) error {
			return withDeps(c, func(ctx context.Context, d *builder.Deps) error {
				v, err := d.Games.View(ctx, c.String("game"), c.String("user"))
				if err != nil {
					return printDomainError(err)
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			})
		},
	}
}

func printDomainError(err error) error {
	de := lifecycle.ToDomainError(err)
	raw, _ := json.Marshal(de)
	fmt.Fprintln(os.Stderr, string(raw))
	return err
}
