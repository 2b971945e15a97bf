// Command voicetrigger runs trigger-phrase filters over live audio and serves
// the forwarded speech to downstream consumers.
//
// Usage:
//
//	voicetrigger -config config.yaml            # HTTP/websocket server
//	voicetrigger -config config.yaml -pipe robot > robot.pcm
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicetrigger/internal/app"
	"github.com/MrWong99/voicetrigger/internal/config"
	"github.com/MrWong99/voicetrigger/internal/observe"
	"github.com/MrWong99/voicetrigger/internal/server"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	pipe := flag.String("pipe", "", "write the forwarded PCM16 of this trigger to stdout instead of serving HTTP")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicetrigger: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicetrigger: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("voicetrigger starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.Setup(ctx, cfg.Telemetry.ServiceName, observe.WithServiceVersion(version))
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	printStartupSummary(os.Stderr, cfg)

	application, err := app.New(ctx, cfg,
		app.WithLogger(logger),
		app.WithLevelVar(level),
		app.WithMetrics(tel.Metrics()),
		app.WithServerOptions(server.WithMetricsHandler(tel.Handler())),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, func(next *config.Config, _ config.ConfigDiff) {
		application.ApplyConfig(next)
	})
	if err != nil {
		slog.Error("failed to watch config", "err", err)
		_ = application.Shutdown(context.Background())
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return reloadOnHangup(gctx, watcher) })
	if *pipe != "" {
		g.Go(func() error {
			err := application.Pipe(gctx, *pipe, os.Stdout)
			// The pipe ending is the end of the process.
			stop()
			return err
		})
	} else {
		slog.Info("server ready; press Ctrl+C to shut down")
		g.Go(func() error { return application.Run(gctx) })
	}

	code := 0
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "voicetrigger startup summary")
	for _, sc := range cfg.Sources {
		fmt.Fprintf(w, "  source  %-16s %s\n", sc.Name, sc.Kind)
	}
	for _, tc := range cfg.Triggers {
		chain := tc.RecognizerChain()
		names := make([]string, len(chain))
		for i, e := range chain {
			names[i] = e.Name
		}
		vad := tc.VAD
		if vad == "" {
			vad = app.DefaultVAD()
		}
		fmt.Fprintf(w, "  trigger %-16s phrase=%q source=%s vad=%s recognizers=%v\n",
			tc.Name, tc.TriggerPhrase, tc.Source, vad, names)
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Fprintf(w, "  listen  %s\n", cfg.Server.ListenAddr)
	}
	if cfg.Events.PostgresDSN != "" {
		fmt.Fprintln(w, "  events  postgres")
	}
	if cfg.Events.FilePath != "" {
		fmt.Fprintf(w, "  events  %s\n", cfg.Events.FilePath)
	}
}

// reloadOnHangup re-reads the config file whenever the process gets SIGHUP.
func reloadOnHangup(ctx context.Context, w *config.Watcher) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			switch err := w.Reload(); {
			case err == nil:
			case errors.Is(err, config.ErrNoChange):
				slog.Info("SIGHUP: configuration unchanged")
			default:
				slog.Warn("SIGHUP: reload rejected", "err", err)
			}
		}
	}
}
