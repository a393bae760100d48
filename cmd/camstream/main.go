package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cjeanneret/camstream/internal/clock"
	"github.com/cjeanneret/camstream/internal/config"
	"github.com/cjeanneret/camstream/internal/debug"
	"github.com/cjeanneret/camstream/internal/hw/camera"
	"github.com/cjeanneret/camstream/internal/logic/capture"
	"github.com/cjeanneret/camstream/internal/logic/frame"
	"github.com/cjeanneret/camstream/internal/web"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Getenv, os.Stdout); err != nil {
		log.Fatalf("camstream: %v", err)
	}
}

// run wires the updater and the web server and blocks until ctx is
// cancelled. Configuration errors are returned before any socket is opened.
func run(ctx context.Context, getenv func(string) string, logOut io.Writer) error {
	cfg, err := config.FromEnv(getenv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(logOut, web.BroadcastWriter(broadcaster)))
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Camera URL", cfg.Camera.URL)
	debug.Value("Update interval", cfg.UpdateInterval().String())
	debug.Value("Frame interval", cfg.FrameInterval().String())
	debug.Value("Debug level", debug.Level())
	if debug.IsEnabled(debug.LevelVerbose) {
		debug.PrintStruct("Camera config", cfg.Camera)
		debug.PrintStruct("Stream config", cfg.Stream)
	}

	snap, err := camera.NewHTTPSnapshot(cfg.Camera.URL, cfg.AuthToken, cfg.Camera.UserAgent, cfg.CameraTimeout())
	if err != nil {
		return fmt.Errorf("init camera: %w", err)
	}
	fetcher := camera.NewFetcher(snap, snap.URL())

	// Cache write times and health ages must come from one clock.
	clk := clock.Real{}
	cache := frame.NewCacheWithClock(clk)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updater := capture.New(fetcher, cache, capture.Options{
		Interval: cfg.UpdateInterval(),
		Tick:     cfg.Tick(),
		Clock:    clk,
	})
	updaterDone := make(chan struct{})
	go func() {
		defer close(updaterDone)
		_ = updater.Run(ctx)
	}()

	debug.Info("starting web server, stream at http://localhost:%d", cfg.Server.Port)
	srv := web.NewServer(cfg.Addr(), cache, broadcaster, web.StreamOptions{
		FrameInterval: cfg.FrameInterval(),
		Clock:         clk,
	})
	err = srv.Run(ctx)

	cancel()
	<-updaterDone
	if err != nil && !errors.Is(err, context.Canceled) {
		err = fmt.Errorf("web server: %w", err)
		debug.Error(err)
		return err
	}
	return nil
}
