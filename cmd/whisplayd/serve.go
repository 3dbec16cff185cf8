package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/whisplay/whisplayd/internal/board"
	"github.com/whisplay/whisplayd/internal/board/whisplay"
	"github.com/whisplay/whisplayd/internal/config"
	"github.com/whisplay/whisplayd/internal/control"
	"github.com/whisplay/whisplayd/internal/glyph"
	"github.com/whisplay/whisplayd/internal/logger"
	"github.com/whisplay/whisplayd/internal/mqttbridge"
	"github.com/whisplay/whisplayd/internal/preview"
	"github.com/whisplay/whisplayd/internal/render"
	"github.com/whisplay/whisplayd/internal/server"
	"github.com/whisplay/whisplayd/internal/state"
)

type serveOptions struct {
	configPath string
	sim        bool
	debug      bool
}

func execServe(ctx context.Context, opts serveOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.debug {
		cfg.Log.Level = "debug"
	}

	l, closer, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()
	l.Info("starting whisplayd", "config", opts.configPath, "sim", opts.sim)

	fontFile, err := glyph.LoadFontFile(cfg.Render.FontPath)
	if err != nil {
		return err
	}
	fonts, err := render.LoadFonts(fontFile)
	if err != nil {
		return fmt.Errorf("font faces: %w", err)
	}
	sprites := glyph.NewSVGSprites(cfg.Render.EmojiDir, l.With("component", "emoji"))
	cache := glyph.NewCache(sprites, cfg.Render.LineCacheCap)

	store := state.New(cache.InvalidateLines)
	store.Apply(control.Welcome())

	b, err := openBoard(cfg, opts.sim, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			l.Warn("failed to close board", "err", err)
		}
		l.Info("board closed")
	}()

	handler := control.NewHandler(store, b, l.With("component", "control"))
	srv := server.New(cfg.Server.Listen, handler, l.With("component", "server"))
	if err := srv.Listen(); err != nil {
		return err
	}

	var bridge *mqttbridge.Bridge
	if cfg.MQTT.Broker != "" {
		bridge = mqttbridge.New(cfg.MQTT, handler, l.With("component", "mqtt"))
		if err := bridge.Connect(ctx); err != nil {
			l.Warn("mqtt not connected yet, retrying in background", "err", err)
		}
		defer bridge.Close()
	}

	wireButtons(b, srv, bridge, l)

	engine := render.New(b, store, cache, fonts, cfg.Render, l.With("component", "render"))
	if err := engine.Init(ctx); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return srv.Serve(ctx) })
	if cfg.Preview.Listen != "" {
		p := preview.New(engine, store, handler, l.With("component", "preview"))
		g.Go(func() error { return p.Run(ctx, cfg.Preview.Listen) })
	}

	err = g.Wait()
	l.Info("shutting down")
	return err
}

func openBoard(cfg config.Config, sim bool, l *log.Logger) (board.Board, error) {
	if sim {
		return board.NewSim(cfg.Display.Width, cfg.Display.Height), nil
	}
	b, err := whisplay.Open(cfg, l.With("component", "board"))
	if err != nil {
		return nil, fmt.Errorf("open board: %w", err)
	}
	return b, nil
}
