package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/leontalbot/caribou/internal/config"
	"github.com/leontalbot/caribou/internal/instrument"
	"github.com/leontalbot/caribou/internal/model"
	"github.com/leontalbot/caribou/internal/store"
)

// runtime bundles what every command needs after boot: config, logging, the
// connected store and an initialized engine.
type runtime struct {
	cfg    *config.Config
	log    *zap.Logger
	store  *store.Store
	engine *model.Engine
}

func boot(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	st, err := store.New(ctx, cfg.Database, log.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	var rec *instrument.Recorder
	if cfg.Instrument.Enabled {
		rec = instrument.NewRecorder(cfg.Instrument.BufferSize)
	}
	eng, err := model.New(st, model.Options{
		Logger:   log.Named("model"),
		Recorder: rec,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	if err := eng.Init(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}

	log.Debug("engine ready",
		zap.String("driver", cfg.Database.Driver),
		zap.Int("models", len(eng.Models())))
	return &runtime{cfg: cfg, log: log, store: st, engine: eng}, nil
}

func (r *runtime) close() {
	r.store.Close()
	_ = r.log.Sync()
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.LogFormat == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	if lvl, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zcfg.Build()
}
