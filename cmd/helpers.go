package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/miavo090821/dissertation/internal/browser"
	"github.com/miavo090821/dissertation/internal/detect"
	"github.com/miavo090821/dissertation/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "adscan.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// sessionFactory adapts the browser manager to the coordinator's Factory.
type sessionFactory struct {
	m *browser.Manager
}

func (f sessionFactory) Acquire(ctx context.Context, videoID string) (detect.Session, error) {
	sess, err := f.m.Acquire(ctx, videoID)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// detectionEnv bundles everything a detection command needs.
type detectionEnv struct {
	store   store.Store
	manager *browser.Manager
	coord   *detect.Coordinator
}

func initDetection(ctx context.Context) (*detectionEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	manager := browser.NewManager(cfg.Browser, cfg.Signals)
	coord := detect.New(sessionFactory{m: manager}, st, cfg.Detect)

	return &detectionEnv{store: st, manager: manager, coord: coord}, nil
}

func (e *detectionEnv) Close() {
	e.manager.Close()
	e.store.Close() //nolint:errcheck
}
