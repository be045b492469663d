// Package app wires storage, services and the tool server from a loaded
// config. Both the CLI commands and the stdio server start here.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"notedb/internal/config"
	"notedb/internal/domain"
	"notedb/internal/etl"
	_ "notedb/internal/etl/sources"
	mcpserver "notedb/internal/mcp"
	"notedb/internal/rollup"
	"notedb/internal/secret"
	"notedb/internal/service"
	"notedb/internal/storage"
	"notedb/internal/view"
)

// SQLiteFileName is the database file created under the data dir.
const SQLiteFileName = "notedb.db"

// App holds the wired services. Close releases everything New opened.
type App struct {
	Config config.Config
	Log    *zap.SugaredLogger

	Databases *service.DatabaseService
	Sessions  *service.SessionService
	Imports   *service.ImportService
	Notices   *view.NoticeLog
	Rollups   *rollup.Engine

	db      *storage.DB
	watcher *changeWatcher
}

// New opens the configured backend and builds the service graph.
func New(cfg config.Config) (*App, error) {
	log, err := newLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log, Notices: &view.NoticeLog{}}

	store, runs, err := a.openStore()
	if err != nil {
		return nil, err
	}

	cache := rollup.NewCache(store)
	a.Rollups = rollup.NewEngine(cache, log.Named("rollup"))

	// Sessions read through the DatabaseService, whose events reach the
	// sessions, so the emitter is bound after both exist.
	var sessions *service.SessionService
	downstream := service.Emitters{
		service.CacheInvalidator(cache),
		service.EmitterFunc(func(ctx context.Context, event string, data any) {
			sessions.Emit(ctx, event, data)
		}),
		service.LogEmitter(log.Named("events")),
	}

	var emitter service.EventEmitter = downstream
	if fp, ok := store.(storage.Fingerprinter); ok {
		a.watcher = newChangeWatcher(fp, downstream, log.Named("watcher"))
		emitter = append(downstream, a.watcher)
	}

	a.Databases = service.NewDatabaseService(store, emitter, log.Named("databases"))
	sessions = service.NewSessionService(a.Databases, a.Rollups, a.Notices, log.Named("views"))
	a.Sessions = sessions

	if err := setupImportSources(cfg, secret.Default(nil), log); err != nil {
		a.Close()
		return nil, err
	}
	imports, err := service.NewImportService(cfg.Imports, a.Databases, runs, emitter, log.Named("imports"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("import jobs: %w", err)
	}
	a.Imports = imports

	return a, nil
}

func (a *App) openStore() (domain.RowStore, etl.RunLogStore, error) {
	dir := a.Config.DataDirAbs
	if dir == "" {
		dir = a.Config.DataDir
	}

	switch a.Config.Backend {
	case storage.BackendMarkdown:
		store, err := storage.NewMarkdownStore(dir)
		if err != nil {
			return nil, nil, err
		}
		a.Log.Debugw("opened markdown store", "dir", dir)
		return store, nil, nil
	default:
		db, err := storage.Open(filepath.Join(dir, SQLiteFileName))
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		a.db = db
		a.Log.Debugw("opened sqlite store", "path", db.Path())
		return storage.NewLocalDatabaseStore(db), storage.NewImportRunStore(db), nil
	}
}

// Serve starts the background jobs and serves the tool server on stdio
// until ctx is cancelled or stdin closes.
func (a *App) Serve(ctx context.Context, version string) error {
	if err := a.Imports.Start(ctx); err != nil {
		return err
	}
	defer a.Imports.Stop()

	if a.watcher != nil {
		a.watcher.Start(ctx)
		defer a.watcher.Stop()
	}

	srv := mcpserver.New(mcpserver.Deps{
		Databases: a.Databases,
		Sessions:  a.Sessions,
		Imports:   a.Imports,
		Notices:   a.Notices,
		Logger:    a.Log.Named("mcp"),
		Version:   version,
	})

	a.Log.Infow("serving tools on stdio", "backend", a.Config.Backend, "dataDir", a.Config.DataDirAbs)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Close waits for running imports and closes the store.
func (a *App) Close() error {
	if a.Imports != nil {
		a.Imports.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		a.Imports.WaitRunning(ctx)
		cancel()
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}
	_ = a.Log.Sync()
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// newLogger logs to stderr so stdout stays free for the stdio protocol.
func newLogger(debug bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), nil
}
