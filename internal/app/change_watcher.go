package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"notedb/internal/service"
	"notedb/internal/storage"
)

// changeWatcher polls the store for changes made outside this process
// (another notedb process, or a text editor on the markdown files) and
// emits the same events a local write would, so rollup caches and open
// view sessions refresh.
type changeWatcher struct {
	source   storage.Fingerprinter
	emitter  service.EventEmitter
	log      *zap.SugaredLogger
	interval time.Duration

	mu     sync.Mutex
	last   map[string]string
	stopCh chan struct{}
	done   chan struct{}
}

func newChangeWatcher(source storage.Fingerprinter, emitter service.EventEmitter, log *zap.SugaredLogger) *changeWatcher {
	return &changeWatcher{
		source:   source,
		emitter:  emitter,
		log:      log,
		interval: 2 * time.Second,
	}
}

// Start takes the initial snapshot and begins the polling loop.
func (w *changeWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopCh != nil {
		return
	}
	w.last, _ = w.source.Fingerprints(ctx)
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	go w.pollLoop(ctx, w.stopCh, w.done)
}

// Stop terminates the polling loop and waits for it to exit.
func (w *changeWatcher) Stop() {
	w.mu.Lock()
	stopCh, done := w.stopCh, w.done
	w.stopCh, w.done = nil, nil
	w.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
}

func (w *changeWatcher) pollLoop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.check(ctx)
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *changeWatcher) check(ctx context.Context) {
	current, err := w.source.Fingerprints(ctx)
	if err != nil {
		w.log.Debugw("change watcher", "err", err)
		return
	}

	w.mu.Lock()
	previous := w.last
	w.last = current
	w.mu.Unlock()

	// ── Emit events ────────────────────────────────────
	for id, fp := range current {
		old, known := previous[id]
		switch {
		case !known:
			w.emitter.Emit(ctx, service.EventDatabaseCreated, service.DatabaseEvent{DatabaseID: id})
		case old != fp:
			// Schema and row changes share one marker; a schema event
			// covers both for every listener.
			w.emitter.Emit(ctx, service.EventSchemaUpdated, service.DatabaseEvent{DatabaseID: id})
		}
	}
	for id := range previous {
		if _, ok := current[id]; !ok {
			w.emitter.Emit(ctx, service.EventDatabaseDeleted, service.DatabaseEvent{DatabaseID: id})
		}
	}
}

// Emit resnapshots after a write made by this process, so the poll loop
// does not report it a second time.
func (w *changeWatcher) Emit(ctx context.Context, event string, _ any) {
	if event == service.EventImportCompleted {
		return
	}
	current, err := w.source.Fingerprints(ctx)
	if err != nil {
		return
	}
	w.mu.Lock()
	w.last = current
	w.mu.Unlock()
}
