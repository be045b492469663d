package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"notedb/internal/domain"
	"notedb/internal/rollup"
	"notedb/internal/view"
)

// ─────────────────────────────────────────────────────────────
// Session Service: one live view session per database
// ─────────────────────────────────────────────────────────────

// SessionService hands out loaded view sessions and reloads them when their
// database changes underneath. It is an EventEmitter so it can be
// subscribed to the DatabaseService.
type SessionService struct {
	store    domain.RowStore
	rollups  *rollup.Engine
	notifier view.Notifier
	log      *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[string]*view.Session
	stale    map[string]bool
}

// NewSessionService creates a SessionService. notifier and log may be nil.
func NewSessionService(store domain.RowStore, rollups *rollup.Engine, notifier view.Notifier, log *zap.SugaredLogger) *SessionService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &SessionService{
		store:    store,
		rollups:  rollups,
		notifier: notifier,
		log:      log.Named("sessions"),
		sessions: make(map[string]*view.Session),
		stale:    make(map[string]bool),
	}
}

// Get returns the loaded session for dbID, creating or reloading it as needed.
func (s *SessionService) Get(ctx context.Context, dbID string) (*view.Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[dbID]
	stale := s.stale[dbID]
	if !ok {
		sess = view.NewSession(s.store, dbID, view.Options{
			Rollups:  s.rollups,
			Notifier: s.notifier,
			Logger:   s.log.With("db", dbID),
		})
	}
	s.mu.Unlock()

	if ok && !stale {
		return sess, nil
	}
	if err := sess.Load(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, raced := s.sessions[dbID]; raced && existing != sess {
		return existing, nil
	}
	s.sessions[dbID] = sess
	delete(s.stale, dbID)
	return sess, nil
}

// Close forgets the session for dbID.
func (s *SessionService) Close(dbID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, dbID)
	delete(s.stale, dbID)
}

// Open lists the ids of databases with a live session.
func (s *SessionService) Open() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Emit marks sessions stale on db:* events.
func (s *SessionService) Emit(_ context.Context, event string, data any) {
	ev, ok := data.(DatabaseEvent)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch event {
	case EventDatabaseDeleted:
		delete(s.sessions, ev.DatabaseID)
		delete(s.stale, ev.DatabaseID)
	case EventDBUpdated, EventSchemaUpdated:
		if _, open := s.sessions[ev.DatabaseID]; open {
			s.stale[ev.DatabaseID] = true
		}
	}
}
