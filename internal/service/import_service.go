package service

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"notedb/internal/domain"
	"notedb/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// Import Service: runs configured import jobs into databases
// ─────────────────────────────────────────────────────────────

const (
	runTimeout     = 5 * time.Minute
	previewTimeout = 30 * time.Second
	watchDebounce  = 500 * time.Millisecond
)

// ImportService owns the configured import jobs, their schedules and file
// watchers. Jobs write through a RowStore, normally the DatabaseService, so
// every import emits the usual db:* events.
type ImportService struct {
	jobs    map[string]etl.Job
	engine  *etl.Engine
	runs    etl.RunLogStore
	emitter EventEmitter
	log     *zap.SugaredLogger

	runningJobs runningJobsGuard

	// watcher / cron lifecycle
	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewImportService validates jobs and creates an ImportService. runs may be
// nil, in which case history is kept in memory.
func NewImportService(
	jobs []etl.Job,
	store domain.RowStore,
	runs etl.RunLogStore,
	emitter EventEmitter,
	log *zap.SugaredLogger,
) (*ImportService, error) {
	if runs == nil {
		runs = &etl.MemoryRunLog{}
	}
	if emitter == nil {
		emitter = Emitters(nil)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	byName := make(map[string]etl.Job, len(jobs))
	for _, j := range jobs {
		if err := j.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byName[j.Name]; dup {
			return nil, fmt.Errorf("duplicate import job %q", j.Name)
		}
		byName[j.Name] = j
	}
	return &ImportService{
		jobs:    byName,
		engine:  &etl.Engine{Dest: &etl.RowStoreWriter{Store: store, CreateMissing: true}},
		runs:    runs,
		emitter: emitter,
		log:     log.Named("import"),
	}, nil
}

// ── Jobs ───────────────────────────────────────────────────

// ListJobs returns the configured jobs sorted by name.
func (s *ImportService) ListJobs() []etl.Job {
	out := make([]etl.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	slices.SortFunc(out, func(a, b etl.Job) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out
}

// Job looks up a job by name.
func (s *ImportService) Job(name string) (etl.Job, bool) {
	j, ok := s.jobs[name]
	return j, ok
}

// ListSources returns the available source descriptors.
func (s *ImportService) ListSources() []etl.SourceSpec {
	return etl.ListSources()
}

// ListRunLogs returns the most recent runs of a job.
func (s *ImportService) ListRunLogs(ctx context.Context, name string, limit int) ([]etl.RunLog, error) {
	return s.runs.ListRunLogs(ctx, name, limit)
}

// Running lists the jobs currently in flight.
func (s *ImportService) Running() []string {
	return s.runningJobs.Running()
}

// ── Run ────────────────────────────────────────────────────

// RunJob executes one job synchronously. A job that is already running is
// rejected rather than queued.
func (s *ImportService) RunJob(ctx context.Context, name string) (*etl.Result, error) {
	job, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("unknown import job %q", name)
	}
	if !s.runningJobs.TryLock(name) {
		return nil, fmt.Errorf("job %s is already running", name)
	}
	defer s.runningJobs.Unlock(name)

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	start := time.Now()
	s.log.Infow("import started", "job", name, "source", job.SourceType, "target", job.Target)
	result, runErr := s.engine.RunSync(runCtx, &job)

	runLog := &etl.RunLog{
		Job:         name,
		StartedAt:   start,
		FinishedAt:  time.Now(),
		Status:      result.Status,
		RowsRead:    result.RowsRead,
		RowsWritten: result.RowsWritten,
	}
	if runErr != nil {
		runLog.Error = runErr.Error()
	}
	if err := s.runs.CreateRunLog(ctx, runLog); err != nil {
		s.log.Warnw("could not record run", "job", name, "error", err)
	}

	if runErr != nil {
		s.log.Errorw("import failed", "job", name, "error", runErr)
	} else {
		s.log.Infow("import finished", "job", name,
			"read", result.RowsRead, "written", result.RowsWritten, "duration", result.Duration)
	}
	s.emitter.Emit(ctx, EventImportCompleted, *result)
	return result, runErr
}

// ── Preview ────────────────────────────────────────────────

// PreviewResult is the response from Preview.
type PreviewResult struct {
	Schema  *etl.Schema  `json:"schema"`
	Records []etl.Record `json:"records"`
}

// Preview reads up to maxRows records from a source without writing.
func (s *ImportService) Preview(ctx context.Context, sourceType string, cfg etl.SourceConfig, maxRows int) (*PreviewResult, error) {
	if maxRows <= 0 {
		maxRows = 10
	}
	previewCtx, cancel := context.WithTimeout(ctx, previewTimeout)
	defer cancel()

	records, schema, err := s.engine.Preview(previewCtx, sourceType, cfg, maxRows)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{Schema: schema, Records: records}, nil
}

// ── Watchers (cron + file_watch) ──────────────────────────

// Start schedules enabled jobs. Calling it again rebuilds the schedule.
func (s *ImportService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()

	var scheduled, watched []etl.Job
	for _, j := range s.ListJobs() {
		if !j.Enabled {
			continue
		}
		switch j.TriggerType {
		case etl.TriggerSchedule:
			scheduled = append(scheduled, j)
		case etl.TriggerFileWatch:
			watched = append(watched, j)
		}
	}

	if len(scheduled) > 0 {
		c := cron.New()
		for _, j := range scheduled {
			name := j.Name
			if _, err := c.AddFunc(j.TriggerConfig, func() { s.runInBackground(ctx, name, "cron") }); err != nil {
				return fmt.Errorf("job %s: invalid schedule %q: %w", name, j.TriggerConfig, err)
			}
		}
		c.Start()
		s.cronSched = c
		s.log.Infow("scheduled import jobs", "count", len(scheduled))
	}

	if len(watched) > 0 {
		if err := s.watchFilesLocked(ctx, watched); err != nil {
			s.stopWatchersLocked()
			return err
		}
	}
	return nil
}

func (s *ImportService) watchFilesLocked(ctx context.Context, jobs []etl.Job) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	s.watcher = watcher

	pathToJob := make(map[string]string)
	watchedDirs := make(map[string]bool)
	for _, j := range jobs {
		absPath, err := filepath.Abs(j.TriggerConfig)
		if err != nil {
			return fmt.Errorf("job %s: bad path %q: %w", j.Name, j.TriggerConfig, err)
		}
		pathToJob[absPath] = j.Name

		// Watch the directory so editors that replace the file are seen.
		dir := filepath.Dir(absPath)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			watchedDirs[dir] = true
		}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel

	go func() {
		timers := make(map[string]*time.Timer)
		defer func() {
			for _, t := range timers {
				t.Stop()
			}
		}()
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				absPath, _ := filepath.Abs(event.Name)
				name, ok := pathToJob[absPath]
				if !ok {
					continue
				}
				if t, exists := timers[name]; exists {
					t.Stop()
				}
				timers[name] = time.AfterFunc(watchDebounce, func() {
					s.runInBackground(ctx, name, "file change")
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warnw("watcher error", "error", err)
			}
		}
	}()

	s.log.Infow("watching import files", "count", len(pathToJob))
	return nil
}

func (s *ImportService) runInBackground(ctx context.Context, name, reason string) {
	s.log.Debugw("triggered import", "job", name, "reason", reason)
	if _, err := s.RunJob(ctx, name); err != nil {
		s.log.Warnw("triggered import failed", "job", name, "reason", reason, "error", err)
	}
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *ImportService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *ImportService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()
}

func (s *ImportService) stopWatchersLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
