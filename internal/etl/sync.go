package etl

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// ── Job ────────────────────────────────────────────────────
// Orchestrates: source.Read → transform chain → destination.Write.

// Trigger types.
const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"
	TriggerFileWatch = "file_watch"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Job holds the configuration of one import.
type Job struct {
	Name       string            `json:"name"`
	SourceType string            `json:"sourceType"`
	SourceCfg  SourceConfig      `json:"sourceConfig"`
	Transforms []TransformConfig `json:"transforms,omitempty"`
	// Target is a database id or name.
	Target    string   `json:"target"`
	SyncMode  SyncMode `json:"syncMode,omitempty"`
	DedupeKey string   `json:"dedupeKey,omitempty"`
	// TriggerType is manual, schedule or file_watch. TriggerConfig is the
	// cron expression or the watched path.
	TriggerType   string `json:"triggerType,omitempty"`
	TriggerConfig string `json:"triggerConfig,omitempty"`
	Enabled       bool   `json:"enabled"`
}

// Validate checks the parts of a job that do not need I/O.
func (j *Job) Validate() error {
	if j.Name == "" {
		return errors.New("import job needs a name")
	}
	src, err := GetSource(j.SourceType)
	if err != nil {
		return fmt.Errorf("job %s: %w", j.Name, err)
	}
	if err := src.Spec().Validate(j.SourceCfg); err != nil {
		return fmt.Errorf("job %s: %w", j.Name, err)
	}
	if j.Target == "" {
		return fmt.Errorf("job %s: target is required", j.Name)
	}
	switch j.SyncMode {
	case "", SyncAppend, SyncReplace:
	default:
		return fmt.Errorf("job %s: unknown sync mode %q", j.Name, j.SyncMode)
	}
	switch j.TriggerType {
	case "", TriggerManual:
	case TriggerSchedule, TriggerFileWatch:
		if j.TriggerConfig == "" {
			return fmt.Errorf("job %s: %s trigger needs triggerConfig", j.Name, j.TriggerType)
		}
	default:
		return fmt.Errorf("job %s: unknown trigger %q", j.Name, j.TriggerType)
	}
	return nil
}

// Result is the outcome of running a job.
type Result struct {
	Job         string        `json:"job"`
	Status      string        `json:"status"`
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// RunLog is a historical record of a run.
type RunLog struct {
	ID          string    `json:"id"`
	Job         string    `json:"job"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Status      string    `json:"status"`
	RowsRead    int       `json:"rowsRead"`
	RowsWritten int       `json:"rowsWritten"`
	Error       string    `json:"error,omitempty"`
}

// RunLogStore persists run history.
type RunLogStore interface {
	CreateRunLog(ctx context.Context, log *RunLog) error
	ListRunLogs(ctx context.Context, job string, limit int) ([]RunLog, error)
}

// MemoryRunLog keeps run history in memory, newest first.
type MemoryRunLog struct {
	mu   sync.Mutex
	logs []RunLog
	seq  int
}

func (m *MemoryRunLog) CreateRunLog(_ context.Context, l *RunLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	l.ID = fmt.Sprintf("run-%d", m.seq)
	m.logs = slices.Insert(m.logs, 0, *l)
	return nil
}

func (m *MemoryRunLog) ListRunLogs(_ context.Context, job string, limit int) ([]RunLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RunLog
	for _, l := range m.logs {
		if l.Job == job {
			out = append(out, l)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs jobs using the registered sources and a destination.
type Engine struct {
	Dest Destination
}

// RunSync executes a job end-to-end.
func (e *Engine) RunSync(ctx context.Context, job *Job) (*Result, error) {
	start := time.Now()
	result := &Result{Job: job.Name}
	fail := func(stage string, err error) (*Result, error) {
		result.Status = StatusError
		result.Error = fmt.Sprintf("%s: %s", stage, err)
		result.Duration = time.Since(start)
		return result, fmt.Errorf("%s: %w", stage, err)
	}

	source, err := GetSource(job.SourceType)
	if err != nil {
		return fail("source", err)
	}
	schema, err := source.Discover(ctx, job.SourceCfg)
	if err != nil {
		return fail("discover", err)
	}

	recCh, errCh := source.Read(ctx, job.SourceCfg)
	transformers := BuildTransformers(job.Transforms, job.DedupeKey)

	var records []Record
	for rec := range recCh {
		result.RowsRead++
		if out, keep := ApplyTransformers(rec, transformers); keep {
			records = append(records, out)
		}
	}
	if err := <-errCh; err != nil {
		return fail("read", err)
	}

	mode := job.SyncMode
	if mode == "" {
		mode = SyncAppend
	}
	written, err := e.Dest.Write(ctx, job.Target, deriveSchemaFromRecords(records, schema), records, mode)
	result.RowsWritten = written
	if err != nil {
		return fail("write", err)
	}

	result.Status = StatusSuccess
	result.Duration = time.Since(start)
	return result, nil
}

// Preview executes only the source read phase and returns up to maxRows records.
func (e *Engine) Preview(ctx context.Context, sourceType string, cfg SourceConfig, maxRows int) ([]Record, *Schema, error) {
	source, err := GetSource(sourceType)
	if err != nil {
		return nil, nil, err
	}
	schema, err := source.Discover(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("discover: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	recCh, errCh := source.Read(ctx, cfg)

	var records []Record
	for rec := range recCh {
		records = append(records, rec)
		if len(records) >= maxRows {
			cancel()
			break
		}
	}
	// Drain so the source goroutine can exit.
	for range recCh {
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return records, schema, err
	}
	return records, schema, nil
}

// deriveSchemaFromRecords builds the output schema from the keys present in
// transformed records, keeping source order and type hints where known.
func deriveSchemaFromRecords(records []Record, sourceSchema *Schema) *Schema {
	if len(records) == 0 {
		if sourceSchema == nil {
			return &Schema{}
		}
		return sourceSchema
	}

	typeMap := make(map[string]string)
	var order []string
	if sourceSchema != nil {
		for _, f := range sourceSchema.Fields {
			typeMap[f.Name] = f.Type
			order = append(order, f.Name)
		}
	}

	present := make(map[string]bool)
	var extra []string
	for _, r := range records {
		for k := range r.Data {
			if present[k] {
				continue
			}
			present[k] = true
			if _, known := typeMap[k]; !known {
				extra = append(extra, k)
			}
		}
	}
	slices.Sort(extra)

	fields := make([]Field, 0, len(present))
	for _, name := range append(order, extra...) {
		if !present[name] {
			continue
		}
		ft := typeMap[name]
		if ft == "" {
			ft = FieldText
		}
		fields = append(fields, Field{Name: name, Type: ft})
	}
	return &Schema{Fields: fields}
}
