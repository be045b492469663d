package view

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"notedb/internal/domain"
	"notedb/internal/query"
	"notedb/internal/rollup"
	"notedb/internal/template"
)

var errNotLoaded = errors.New("view session not loaded")

// Options configures a Session.
type Options struct {
	// ViewID selects the persisted view; empty means the first view.
	ViewID   string
	Rollups  *rollup.Engine
	Notifier Notifier
	Logger   *zap.SugaredLogger
	// Now is used for the initial calendar month.
	Now func() time.Time
}

// Session holds the local, provisional copy of one database for one view
// and reconciles it with the row store after every mutation.
//
// Field edits, row creation and deletion wait for the store's answer before
// touching local state. Board moves and calendar drops apply locally first
// and reload the whole row set if the store rejects them. Schema changes
// always reload after the store acknowledges.
type Session struct {
	store    domain.RowStore
	dbID     string
	rollups  *rollup.Engine
	notifier Notifier
	log      *zap.SugaredLogger

	mu      sync.Mutex
	viewID  string
	schema  *domain.DatabaseSchema
	rows    []*domain.DatabaseRow
	pending []*PendingMutation
	year    int
	month   time.Month
}

// NewSession creates a session for dbID. Call Load before rendering.
func NewSession(store domain.RowStore, dbID string, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(func(Notice) {})
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	t := now()
	return &Session{
		store:    store,
		dbID:     dbID,
		viewID:   opts.ViewID,
		rollups:  opts.Rollups,
		notifier: opts.Notifier,
		log:      opts.Logger,
		year:     t.Year(),
		month:    t.Month(),
	}
}

// DatabaseID returns the database this session views.
func (s *Session) DatabaseID() string { return s.dbID }

// Load replaces local state with the store's schema and rows.
func (s *Session) Load(ctx context.Context) error {
	db, err := s.store.GetDatabase(ctx, s.dbID)
	if err != nil {
		return s.fail("load database", err)
	}
	s.mu.Lock()
	s.schema = db.Schema
	s.rows = db.Rows
	s.mu.Unlock()
	return nil
}

// Schema returns a copy of the local schema.
func (s *Session) Schema() *domain.DatabaseSchema {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schema.Clone()
}

// Rows returns copies of the local rows in store order.
func (s *Session) Rows() []*domain.DatabaseRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRows(s.rows)
}

// Row returns a copy of one local row.
func (s *Session) Row(id string) (*domain.DatabaseRow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.rowIndexLocked(id); i >= 0 {
		return s.rows[i].Clone(), true
	}
	return nil, false
}

// Pending returns the optimistic mutations still awaiting the store.
func (s *Session) Pending() []PendingMutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingMutation, len(s.pending))
	for i, p := range s.pending {
		out[i] = *p
	}
	return out
}

// View returns the active view definition.
func (s *Session) View() domain.ViewDef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() domain.ViewDef {
	if s.schema == nil {
		return DefaultView()
	}
	if s.viewID != "" {
		if v, ok := s.schema.View(s.viewID); ok {
			return *v
		}
	}
	if len(s.schema.Views) > 0 {
		return s.schema.Views[0]
	}
	return DefaultView()
}

// SelectView makes a persisted view the active one. Local only.
func (s *Session) SelectView(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema == nil {
		return errNotLoaded
	}
	if _, ok := s.schema.View(id); !ok {
		return fmt.Errorf("view %s: %w", id, domain.ErrViewNotFound)
	}
	s.viewID = id
	return nil
}

// SetMonth moves the calendar to another month. Local only.
func (s *Session) SetMonth(year int, month time.Month) {
	s.mu.Lock()
	s.year, s.month = year, month
	s.mu.Unlock()
}

// Rendered is the output of one view render.
type Rendered struct {
	DatabaseID string         `json:"databaseId"`
	Name       string         `json:"name"`
	View       domain.ViewDef `json:"view"`
	RowCount   int            `json:"rowCount"`
	Table      *Table         `json:"table,omitempty"`
	Board      *Board         `json:"board,omitempty"`
	Calendar   *Calendar      `json:"calendar,omitempty"`
}

// Render renders the active view.
func (s *Session) Render(ctx context.Context) (*Rendered, error) {
	return s.RenderView(ctx, s.View())
}

// RenderView renders the local row set through v without persisting v.
func (s *Session) RenderView(ctx context.Context, v domain.ViewDef) (*Rendered, error) {
	s.mu.Lock()
	if s.schema == nil {
		s.mu.Unlock()
		return nil, errNotLoaded
	}
	db := &domain.Database{ID: s.dbID, Schema: s.schema.Clone(), Rows: cloneRows(s.rows)}
	year, month := s.year, s.month
	s.mu.Unlock()

	p := Project(ctx, db, v, s.rollups)
	out := &Rendered{DatabaseID: s.dbID, Name: db.Schema.Name, View: v, RowCount: len(p.Rows)}

	switch v.Kind {
	case domain.ViewBoard:
		b, err := BuildBoard(db.Schema, v.GroupBy, p.Rows)
		if err != nil {
			s.warn(err.Error())
			return nil, err
		}
		out.Board = b
	case domain.ViewCalendar:
		c, err := BuildCalendar(db.Schema, v.DateColumn, p.Rows, year, month)
		if err != nil {
			s.warn(err.Error())
			return nil, err
		}
		out.Calendar = c
	default:
		out.Table = BuildTable(db.Schema, v, p)
	}
	return out, nil
}

// ── Edit-then-merge ────────────────────────────────────────

// EditCell writes one field and merges the store's canonical row.
func (s *Session) EditCell(ctx context.Context, rowID, columnID string, value domain.FieldValue) (*domain.DatabaseRow, error) {
	if _, err := s.storedColumn(columnID); err != nil {
		return nil, err
	}
	row, err := s.store.UpdateRow(ctx, s.dbID, rowID, map[string]domain.FieldValue{columnID: value}, nil)
	if err != nil {
		return nil, s.fail("update row", err)
	}
	s.merge(row)
	return row.Clone(), nil
}

// EditBody replaces a row's body.
func (s *Session) EditBody(ctx context.Context, rowID, body string) (*domain.DatabaseRow, error) {
	row, err := s.store.UpdateRow(ctx, s.dbID, rowID, nil, &body)
	if err != nil {
		return nil, s.fail("update row", err)
	}
	s.merge(row)
	return row.Clone(), nil
}

// CreatedRow is a new row plus editor hints.
type CreatedRow struct {
	Row *domain.DatabaseRow `json:"row"`
	// EditColumn is the column to open for inline editing (the title).
	EditColumn string `json:"editColumn,omitempty"`
	// CursorLine is an opaque body line hint for the embedding editor.
	CursorLine int `json:"cursorLine"`
}

// CreateRow creates a row; missing columns get their type defaults.
func (s *Session) CreateRow(ctx context.Context, fields map[string]domain.FieldValue, body *string) (*CreatedRow, error) {
	row, err := s.store.CreateRow(ctx, s.dbID, fields, body)
	if err != nil {
		return nil, s.fail("create row", err)
	}
	s.merge(row)
	return &CreatedRow{Row: row.Clone(), EditColumn: s.titleColumnID()}, nil
}

// DeleteRow deletes a row once the store confirms.
func (s *Session) DeleteRow(ctx context.Context, rowID string) error {
	if err := s.store.DeleteRow(ctx, s.dbID, rowID); err != nil {
		return s.fail("delete row", err)
	}
	s.mu.Lock()
	if i := s.rowIndexLocked(rowID); i >= 0 {
		s.rows = slices.Delete(s.rows, i, i+1)
	}
	s.mu.Unlock()
	s.invalidate()
	return nil
}

// ApplyTemplate creates a row from a template. title must be non-nil when
// the template's title pattern has a placeholder; it is ignored otherwise.
func (s *Session) ApplyTemplate(ctx context.Context, templateID string, title *string) (*CreatedRow, error) {
	schema := s.Schema()
	if schema == nil {
		return nil, errNotLoaded
	}
	tpl, ok := template.Lookup(schema, templateID)
	if !ok {
		return nil, fmt.Errorf("template %q: %w", templateID, domain.ErrTemplateNotFound)
	}

	vars := map[string]string{}
	if template.NeedsTitle(tpl) {
		if title == nil {
			return nil, fmt.Errorf("template %q: %w", templateID, domain.ErrTitleRequired)
		}
		vars[template.TitleVar] = *title
	}
	exp, err := template.Expand(tpl, schema, vars)
	if err != nil {
		return nil, err
	}

	row, err := s.store.CreateRowFromTemplate(ctx, s.dbID, templateID, vars)
	if err != nil {
		return nil, s.fail("create row from template", err)
	}
	s.merge(row)
	return &CreatedRow{Row: row.Clone(), EditColumn: s.titleColumnID(), CursorLine: exp.CursorLine}, nil
}

// CreateOnDay handles a click on an empty calendar day: a row with every
// column defaulted and day in the date column.
func (s *Session) CreateOnDay(ctx context.Context, day string) (*CreatedRow, error) {
	t, err := ParseDay(day)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.schema == nil {
		s.mu.Unlock()
		return nil, errNotLoaded
	}
	v := s.viewLocked()
	col, err := DateColumn(s.schema, v.DateColumn)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	fields := domain.NewRowFields(s.schema, map[string]domain.FieldValue{col.ID: domain.TextValue(t.Format(isoDay))})
	s.mu.Unlock()

	return s.CreateRow(ctx, fields, nil)
}

// ── Optimistic-then-reconcile ──────────────────────────────

// MoveCard moves a board card to another lane. lane "" is uncategorized.
func (s *Session) MoveCard(ctx context.Context, rowID, lane string) (*PendingMutation, error) {
	s.mu.Lock()
	if s.schema == nil {
		s.mu.Unlock()
		return nil, errNotLoaded
	}
	col, err := GroupColumn(s.schema, s.viewLocked().GroupBy)
	if err == nil && lane != "" && !col.HasOption(lane) {
		err = fmt.Errorf("lane %q is not an option of %s: %w", lane, col.Name, domain.ErrInvalidGroupBy)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.optimistic(ctx, "move card", rowID, col.ID, domain.TextValue(lane))
}

// DropOnDay moves a calendar card to another day.
func (s *Session) DropOnDay(ctx context.Context, rowID, day string) (*PendingMutation, error) {
	t, err := ParseDay(day)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.schema == nil {
		s.mu.Unlock()
		return nil, errNotLoaded
	}
	col, err := DateColumn(s.schema, s.viewLocked().DateColumn)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.optimistic(ctx, "move card", rowID, col.ID, domain.TextValue(t.Format(isoDay)))
}

func (s *Session) optimistic(ctx context.Context, op, rowID, columnID string, next domain.FieldValue) (*PendingMutation, error) {
	s.mu.Lock()
	i := s.rowIndexLocked(rowID)
	if i < 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("row %s: %w", rowID, domain.ErrRowNotFound)
	}
	pm := newPendingMutation(rowID, columnID, s.rows[i].Field(columnID), next)
	s.rows[i] = withField(s.rows[i], columnID, next)
	s.pending = append(s.pending, pm)
	s.mu.Unlock()

	canonical, err := s.store.UpdateRow(ctx, s.dbID, rowID, map[string]domain.FieldValue{columnID: next}, nil)
	if err != nil {
		s.mu.Lock()
		_ = pm.RollBack()
		s.dropPendingLocked(pm)
		s.mu.Unlock()

		ferr := s.fail(op, err)
		if rerr := s.Load(ctx); rerr != nil {
			s.mu.Lock()
			if j := s.rowIndexLocked(rowID); j >= 0 {
				s.rows[j] = withField(s.rows[j], columnID, pm.Previous)
			}
			s.mu.Unlock()
		}
		return pm, ferr
	}

	s.mu.Lock()
	_ = pm.Confirm()
	s.dropPendingLocked(pm)
	s.mu.Unlock()
	s.merge(canonical)
	return pm, nil
}

// ── Schema mutations (always reload) ───────────────────────

// AddColumn adds a column and reloads.
func (s *Session) AddColumn(ctx context.Context, col domain.ColumnDef) error {
	if _, err := s.store.AddColumn(ctx, s.dbID, col); err != nil {
		return s.fail("add column", err)
	}
	return s.reloadAfterSchemaChange(ctx)
}

// RemoveColumn removes a column from the schema and every row, then reloads.
func (s *Session) RemoveColumn(ctx context.Context, columnID string) error {
	if _, err := s.store.RemoveColumn(ctx, s.dbID, columnID); err != nil {
		return s.fail("remove column", err)
	}
	return s.reloadAfterSchemaChange(ctx)
}

// RenameColumn changes a column's display name; its id is unchanged.
func (s *Session) RenameColumn(ctx context.Context, columnID, name string) error {
	schema := s.Schema()
	if schema == nil {
		return errNotLoaded
	}
	col, ok := schema.Column(columnID)
	if !ok {
		return fmt.Errorf("column %s: %w", columnID, domain.ErrColumnNotFound)
	}
	col.Name = name
	if _, err := s.store.UpdateSchema(ctx, s.dbID, schema); err != nil {
		return s.fail("rename column", err)
	}
	return s.reloadAfterSchemaChange(ctx)
}

// MoveColumn moves a column to index in display order.
func (s *Session) MoveColumn(ctx context.Context, columnID string, index int) error {
	schema := s.Schema()
	if schema == nil {
		return errNotLoaded
	}
	from := slices.IndexFunc(schema.Columns, func(c domain.ColumnDef) bool { return c.ID == columnID })
	if from < 0 {
		return fmt.Errorf("column %s: %w", columnID, domain.ErrColumnNotFound)
	}
	col := schema.Columns[from]
	schema.Columns = slices.Delete(schema.Columns, from, from+1)
	index = max(0, min(index, len(schema.Columns)))
	schema.Columns = slices.Insert(schema.Columns, index, col)

	if _, err := s.store.UpdateSchema(ctx, s.dbID, schema); err != nil {
		return s.fail("reorder columns", err)
	}
	return s.reloadAfterSchemaChange(ctx)
}

func (s *Session) reloadAfterSchemaChange(ctx context.Context) error {
	s.invalidate()
	return s.Load(ctx)
}

// ── View configuration ─────────────────────────────────────

// SetViewKind switches presentation. Rows are untouched.
func (s *Session) SetViewKind(ctx context.Context, kind domain.ViewKind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown view kind %q", kind)
	}
	return s.updateView(ctx, func(_ *domain.DatabaseSchema, v *domain.ViewDef) error {
		v.Kind = kind
		return nil
	})
}

// SetGroupBy sets the board's group-by column.
func (s *Session) SetGroupBy(ctx context.Context, columnID string) error {
	return s.updateView(ctx, func(schema *domain.DatabaseSchema, v *domain.ViewDef) error {
		if _, err := GroupColumn(schema, columnID); err != nil {
			return err
		}
		v.GroupBy = columnID
		return nil
	})
}

// SetDateColumn sets the calendar's date column.
func (s *Session) SetDateColumn(ctx context.Context, columnID string) error {
	return s.updateView(ctx, func(schema *domain.DatabaseSchema, v *domain.ViewDef) error {
		if _, err := DateColumn(schema, columnID); err != nil {
			return err
		}
		v.DateColumn = columnID
		return nil
	})
}

// SetFilters replaces the structured filter set.
func (s *Session) SetFilters(ctx context.Context, conds []domain.FilterCondition, logic domain.FilterLogic) error {
	if logic != domain.LogicOr {
		logic = domain.LogicAnd
	}
	return s.updateView(ctx, func(_ *domain.DatabaseSchema, v *domain.ViewDef) error {
		v.Filters = slices.Clone(conds)
		v.FilterLogic = logic
		return nil
	})
}

// SetSorts replaces the multi-level sort rules.
func (s *Session) SetSorts(ctx context.Context, rules []domain.SortRule) error {
	return s.updateView(ctx, func(_ *domain.DatabaseSchema, v *domain.ViewDef) error {
		v.Sorts = slices.Clone(rules)
		return nil
	})
}

// ClickHeader applies a column-header click to the legacy single-column sort.
func (s *Session) ClickHeader(ctx context.Context, columnID string) error {
	return s.updateView(ctx, func(schema *domain.DatabaseSchema, v *domain.ViewDef) error {
		if _, ok := schema.Column(columnID); !ok {
			return fmt.Errorf("column %s: %w", columnID, domain.ErrColumnNotFound)
		}
		v.LegacySort = query.ToggleLegacy(v.LegacySort, columnID)
		return nil
	})
}

// SetQuickFilter sets (or clears, with "") a legacy per-column filter.
func (s *Session) SetQuickFilter(ctx context.Context, columnID, text string) error {
	return s.updateView(ctx, func(_ *domain.DatabaseSchema, v *domain.ViewDef) error {
		if text == "" {
			delete(v.QuickFilters, columnID)
			return nil
		}
		if v.QuickFilters == nil {
			v.QuickFilters = map[string]string{}
		}
		v.QuickFilters[columnID] = text
		return nil
	})
}

func (s *Session) updateView(ctx context.Context, mutate func(*domain.DatabaseSchema, *domain.ViewDef) error) error {
	s.mu.Lock()
	if s.schema == nil {
		s.mu.Unlock()
		return errNotLoaded
	}
	schema := s.schema.Clone()
	current := s.viewLocked()
	s.mu.Unlock()

	v, ok := schema.View(current.ID)
	if !ok {
		schema.Views = append(schema.Views, current)
		v = &schema.Views[len(schema.Views)-1]
	}
	if err := mutate(schema, v); err != nil {
		return err
	}
	viewID := v.ID

	updated, err := s.store.UpdateSchema(ctx, s.dbID, schema)
	if err != nil {
		return s.fail("save view", err)
	}
	s.mu.Lock()
	s.schema = updated
	s.viewID = viewID
	s.mu.Unlock()
	return nil
}

// ── helpers ────────────────────────────────────────────────

func (s *Session) storedColumn(id string) (*domain.ColumnDef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema == nil {
		return nil, errNotLoaded
	}
	col, ok := s.schema.Column(id)
	if !ok {
		return nil, fmt.Errorf("column %s: %w", id, domain.ErrColumnNotFound)
	}
	if !col.Type.Stored() {
		return nil, fmt.Errorf("column %s is computed: %w", id, domain.ErrInvalidColumn)
	}
	return col, nil
}

func (s *Session) titleColumnID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema == nil {
		return ""
	}
	if c, ok := s.schema.TitleColumn(); ok {
		return c.ID
	}
	return ""
}

// merge replaces (or appends) a row with the store's canonical copy.
func (s *Session) merge(row *domain.DatabaseRow) {
	s.mu.Lock()
	if i := s.rowIndexLocked(row.ID); i >= 0 {
		s.rows[i] = row.Clone()
	} else {
		s.rows = append(s.rows, row.Clone())
	}
	s.mu.Unlock()
	s.invalidate()
}

func (s *Session) rowIndexLocked(id string) int {
	return slices.IndexFunc(s.rows, func(r *domain.DatabaseRow) bool { return r.ID == id })
}

func (s *Session) dropPendingLocked(pm *PendingMutation) {
	s.pending = slices.DeleteFunc(s.pending, func(p *PendingMutation) bool { return p == pm })
}

// invalidate drops cached copies of this database held for rollups of
// other databases.
func (s *Session) invalidate() {
	if s.rollups != nil {
		s.rollups.Cache().Invalidate(s.dbID)
	}
}

func (s *Session) fail(op string, err error) error {
	err = domain.WrapAdapter(op, s.dbID, err)
	s.log.Warnw("view: store call failed", "op", op, "database", s.dbID, "error", err)
	s.notifier.Notify(Notice{
		Level:      NoticeError,
		Message:    fmt.Sprintf("Could not %s: %v", op, errors.Unwrap(err)),
		DatabaseID: s.dbID,
		Retry:      true,
	})
	return err
}

func (s *Session) warn(msg string) {
	s.notifier.Notify(Notice{Level: NoticeWarn, Message: msg, DatabaseID: s.dbID})
}

func withField(row *domain.DatabaseRow, columnID string, v domain.FieldValue) *domain.DatabaseRow {
	c := row.Clone()
	if c.Fields == nil {
		c.Fields = make(map[string]domain.FieldValue, 1)
	}
	c.Fields[columnID] = v.Clone()
	return c
}

func cloneRows(rows []*domain.DatabaseRow) []*domain.DatabaseRow {
	out := make([]*domain.DatabaseRow, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
