package view

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"notedb/internal/domain"
)

func renderSchema() *domain.DatabaseSchema {
	return &domain.DatabaseSchema{
		Name: "Tasks",
		Columns: []domain.ColumnDef{
			{ID: "name", Name: "Name", Type: domain.ColTypeText},
			{ID: "status", Name: "Status", Type: domain.ColTypeSelect, Options: []string{"todo", "doing", "done", "todo"}},
			{ID: "due", Name: "Due", Type: domain.ColTypeDate},
			{ID: "pts", Name: "Points", Type: domain.ColTypeNumber},
		},
	}
}

func renderRows() []*domain.DatabaseRow {
	mk := func(id, name, status, due string, pts float64) *domain.DatabaseRow {
		return &domain.DatabaseRow{ID: id, Fields: map[string]domain.FieldValue{
			"name": domain.TextValue(name), "status": domain.TextValue(status),
			"due": domain.TextValue(due), "pts": domain.NumberValue(pts),
		}}
	}
	return []*domain.DatabaseRow{
		mk("row-1", "Write docs", "todo", "2026-03-05", 3),
		mk("row-2", "Ship", "done", "2026-03-20T10:00:00Z", 8),
		mk("row-3", "Someday", "archived", "", 1),
		mk("row-4", "Plan", "", "not a date", 5),
		mk("row-5", "Review", "todo", "2026-04-01", 2),
	}
}

func laneIDs(b *Board) map[string][]string {
	out := map[string][]string{}
	for _, l := range b.Lanes {
		for _, r := range l.Rows {
			out[l.Label] = append(out[l.Label], r.ID)
		}
	}
	return out
}

func TestBuildBoard(t *testing.T) {
	b, err := BuildBoard(renderSchema(), "", renderRows())
	if err != nil {
		t.Fatalf("BuildBoard: %v", err)
	}
	if b.GroupBy != "status" {
		t.Errorf("GroupBy = %q, want first select column", b.GroupBy)
	}

	var labels []string
	for _, l := range b.Lanes {
		labels = append(labels, l.Label)
	}
	if diff := cmp.Diff([]string{"todo", "doing", "done", UncategorizedLabel}, labels); diff != "" {
		t.Errorf("lanes (-want +got):\n%s", diff)
	}
	want := map[string][]string{
		"todo":             {"row-1", "row-5"},
		"done":             {"row-2"},
		UncategorizedLabel: {"row-3", "row-4"},
	}
	if diff := cmp.Diff(want, laneIDs(b)); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}
	if b.Lanes[1].Rows == nil {
		t.Error("empty lanes should render as an empty list")
	}
	if !b.Lanes[3].Uncategorized || b.Lanes[3].Value != "" {
		t.Errorf("trailing lane = %+v", b.Lanes[3])
	}
}

func TestBuildBoard_NoUncategorizedLane(t *testing.T) {
	rows := renderRows()[:2]
	b, err := BuildBoard(renderSchema(), "status", rows)
	if err != nil {
		t.Fatalf("BuildBoard: %v", err)
	}
	if len(b.Lanes) != 3 {
		t.Errorf("lanes = %d, want 3", len(b.Lanes))
	}
}

func TestGroupColumn(t *testing.T) {
	s := renderSchema()
	if _, err := GroupColumn(s, "name"); !errors.Is(err, domain.ErrInvalidGroupBy) {
		t.Errorf("text group-by err = %v", err)
	}
	if _, err := GroupColumn(s, "gone"); !errors.Is(err, domain.ErrInvalidGroupBy) {
		t.Errorf("missing group-by err = %v", err)
	}
	noSelect := &domain.DatabaseSchema{Columns: []domain.ColumnDef{{ID: "name", Type: domain.ColTypeText}}}
	if _, err := GroupColumn(noSelect, ""); !errors.Is(err, domain.ErrInvalidGroupBy) {
		t.Errorf("default group-by err = %v", err)
	}
}

func TestBuildCalendar(t *testing.T) {
	cal, err := BuildCalendar(renderSchema(), "", renderRows(), 2026, time.March)
	if err != nil {
		t.Fatalf("BuildCalendar: %v", err)
	}
	if cal.DateColumn != "due" {
		t.Errorf("DateColumn = %q", cal.DateColumn)
	}

	// March 2026 starts on a Sunday and ends on a Tuesday.
	if len(cal.Weeks) != 6 {
		t.Fatalf("weeks = %d, want 6", len(cal.Weeks))
	}
	first := cal.Weeks[0][0]
	if first.Date != "2026-02-23" || first.InMonth {
		t.Errorf("first cell = %+v, want Monday 2026-02-23 outside the month", first)
	}
	if d := cal.Weeks[0][6]; d.Date != "2026-03-01" || !d.InMonth || d.Day != 1 {
		t.Errorf("Sunday cell = %+v", d)
	}
	if last := cal.Weeks[5][6]; last.Date != "2026-04-05" {
		t.Errorf("last cell = %s", last.Date)
	}

	check := func(date string, want ...string) {
		t.Helper()
		d, ok := cal.Find(date)
		if !ok {
			t.Fatalf("%s not in grid", date)
		}
		var got []string
		for _, r := range d.Rows {
			got = append(got, r.ID)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s (-want +got):\n%s", date, diff)
		}
	}
	check("2026-03-05", "row-1")
	check("2026-03-20", "row-2")
	check("2026-04-01", "row-5")
	check("2026-03-06")

	var noDate []string
	for _, r := range cal.NoDate {
		noDate = append(noDate, r.ID)
	}
	if diff := cmp.Diff([]string{"row-3", "row-4"}, noDate); diff != "" {
		t.Errorf("no date (-want +got):\n%s", diff)
	}
}

func TestBuildCalendar_MondayStart(t *testing.T) {
	// June 2026 starts on a Monday.
	cal, err := BuildCalendar(renderSchema(), "due", nil, 2026, time.June)
	if err != nil {
		t.Fatalf("BuildCalendar: %v", err)
	}
	if d := cal.Weeks[0][0]; d.Date != "2026-06-01" || !d.InMonth {
		t.Errorf("first cell = %+v", d)
	}
	if len(cal.Weeks) != 5 {
		t.Errorf("weeks = %d, want 5", len(cal.Weeks))
	}
	if _, ok := cal.Find("2026-05-31"); ok {
		t.Error("grid should not include the previous Sunday")
	}
	if cal.NoDate == nil {
		t.Error("NoDate should be an empty list, not nil")
	}
}

func TestBuildCalendar_InvalidColumn(t *testing.T) {
	_, err := BuildCalendar(renderSchema(), "pts", nil, 2026, time.March)
	if !errors.Is(err, domain.ErrInvalidDateColumn) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseDay(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2026-03-05", "2026-03-05", false},
		{" 2026-03-05T10:00:00Z ", "2026-03-05", false},
		{"2026-02-30", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDay(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDay(%q) err = %v", tt.in, err)
			continue
		}
		if err == nil && got.Format(isoDay) != tt.want {
			t.Errorf("ParseDay(%q) = %s", tt.in, got.Format(isoDay))
		}
	}
}

func TestBuildTable_HidesColumns(t *testing.T) {
	s := renderSchema()
	v := domain.ViewDef{Kind: domain.ViewTable, HiddenColumns: []string{"due"}}
	p := Project(context.Background(), &domain.Database{Schema: s, Rows: renderRows()}, v, nil)
	tbl := BuildTable(s, v, p)

	var cols []string
	for _, c := range tbl.Columns {
		cols = append(cols, c.ID)
	}
	if diff := cmp.Diff([]string{"name", "status", "pts"}, cols); diff != "" {
		t.Errorf("columns (-want +got):\n%s", diff)
	}
	if len(tbl.Rows) != 5 || len(tbl.Rows[0].Cells) != 3 {
		t.Fatalf("table shape = %d rows", len(tbl.Rows))
	}
	if got := tbl.Rows[1].Cells[2].Display; got != "8" {
		t.Errorf("pts display = %q", got)
	}
}

func TestProject_FilterThenSort(t *testing.T) {
	v := domain.ViewDef{
		Filters: []domain.FilterCondition{
			{Column: "pts", Operator: domain.OpGTE, Value: "2"},
			{Column: "gone", Operator: domain.OpEquals, Value: "x"},
		},
		FilterLogic:  domain.LogicAnd,
		QuickFilters: map[string]string{"name": "e"},
		Sorts:        []domain.SortRule{{Column: "pts", Direction: domain.SortDesc}},
		LegacySort:   &domain.SortRule{Column: "name", Direction: domain.SortAsc},
	}
	p := Project(context.Background(), &domain.Database{Schema: renderSchema(), Rows: renderRows()}, v, nil)

	var got []string
	for _, r := range p.Rows {
		got = append(got, r.ID)
	}
	// pts >= 2 and name contains "e": Write docs(3), Review(2). Ship has no "e".
	if diff := cmp.Diff([]string{"row-1", "row-5"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestParseBlock(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    BlockConfig
		wantErr string
	}{
		{
			name: "comments and trailing commas",
			body: `{
				// sprint board
				"databaseId": "db-1",
				"mode": "board",
				"groupBy": "status",
			}`,
			want: BlockConfig{DatabaseID: "db-1", Mode: domain.ViewBoard, GroupBy: "status"},
		},
		{name: "calendar month", body: `{"databaseId": "db-1", "mode": "calendar", "month": "2026-04"}`,
			want: BlockConfig{DatabaseID: "db-1", Mode: domain.ViewCalendar, Month: "2026-04"}},
		{name: "missing database", body: `{"mode": "table"}`, wantErr: "databaseId is required"},
		{name: "unknown mode", body: `{"databaseId": "db-1", "mode": "gallery"}`, wantErr: "unknown mode"},
		{name: "bad month", body: `{"databaseId": "db-1", "month": "April"}`, wantErr: "parse month"},
		{name: "not json", body: `databaseId: db-1`, wantErr: "parse block"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBlock([]byte(tt.body))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBlock: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

// memStore serves a single database from memory.
type memStore struct {
	domain.RowStore
	db *domain.Database
}

func (m *memStore) GetDatabase(_ context.Context, id string) (*domain.Database, error) {
	if id != m.db.ID {
		return nil, domain.ErrDatabaseNotFound
	}
	return &domain.Database{ID: m.db.ID, Schema: m.db.Schema.Clone(), Rows: m.db.Rows}, nil
}

func TestRenderBlock(t *testing.T) {
	ctx := context.Background()
	store := &memStore{db: &domain.Database{ID: "db-1", Schema: renderSchema(), Rows: renderRows()}}
	now := func() time.Time { return time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC) }
	s := NewSession(store, "db-1", Options{Now: now})

	out, err := RenderBlock(ctx, s, BlockConfig{DatabaseID: "db-1", Mode: domain.ViewCalendar, Month: "2026-04"})
	if err != nil {
		t.Fatalf("RenderBlock: %v", err)
	}
	if out.Calendar == nil || out.Calendar.Month != time.April {
		t.Fatalf("calendar = %+v", out.Calendar)
	}
	if out.Table != nil || out.Board != nil {
		t.Error("only the calendar should be rendered")
	}
	if s.View().Kind != domain.ViewTable {
		t.Error("block overrides must not change the session's view")
	}

	out, err = RenderBlock(ctx, s, BlockConfig{DatabaseID: "db-1", Mode: domain.ViewBoard})
	if err != nil {
		t.Fatalf("RenderBlock board: %v", err)
	}
	if out.Board == nil || out.RowCount != 5 {
		t.Fatalf("board = %+v", out)
	}

	if _, err := RenderBlock(ctx, s, BlockConfig{DatabaseID: "db-2"}); err == nil {
		t.Error("expected an error for a block naming another database")
	}
	if _, err := RenderBlock(ctx, s, BlockConfig{DatabaseID: "db-1", ViewID: "nope"}); !errors.Is(err, domain.ErrViewNotFound) {
		t.Errorf("err = %v, want ErrViewNotFound", err)
	}
}

func TestRender_InvalidBoardWarns(t *testing.T) {
	schema := &domain.DatabaseSchema{Name: "Notes", Columns: []domain.ColumnDef{{ID: "name", Name: "Name", Type: domain.ColTypeText}}}
	store := &memStore{db: &domain.Database{ID: "db-1", Schema: schema}}
	notices := &NoticeLog{}
	s := NewSession(store, "db-1", Options{Notifier: notices})
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := s.RenderView(context.Background(), domain.ViewDef{Kind: domain.ViewBoard})
	if !errors.Is(err, domain.ErrInvalidGroupBy) {
		t.Fatalf("err = %v", err)
	}
	got := notices.Drain()
	if len(got) != 1 || got[0].Level != NoticeWarn {
		t.Errorf("notices = %+v", got)
	}
	if len(notices.Drain()) != 0 {
		t.Error("Drain should clear the log")
	}
}

func TestRender_BeforeLoad(t *testing.T) {
	s := NewSession(&memStore{db: &domain.Database{ID: "db-1"}}, "db-1", Options{})
	if _, err := s.Render(context.Background()); err == nil {
		t.Error("expected an error before Load")
	}
}
