package rollup_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notedb/internal/domain"
	"notedb/internal/rollup"
)

type fakeLoader struct {
	mu    sync.Mutex
	dbs   map[string]*domain.Database
	fail  map[string]error
	loads map[string]int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{dbs: map[string]*domain.Database{}, fail: map[string]error{}, loads: map[string]int{}}
}

func (f *fakeLoader) GetDatabase(_ context.Context, id string) (*domain.Database, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads[id]++
	if err := f.fail[id]; err != nil {
		return nil, err
	}
	db, ok := f.dbs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return db, nil
}

func (f *fakeLoader) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads[id]
}

func TestAggregate(t *testing.T) {
	n := domain.NumberValue
	s := domain.TextValue
	b := domain.BoolValue

	tests := []struct {
		name    string
		fn      domain.AggregateFunction
		values  []domain.FieldValue
		ids     int
		state   rollup.State
		display string
	}{
		{"count uses id count", domain.AggCount, nil, 3, rollup.StateOK, "3"},
		{"count zero", domain.AggCount, nil, 0, rollup.StateOK, "0"},
		{"sum reads text as numbers", domain.AggSum, []domain.FieldValue{n(2), s("3.5"), s("abc")}, 3, rollup.StateOK, "5.5"},
		{"sum of nothing", domain.AggSum, nil, 0, rollup.StateOK, "0"},
		{"sum treats NaN and inf text as 0", domain.AggSum, []domain.FieldValue{n(1), s("inf"), s("NaN")}, 3, rollup.StateOK, "1"},
		{"average treats Infinity as 0", domain.AggAverage, []domain.FieldValue{n(2), s("Infinity")}, 2, rollup.StateOK, "1"},
		{"max skips inf text", domain.AggMax, []domain.FieldValue{n(2), s("+Inf")}, 2, rollup.StateOK, "2"},
		{"average skips empties", domain.AggAverage, []domain.FieldValue{n(1), s(""), n(2)}, 3, rollup.StateOK, "1.5"},
		{"average rounds display", domain.AggAverage, []domain.FieldValue{n(1), n(1), n(2)}, 3, rollup.StateOK, "1.33"},
		{"average of nothing", domain.AggAverage, nil, 0, rollup.StateEmpty, rollup.Placeholder},
		{"average of empties", domain.AggAverage, []domain.FieldValue{s("")}, 1, rollup.StateEmpty, rollup.Placeholder},
		{"min ignores non-numeric", domain.AggMin, []domain.FieldValue{s("x"), n(4), s("-2")}, 3, rollup.StateOK, "-2"},
		{"max", domain.AggMax, []domain.FieldValue{n(4), s("10"), s("")}, 3, rollup.StateOK, "10"},
		{"min with no numbers", domain.AggMin, []domain.FieldValue{s("x")}, 1, rollup.StateEmpty, rollup.Placeholder},
		{"percent checked over id count", domain.AggPercentChecked, []domain.FieldValue{b(true), b(false), b(true)}, 4, rollup.StateOK, "50%"},
		{"percent rounds", domain.AggPercentChecked, []domain.FieldValue{b(true), b(false), b(false)}, 3, rollup.StateOK, "33%"},
		{"percent with no ids", domain.AggPercentChecked, nil, 0, rollup.StateEmpty, rollup.Placeholder},
		{"unknown function", domain.AggregateFunction("median"), []domain.FieldValue{n(1)}, 1, rollup.StateEmpty, rollup.Placeholder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rollup.Aggregate(tt.fn, tt.values, tt.ids)
			assert.Equal(t, tt.state, got.State)
			assert.Equal(t, tt.display, got.Display)
		})
	}
}

func TestAggregate_NumericValue(t *testing.T) {
	got := rollup.Aggregate(domain.AggAverage, []domain.FieldValue{domain.NumberValue(1), domain.NumberValue(2)}, 2)
	assert.Equal(t, domain.KindNumber, got.Value.Kind)
	assert.InDelta(t, 1.5, got.Value.Num, 1e-9)
}

// projects is the target database: p1 and p2 exist, p9 does not.
func projects() *domain.Database {
	return &domain.Database{
		ID: "db-projects",
		Schema: &domain.DatabaseSchema{
			Name: "Projects",
			Columns: []domain.ColumnDef{
				{ID: "name", Name: "Name", Type: domain.ColTypeText},
				{ID: "budget", Name: "Budget", Type: domain.ColTypeNumber},
				{ID: "active", Name: "Active", Type: domain.ColTypeCheckbox},
			},
		},
		Rows: []*domain.DatabaseRow{
			{ID: "p1", Fields: map[string]domain.FieldValue{"budget": domain.NumberValue(100), "active": domain.BoolValue(true)}},
			{ID: "p2", Fields: map[string]domain.FieldValue{"budget": domain.TextValue("50"), "active": domain.TextValue("no")}},
		},
	}
}

func tasksSchema() *domain.DatabaseSchema {
	return &domain.DatabaseSchema{
		Name: "Tasks",
		Columns: []domain.ColumnDef{
			{ID: "name", Name: "Name", Type: domain.ColTypeText},
			{ID: "proj", Name: "Projects", Type: domain.ColTypeRelation, Target: "db-projects"},
			{ID: "n", Name: "Count", Type: domain.ColTypeRollup, RelationColumnID: "proj", AggregateFunction: domain.AggCount},
			{ID: "total", Name: "Budget", Type: domain.ColTypeRollup, RelationColumnID: "proj", TargetColumnID: "budget", AggregateFunction: domain.AggSum},
			{ID: "pct", Name: "Active", Type: domain.ColTypeRollup, RelationColumnID: "proj", TargetColumnID: "active", AggregateFunction: domain.AggPercentChecked},
			{ID: "broken", Name: "Broken", Type: domain.ColTypeRollup, RelationColumnID: "name", AggregateFunction: domain.AggSum},
		},
	}
}

func TestEngine_Compute(t *testing.T) {
	ctx := context.Background()
	loader := newFakeLoader()
	loader.dbs["db-projects"] = projects()
	engine := rollup.NewEngine(rollup.NewCache(loader), nil)
	schema := tasksSchema()
	col := func(id string) *domain.ColumnDef {
		c, ok := schema.Column(id)
		require.True(t, ok, id)
		return c
	}

	row := &domain.DatabaseRow{ID: "row-1", Fields: map[string]domain.FieldValue{"proj": domain.ListValue("p1", "p2", "p9")}}

	assert.Equal(t, "3", engine.Compute(ctx, schema, row, col("n")).Display, "count includes dangling ids")
	assert.Equal(t, "150", engine.Compute(ctx, schema, row, col("total")).Display, "sum skips dangling ids")
	assert.Equal(t, "33%", engine.Compute(ctx, schema, row, col("pct")).Display, "percent divides by id count")

	broken := engine.Compute(ctx, schema, row, col("broken"))
	assert.Equal(t, rollup.StateEmpty, broken.State)
	assert.Equal(t, rollup.Placeholder, broken.Display)

	assert.Equal(t, 1, loader.count("db-projects"), "target loaded once")
}

func TestEngine_Compute_NonNumericTargetText(t *testing.T) {
	ctx := context.Background()
	target := projects()
	target.Rows = append(target.Rows,
		&domain.DatabaseRow{ID: "p3", Fields: map[string]domain.FieldValue{"budget": domain.TextValue("n/a")}},
		&domain.DatabaseRow{ID: "p4", Fields: map[string]domain.FieldValue{"budget": domain.NumberValue(40)}},
	)
	loader := newFakeLoader()
	loader.dbs["db-projects"] = target
	engine := rollup.NewEngine(rollup.NewCache(loader), nil)

	schema := &domain.DatabaseSchema{Columns: []domain.ColumnDef{
		{ID: "proj", Name: "Projects", Type: domain.ColTypeRelation, Target: "db-projects"},
		{ID: "min", Name: "Min", Type: domain.ColTypeRollup, RelationColumnID: "proj", TargetColumnID: "budget", AggregateFunction: domain.AggMin},
		{ID: "sum", Name: "Sum", Type: domain.ColTypeRollup, RelationColumnID: "proj", TargetColumnID: "budget", AggregateFunction: domain.AggSum},
	}}
	row := &domain.DatabaseRow{ID: "row-1", Fields: map[string]domain.FieldValue{"proj": domain.ListValue("p1", "p3", "p4")}}

	minCol, _ := schema.Column("min")
	sumCol, _ := schema.Column("sum")
	assert.Equal(t, "40", engine.Compute(ctx, schema, row, minCol).Display, "min skips text that is not a number")
	assert.Equal(t, "140", engine.Compute(ctx, schema, row, sumCol).Display, "sum reads that text as 0")
}

func TestEngine_Compute_LoadFailure(t *testing.T) {
	ctx := context.Background()
	loader := newFakeLoader()
	loader.fail["db-projects"] = errors.New("disk gone")
	cache := rollup.NewCache(loader)
	engine := rollup.NewEngine(cache, nil)
	schema := tasksSchema()
	row := &domain.DatabaseRow{ID: "row-1", Fields: map[string]domain.FieldValue{"proj": domain.ListValue("p1")}}

	total, _ := schema.Column("total")
	res := engine.Compute(ctx, schema, row, total)
	assert.Equal(t, rollup.StateError, res.State)
	assert.Equal(t, rollup.ErrorPlaceholder, res.Display)
	assert.False(t, cache.Cached("db-projects"), "failures are not cached")

	// Count never needs the target database.
	n, _ := schema.Column("n")
	assert.Equal(t, "1", engine.Compute(ctx, schema, row, n).Display)
}

func TestEngine_Attach(t *testing.T) {
	ctx := context.Background()
	loader := newFakeLoader()
	loader.dbs["db-projects"] = projects()
	engine := rollup.NewEngine(rollup.NewCache(loader), nil)

	stored := []*domain.DatabaseRow{
		{ID: "row-1", Fields: map[string]domain.FieldValue{"proj": domain.ListValue("p1")}},
		{ID: "row-2"},
	}
	rows, results := engine.Attach(ctx, tasksSchema(), stored)
	require.Len(t, rows, 2)

	assert.Equal(t, domain.TextValue("100"), rows[0].Fields["total"])
	assert.Equal(t, domain.TextValue("-"), rows[1].Fields["pct"])
	assert.Equal(t, rollup.StateOK, results["row-1"]["total"].State)
	assert.Equal(t, "0", results["row-2"]["n"].Display)

	_, touched := stored[0].Fields["total"]
	assert.False(t, touched, "stored rows are not modified")
	assert.Nil(t, stored[1].Fields)
}

func TestEngine_Attach_NoRollups(t *testing.T) {
	engine := rollup.NewEngine(rollup.NewCache(newFakeLoader()), nil)
	schema := &domain.DatabaseSchema{Columns: []domain.ColumnDef{{ID: "name", Type: domain.ColTypeText}}}
	in := []*domain.DatabaseRow{{ID: "row-1"}}

	out, results := engine.Attach(context.Background(), schema, in)
	assert.Same(t, in[0], out[0])
	assert.Empty(t, results)
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	loader := newFakeLoader()
	loader.dbs["a"] = &domain.Database{ID: "a", Schema: &domain.DatabaseSchema{}}
	loader.dbs["b"] = &domain.Database{ID: "b", Schema: &domain.DatabaseSchema{}}
	cache := rollup.NewCache(loader)

	for range 3 {
		_, err := cache.Get(ctx, "a")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, loader.count("a"))

	cache.Invalidate("a")
	assert.False(t, cache.Cached("a"))
	_, err := cache.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, loader.count("a"))

	_, err = cache.Get(ctx, "b")
	require.NoError(t, err)
	cache.Reset()
	assert.False(t, cache.Cached("a"))
	assert.False(t, cache.Cached("b"))

	_, err = cache.Get(ctx, "missing")
	assert.Error(t, err)
}

// gatedLoader blocks every load until release is closed.
type gatedLoader struct {
	started chan string
	release chan struct{}
}

func (g *gatedLoader) GetDatabase(ctx context.Context, id string) (*domain.Database, error) {
	g.started <- id
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &domain.Database{ID: id, Schema: &domain.DatabaseSchema{}}, nil
}

func TestCache_InvalidateDuringLoad(t *testing.T) {
	for _, tc := range []struct {
		name string
		drop func(*rollup.Cache)
	}{
		{"invalidate", func(c *rollup.Cache) { c.Invalidate("t") }},
		{"reset", func(c *rollup.Cache) { c.Reset() }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			loader := &gatedLoader{started: make(chan string, 1), release: make(chan struct{})}
			cache := rollup.NewCache(loader)

			done := make(chan error, 1)
			go func() {
				_, err := cache.Get(context.Background(), "t")
				done <- err
			}()

			<-loader.started
			tc.drop(cache)
			close(loader.release)
			require.NoError(t, <-done)

			assert.False(t, cache.Cached("t"), "a load that raced an invalidation must not be cached")
		})
	}
}

func TestCache_InvalidateOtherKeyDuringLoad(t *testing.T) {
	loader := &gatedLoader{started: make(chan string, 1), release: make(chan struct{})}
	cache := rollup.NewCache(loader)

	done := make(chan error, 1)
	go func() {
		_, err := cache.Get(context.Background(), "t")
		done <- err
	}()

	<-loader.started
	cache.Invalidate("other")
	close(loader.release)
	require.NoError(t, <-done)

	assert.True(t, cache.Cached("t"))
}
