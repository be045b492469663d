package rollup

import (
	"context"

	"go.uber.org/zap"

	"notedb/internal/domain"
)

// Engine computes rollup columns for rows of a source database.
type Engine struct {
	cache *Cache
	log   *zap.SugaredLogger
}

// NewEngine creates an Engine over cache. log may be nil.
func NewEngine(cache *Cache, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{cache: cache, log: log}
}

// Cache returns the engine's target-database cache.
func (e *Engine) Cache() *Cache { return e.cache }

// Compute evaluates one rollup cell. It never returns an error: schema
// inconsistencies yield the placeholder and load failures the error
// placeholder.
func (e *Engine) Compute(ctx context.Context, schema *domain.DatabaseSchema, row *domain.DatabaseRow, col *domain.ColumnDef) Result {
	rel, ok := schema.RollupSource(col)
	if !ok {
		e.log.Debugw("rollup: relation column unresolved", "column", col.ID, "relationColumn", col.RelationColumnID)
		return empty()
	}

	ids := domain.AsList(row.Field(rel.ID))
	if col.AggregateFunction == domain.AggCount {
		return Aggregate(domain.AggCount, nil, len(ids))
	}
	if rel.Target == "" {
		e.log.Debugw("rollup: relation column has no target", "column", rel.ID)
		return empty()
	}

	target, err := e.cache.Get(ctx, rel.Target)
	if err != nil {
		e.log.Warnw("rollup: load target database failed", "database", rel.Target, "error", err)
		return failed()
	}
	return aggregateRows(target, ids, col)
}

func aggregateRows(target *domain.Database, ids []string, col *domain.ColumnDef) Result {
	byID := make(map[string]*domain.DatabaseRow, len(target.Rows))
	for _, r := range target.Rows {
		byID[r.ID] = r
	}

	var targetType domain.ColumnType
	if tc, ok := target.Schema.Column(col.TargetColumnID); ok {
		targetType = tc.Type
	}

	values := make([]domain.FieldValue, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			continue
		}
		v := r.Field(col.TargetColumnID)
		switch {
		case targetType == "":
		case targetType == domain.ColTypeNumber && v.Kind == domain.KindText && !domain.IsNumeric(v):
			// Left as text so min and max skip it.
		default:
			v = domain.CoerceValue(v, targetType)
		}
		values = append(values, v)
	}
	return Aggregate(col.AggregateFunction, values, len(ids))
}

// Attach returns copies of rows with every rollup column filled with its
// display value, plus the full results keyed by row id then column id.
// Stored rows are never modified.
func (e *Engine) Attach(ctx context.Context, schema *domain.DatabaseSchema, rows []*domain.DatabaseRow) ([]*domain.DatabaseRow, map[string]map[string]Result) {
	var rollups []*domain.ColumnDef
	for i := range schema.Columns {
		if schema.Columns[i].Type == domain.ColTypeRollup {
			rollups = append(rollups, &schema.Columns[i])
		}
	}
	results := make(map[string]map[string]Result, len(rows))
	if len(rollups) == 0 {
		return rows, results
	}

	out := make([]*domain.DatabaseRow, len(rows))
	for i, r := range rows {
		c := r.Clone()
		if c.Fields == nil {
			c.Fields = make(map[string]domain.FieldValue, len(rollups))
		}
		cells := make(map[string]Result, len(rollups))
		for _, col := range rollups {
			res := e.Compute(ctx, schema, r, col)
			cells[col.ID] = res
			c.Fields[col.ID] = domain.TextValue(res.Display)
		}
		results[r.ID] = cells
		out[i] = c
	}
	return out, results
}
