package analysis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gradcafe/packages/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Result struct {
	Question string   `json:"question"`
	Columns  []string `json:"columns,omitempty"`
	// nil, a scalar, a list of scalars or a list of column->value maps
	Answer any    `json:"answer"`
	Error  string `json:"error,omitempty"`
}

type Runner struct {
	db      Querier
	queries []Query

	mu   sync.RWMutex
	last []Result
}

func NewRunner(db Querier, catalog Catalog, table string) *Runner {
	return &Runner{db: db, queries: catalog.Render(table)}
}

// Run executes every query in catalog order. A failing query is reported in
// its Result and does not stop the others.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	results := make([]Result, 0, len(r.queries))
	for i, q := range r.queries {
		res := Result{Question: q.Question}
		cols, answer, err := r.run(ctx, i, q.SQL)
		if err != nil {
			slog.Error("Analysis query failed", "question", q.Question, "error", err)
			res.Error = err.Error()
		} else {
			res.Columns = cols
			res.Answer = answer
		}
		results = append(results, res)
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}

	r.mu.Lock()
	r.last = results
	r.mu.Unlock()
	return results, nil
}

// Last returns the results of the most recent completed Run.
func (r *Runner) Last() []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

func (r *Runner) run(ctx context.Context, idx int, sql string) ([]string, any, error) {
	defer metrics.ObserveQuery("analysis", time.Now())
	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var cols []string
	for _, fd := range rows.FieldDescriptions() {
		cols = append(cols, fd.Name)
	}

	var table [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		for i := range values {
			values[i] = coerce(values[i])
		}
		table = append(table, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	slog.Debug("Analysis query done", "index", idx, "rows", len(table))
	return cols, shape(cols, table), nil
}

func shape(cols []string, table [][]any) any {
	switch {
	case len(table) == 0:
		return nil
	case len(cols) == 1 && len(table) == 1:
		return table[0][0]
	case len(cols) == 1:
		list := make([]any, len(table))
		for i, row := range table {
			list[i] = row[0]
		}
		return list
	}
	list := make([]map[string]any, len(table))
	for i, row := range table {
		m := make(map[string]any, len(cols))
		for j, c := range cols {
			if j < len(row) {
				m[c] = row[j]
			}
		}
		list[i] = m
	}
	return list
}

// coerce turns numeric driver values into float64 so answers render uniformly.
func coerce(v any) any {
	switch n := v.(type) {
	case pgtype.Numeric:
		if !n.Valid {
			return nil
		}
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case int16:
		return float64(n)
	case int:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}
