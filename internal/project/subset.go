package project

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/tract-apportion/internal/layer"
)

// ErrInvalidSubset is returned for an expression SQLite cannot evaluate
// against the layer's attributes.
var ErrInvalidSubset = eris.New("project: invalid subset expression")

const (
	subsetTable  = "subset_features"
	subsetRowCol = "__row"
)

// subsetEngine evaluates subset expressions, written in the SQLite WHERE
// grammar, by loading a layer's attributes into an in-memory table.
type subsetEngine struct {
	mu sync.Mutex
	db *sql.DB
}

func newSubsetEngine() (*subsetEngine, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, eris.Wrap(err, "project: open subset engine")
	}
	// Every connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)
	return &subsetEngine{db: db}, nil
}

// Apply returns the features of l for which expr is true. NULL results
// exclude the feature, as in SQL.
func (e *subsetEngine) Apply(ctx context.Context, l *layer.Layer, expr string) (*layer.Layer, error) {
	keep, err := e.match(ctx, l, expr)
	if err != nil {
		return nil, err
	}

	out := make([]*layer.Feature, 0, len(keep))
	for i, f := range l.Features {
		if keep[i] {
			out = append(out, f)
		}
	}
	return layer.New(l.Name, l.Schema, l.CRS, out), nil
}

func (e *subsetEngine) match(ctx context.Context, l *layer.Layer, expr string) (map[int]bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, eris.Wrap(ErrInvalidSubset, "project: empty expression")
	}
	if hasStatementSeparator(expr) {
		return nil, eris.Wrapf(ErrInvalidSubset, "project: %q holds more than one statement", expr)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cols := make([]string, 0, l.Schema.Len()+1)
	cols = append(cols, quoteIdent(subsetRowCol)+" INTEGER PRIMARY KEY")
	for _, f := range l.Schema.Fields() {
		cols = append(cols, quoteIdent(f.Name)+" "+columnType(f.Type))
	}

	if _, err := e.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+subsetTable); err != nil {
		return nil, eris.Wrap(err, "project: reset subset table")
	}
	if _, err := e.db.ExecContext(ctx, fmt.Sprintf("CREATE TEMP TABLE %s (%s)", subsetTable, strings.Join(cols, ", "))); err != nil {
		return nil, eris.Wrap(err, "project: create subset table")
	}
	defer e.db.ExecContext(context.Background(), "DROP TABLE IF EXISTS "+subsetTable) //nolint:errcheck

	if err := e.insert(ctx, l); err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE (%s)", quoteIdent(subsetRowCol), subsetTable, expr))
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidSubset, "project: %q: %v", expr, err)
	}
	defer rows.Close() //nolint:errcheck

	keep := make(map[int]bool)
	for rows.Next() {
		var row int
		if err := rows.Scan(&row); err != nil {
			return nil, eris.Wrap(err, "project: scan subset row")
		}
		keep[row] = true
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(ErrInvalidSubset, "project: %q: %v", expr, err)
	}
	return keep, nil
}

func (e *subsetEngine) insert(ctx context.Context, l *layer.Layer) error {
	n := l.Schema.Len() + 1
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", n), ", ")

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "project: begin subset load")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", subsetTable, placeholders))
	if err != nil {
		return eris.Wrap(err, "project: prepare subset load")
	}
	defer stmt.Close() //nolint:errcheck

	args := make([]any, n)
	for i, f := range l.Features {
		args[0] = i
		for j := 1; j < n; j++ {
			args[j] = nil
			if j-1 < len(f.Values) {
				args[j] = f.Values[j-1]
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "project: load feature %d", f.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "project: commit subset load")
}

func (e *subsetEngine) Close() error {
	return eris.Wrap(e.db.Close(), "project: close subset engine")
}

func columnType(t layer.FieldType) string {
	switch t {
	case layer.FieldInteger, layer.FieldBoolean:
		return "INTEGER"
	case layer.FieldFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// hasStatementSeparator reports whether expr holds a ';' outside string
// literals and quoted identifiers.
func hasStatementSeparator(expr string) bool {
	var closing byte
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if closing != 0 {
			if c != closing {
				continue
			}
			// A doubled quote is an escaped quote.
			if closing != ']' && i+1 < len(expr) && expr[i+1] == closing {
				i++
				continue
			}
			closing = 0
			continue
		}
		switch c {
		case '\'', '"', '`':
			closing = c
		case '[':
			closing = ']'
		case ';':
			return true
		}
	}
	return false
}
