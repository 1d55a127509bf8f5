// Package sqlstore holds the relational schema and the change-set writer
// shared by the SQLite and Postgres backends. Each committed transaction is
// written as grouped multi-row statements inside one SQL transaction.
package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Dialect captures the per-database differences the writer and loader need.
type Dialect struct {
	// Name is used in error messages.
	Name string
	// Schema is the idempotent DDL applied on open, one statement per element.
	Schema []string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// TimeArg converts a timestamp into the driver argument stored in time columns.
	TimeArg func(t time.Time) any
	// Constraint extracts the violated constraint or index name from a driver error.
	Constraint func(err error) (string, bool)
	// SnapshotTx are the options for the transaction Reload reads in. Nil
	// uses the driver default.
	SnapshotTx *sql.TxOptions
}

// QuestionPlaceholder renders positional ? parameters.
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder renders numbered $n parameters.
func DollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// valuesClause renders "(p1,p2),(p3,p4)" for rows x cols parameters.
func (d Dialect) valuesClause(rows, cols int) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(",")
			}
			b.WriteString(d.Placeholder(n))
			n++
		}
		b.WriteString(")")
	}
	return b.String()
}

func (d Dialect) timeArg(t time.Time) any {
	t = t.UTC()
	if d.TimeArg != nil {
		return d.TimeArg(t)
	}
	return t.Format(time.RFC3339Nano)
}

func (d Dialect) nullTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.timeArg(*t)
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
