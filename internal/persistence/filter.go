// Package persistence contains helpers shared by the SQL store implementations.
package persistence

import (
	"strings"
	"time"

	"example.com/workouts/internal/domain"
)

// Placeholder renders the n-th (1-based) bind parameter for a SQL dialect.
type Placeholder func(n int) string

// Clause is a WHERE fragment and its bind arguments.
type Clause struct {
	SQL  string
	Args []any
}

// FilterClause renders the filter as a WHERE clause, empty when no predicate is set.
// encodeTime converts the start-time bound into the column representation; nil binds time.Time as is.
func FilterClause(filter domain.Filter, ph Placeholder, encodeTime func(time.Time) any) Clause {
	var conds []string
	var args []any

	add := func(expr string, arg any) {
		args = append(args, arg)
		conds = append(conds, expr+ph(len(args)))
	}

	if filter.Type != nil {
		add("workout_type = ", filter.Type.String())
	}
	if filter.MinDistance != nil {
		add("distance >= ", *filter.MinDistance)
	}
	if filter.After != nil {
		var bound any = *filter.After
		if encodeTime != nil {
			bound = encodeTime(*filter.After)
		}
		add("start_time > ", bound)
	}

	if len(conds) == 0 {
		return Clause{}
	}
	return Clause{SQL: " WHERE " + strings.Join(conds, " AND "), Args: args}
}
