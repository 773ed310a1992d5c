package db

import (
	"strconv"
	"strings"
)

// selectBuilder assembles a parameterized SELECT. Conditions are written with
// "?" markers which are numbered into $n placeholders in order; values are
// never interpolated into the SQL text.
type selectBuilder struct {
	columns []string
	from    string
	joins   []string
	where   []string
	orderBy []string
	limit   int
	suffix  string
	args    []any
}

func selectFrom(from string, columns ...string) *selectBuilder {
	return &selectBuilder{from: from, columns: columns}
}

func (b *selectBuilder) Join(clause string) *selectBuilder {
	b.joins = append(b.joins, clause)
	return b
}

// Where adds one AND-ed condition; each "?" consumes one value.
func (b *selectBuilder) Where(cond string, values ...any) *selectBuilder {
	var sb strings.Builder
	next := 0
	for i := 0; i < len(cond); i++ {
		if cond[i] != '?' {
			sb.WriteByte(cond[i])
			continue
		}
		if next >= len(values) {
			panic("db: selectBuilder.Where: more markers than values in " + strconv.Quote(cond))
		}
		b.args = append(b.args, values[next])
		next++
		sb.WriteString("$" + strconv.Itoa(len(b.args)))
	}
	if next != len(values) {
		panic("db: selectBuilder.Where: more values than markers in " + strconv.Quote(cond))
	}
	b.where = append(b.where, "("+sb.String()+")")
	return b
}

func (b *selectBuilder) OrderBy(exprs ...string) *selectBuilder {
	b.orderBy = append(b.orderBy, exprs...)
	return b
}

func (b *selectBuilder) Limit(n int) *selectBuilder {
	b.limit = n
	return b
}

// Suffix appends a trailing clause such as FOR UPDATE.
func (b *selectBuilder) Suffix(s string) *selectBuilder {
	b.suffix = s
	return b
}

func (b *selectBuilder) Build() (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(b.columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.from)
	for _, j := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}
	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orderBy, ", "))
	}
	args := b.args
	if b.limit > 0 {
		args = append(append([]any(nil), b.args...), b.limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}
	if b.suffix != "" {
		sb.WriteString(" ")
		sb.WriteString(b.suffix)
	}
	return sb.String(), args
}
