// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"
	"fmt"
	"strconv"
)

// ColumnType is the value type of a result column.
type ColumnType string

const (
	TypeLong   ColumnType = "INT64"
	TypeDouble ColumnType = "FLOAT64"
	TypeString ColumnType = "STRING"
)

// Column holds the values of one result column. Only the slice matching Type
// is populated; IsNulls always has one entry per row.
type Column struct {
	Name    string     `json:"name"`
	Type    ColumnType `json:"type"`
	IsNulls []bool     `json:"is_nulls"`
	Longs   []int64    `json:"longs,omitempty"`
	Doubles []float64  `json:"doubles,omitempty"`
	Strings []string   `json:"strings,omitempty"`
}

// Result is a columnar query result. Errors are reported in-band: callers
// check Error (or Err) before reading Columns.
type Result struct {
	Error      string   `json:"error,omitempty"`
	NumRecords int      `json:"num_records"`
	Columns    []Column `json:"columns"`
}

// ErrNoRows is returned by helpers that need at least one row.
var ErrNoRows = errors.New("query returned no rows")

// ErrorResult wraps an error message in a result.
func ErrorResult(format string, args ...any) *Result {
	return &Result{Error: fmt.Sprintf(format, args...)}
}

// Err returns the in-band error as a Go error, or nil.
func (r *Result) Err() error {
	if r.Error == "" {
		return nil
	}
	return fmt.Errorf("query error: %s", r.Error)
}

// IsNull reports whether a cell is null.
func (r *Result) IsNull(col, row int) bool {
	return r.Columns[col].IsNulls[row]
}

// Long returns a cell as an integer. Doubles are truncated, strings parsed.
func (r *Result) Long(col, row int) int64 {
	c := &r.Columns[col]
	if c.IsNulls[row] {
		return 0
	}
	switch c.Type {
	case TypeLong:
		return c.Longs[row]
	case TypeDouble:
		return int64(c.Doubles[row])
	default:
		v, _ := strconv.ParseInt(c.Strings[row], 10, 64)
		return v
	}
}

// Double returns a cell as a float. Integers are widened, strings parsed.
func (r *Result) Double(col, row int) float64 {
	c := &r.Columns[col]
	if c.IsNulls[row] {
		return 0
	}
	switch c.Type {
	case TypeLong:
		return float64(c.Longs[row])
	case TypeDouble:
		return c.Doubles[row]
	default:
		v, _ := strconv.ParseFloat(c.Strings[row], 64)
		return v
	}
}

// Text returns a cell as a string. Nulls render as "[NULL]".
func (r *Result) Text(col, row int) string {
	c := &r.Columns[col]
	if c.IsNulls[row] {
		return "[NULL]"
	}
	switch c.Type {
	case TypeLong:
		return strconv.FormatInt(c.Longs[row], 10)
	case TypeDouble:
		return strconv.FormatFloat(c.Doubles[row], 'g', -1, 64)
	default:
		return c.Strings[row]
	}
}

// Cell returns a cell as int64, float64, string or nil.
func (r *Result) Cell(col, row int) any {
	c := &r.Columns[col]
	if c.IsNulls[row] {
		return nil
	}
	switch c.Type {
	case TypeLong:
		return c.Longs[row]
	case TypeDouble:
		return c.Doubles[row]
	default:
		return c.Strings[row]
	}
}

// Longs returns a whole column as integers.
func (r *Result) Longs(col int) []int64 {
	out := make([]int64, r.NumRecords)
	for row := range out {
		out[row] = r.Long(col, row)
	}
	return out
}

// ColumnNames returns the column names, suffixing duplicates with their
// 1-based position ("name.3") so that rows can be keyed by name.
func (r *Result) ColumnNames() []string {
	seen := make(map[string]int)
	for _, c := range r.Columns {
		seen[c.Name]++
	}
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		if seen[c.Name] > 1 {
			names[i] = c.Name + "." + strconv.Itoa(i+1)
		} else {
			names[i] = c.Name
		}
	}
	return names
}

// Rows returns up to limit rows keyed by column name. A limit <= 0 returns all rows.
func (r *Result) Rows(limit int) []map[string]any {
	n := r.NumRecords
	if limit > 0 && limit < n {
		n = limit
	}
	names := r.ColumnNames()
	rows := make([]map[string]any, n)
	for row := 0; row < n; row++ {
		m := make(map[string]any, len(names))
		for col, name := range names {
			m[name] = r.Cell(col, row)
		}
		rows[row] = m
	}
	return rows
}

// columnBuilder accumulates dynamically typed cells and settles on the
// narrowest column type that holds all of them.
type columnBuilder struct {
	name  string
	cells []any
}

func (b *columnBuilder) add(v any) {
	b.cells = append(b.cells, v)
}

func (b *columnBuilder) build() Column {
	typ := TypeLong
	for _, v := range b.cells {
		switch v.(type) {
		case string:
			typ = TypeString
		case float64:
			if typ == TypeLong {
				typ = TypeDouble
			}
		}
	}
	c := Column{Name: b.name, Type: typ, IsNulls: make([]bool, len(b.cells))}
	switch typ {
	case TypeLong:
		c.Longs = make([]int64, len(b.cells))
	case TypeDouble:
		c.Doubles = make([]float64, len(b.cells))
	case TypeString:
		c.Strings = make([]string, len(b.cells))
	}
	for i, v := range b.cells {
		if v == nil {
			c.IsNulls[i] = true
			continue
		}
		switch typ {
		case TypeLong:
			c.Longs[i] = v.(int64)
		case TypeDouble:
			switch n := v.(type) {
			case int64:
				c.Doubles[i] = float64(n)
			case float64:
				c.Doubles[i] = n
			}
		case TypeString:
			c.Strings[i] = fmt.Sprint(v)
		}
	}
	return c
}

// NewResult builds a result from rows of int64, int, float64, string or nil
// cells. Column types are inferred as for engine results.
func NewResult(names []string, rows ...[]any) *Result {
	cols := make([]*columnBuilder, len(names))
	for i, name := range names {
		cols[i] = &columnBuilder{name: name}
	}
	for _, row := range rows {
		for i, c := range cols {
			v := row[i]
			if n, ok := v.(int); ok {
				v = int64(n)
			}
			c.add(v)
		}
	}
	r := &Result{NumRecords: len(rows), Columns: make([]Column, len(cols))}
	for i, c := range cols {
		r.Columns[i] = c.build()
	}
	return r
}
