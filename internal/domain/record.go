package domain

import (
	"errors"
	"fmt"
	"strings"
)

// RawRow is one source row before validation: field name to loosely typed value.
// Values are typically strings (CSV), float64 or json.Number (JSON), or nil.
type RawRow map[string]any

// Clone returns a shallow copy of the row.
func (r RawRow) Clone() RawRow {
	if r == nil {
		return nil
	}
	out := make(RawRow, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FieldMap names the source fields the engine reads.
type FieldMap struct {
	Key      string
	Row      string
	Column   string
	Category string // optional
	Sort     string // optional; empty keeps input order
}

// DefaultFieldMap matches the elements.csv column names.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		Key:      "Symbol",
		Row:      "Period",
		Column:   "Group",
		Category: "Phase",
		Sort:     "Atomic_Number",
	}
}

// Validate reports a missing required field name.
func (f FieldMap) Validate() error {
	switch {
	case f.Key == "":
		return errors.New("key field name is required")
	case f.Row == "":
		return errors.New("row field name is required")
	case f.Column == "":
		return errors.New("column field name is required")
	}
	return nil
}

// Bounds is the inclusive upper limit of the grid; the lower limit is always 1.
type Bounds struct {
	MaxRow    int `json:"max_row" yaml:"max_row"`
	MaxColumn int `json:"max_column" yaml:"max_column"`
}

// DefaultBounds covers the periodic table including the detached f-block rows.
func DefaultBounds() Bounds {
	return Bounds{MaxRow: 10, MaxColumn: 18}
}

// Validate reports bounds that cannot hold any cell.
func (b Bounds) Validate() error {
	if b.MaxRow < 1 || b.MaxColumn < 1 {
		return fmt.Errorf("invalid bounds %dx%d: both limits must be at least 1", b.MaxRow, b.MaxColumn)
	}
	return nil
}

// Contains reports whether (row, column) lies inside the bounds.
func (b Bounds) Contains(row, column int) bool {
	return row >= 1 && row <= b.MaxRow && column >= 1 && column <= b.MaxColumn
}

// Record is a validated row. Records are shared by the grid and its key index
// and must not be modified after Normalize returns them.
type Record struct {
	Key        string         `json:"key"`
	Row        int            `json:"row"`
	Column     int            `json:"column"`
	Category   string         `json:"category"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Index      int            `json:"index"` // position in the source rows
}

// Cell is a grid position.
type Cell struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// Cell returns the record's grid position.
func (r *Record) Cell() Cell {
	return Cell{Row: r.Row, Column: r.Column}
}

// Attr returns an attribute rendered as a string, or "" when absent or nil.
func (r *Record) Attr(name string) string {
	v, ok := r.Attributes[name]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// lookupKey is the case-insensitive form used by the grid's key index.
func lookupKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}
