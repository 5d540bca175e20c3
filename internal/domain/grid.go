package domain

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"slices"
)

// Placement is one occupied cell within a row.
type Placement struct {
	Column int     `json:"column"`
	Record *Record `json:"record"`
}

// Grid is a built layout: a sparse (row, column) → record mapping plus a
// case-insensitive key index. A Grid is read-only once Build returns it and
// may be shared by any number of goroutines. A nil *Grid is the unbuilt
// state and behaves as an empty grid.
type Grid struct {
	bounds  Bounds
	records []Record // placement order; capacity fixed so element addresses are stable
	cells   map[Cell]*Record
	index   map[string]*Record
	rows    map[int][]Placement
	rowNums []int
}

// Build lays records out in the order given. A record whose cell is already
// taken is rejected as a collision, never overwritten. Records that bypassed
// Normalize are checked again so the grid invariants hold for any input:
// out-of-bounds cells and repeated keys are rejected too.
func Build(records []Record, bounds Bounds) (*Grid, []Rejection) {
	g := &Grid{
		bounds:  bounds,
		records: make([]Record, 0, len(records)),
		cells:   make(map[Cell]*Record, len(records)),
		index:   make(map[string]*Record, len(records)),
		rows:    make(map[int][]Placement),
	}
	var rejections []Rejection

	for i := range records {
		rec := records[i]

		if !bounds.Contains(rec.Row, rec.Column) {
			rejections = append(rejections, Rejection{
				Kind:   OutOfBounds,
				Index:  rec.Index,
				Record: &rec,
				Detail: fmt.Sprintf("(%d,%d) outside %dx%d", rec.Row, rec.Column, bounds.MaxRow, bounds.MaxColumn),
			})
			continue
		}
		if incumbent, taken := g.cells[rec.Cell()]; taken {
			rejections = append(rejections, Rejection{
				Kind:      CollisionRejected,
				Index:     rec.Index,
				Record:    &rec,
				Incumbent: incumbent,
			})
			continue
		}
		k := lookupKey(rec.Key)
		if k == "" {
			rejections = append(rejections, Rejection{
				Kind:   MissingKey,
				Index:  rec.Index,
				Record: &rec,
				Detail: "key is blank",
			})
			continue
		}
		if incumbent, dup := g.index[k]; dup {
			rejections = append(rejections, Rejection{
				Kind:      DuplicateKey,
				Index:     rec.Index,
				Record:    &rec,
				Incumbent: incumbent,
			})
			continue
		}

		g.records = append(g.records, rec)
		placed := &g.records[len(g.records)-1]
		g.cells[placed.Cell()] = placed
		g.index[k] = placed
		g.rows[placed.Row] = append(g.rows[placed.Row], Placement{Column: placed.Column, Record: placed})
	}

	for row, cells := range g.rows {
		slices.SortFunc(cells, func(a, b Placement) int { return cmp.Compare(a.Column, b.Column) })
		g.rowNums = append(g.rowNums, row)
	}
	slices.Sort(g.rowNums)

	return g, rejections
}

// Lookup finds a record by key, ignoring case and surrounding whitespace.
func (g *Grid) Lookup(key string) (*Record, bool) {
	if g == nil {
		return nil, false
	}
	rec, ok := g.index[lookupKey(key)]
	return rec, ok
}

// At returns the record occupying (row, column), if any.
func (g *Grid) At(row, column int) (*Record, bool) {
	if g == nil {
		return nil, false
	}
	rec, ok := g.cells[Cell{Row: row, Column: column}]
	return rec, ok
}

// CellsInRow returns the occupied cells of a row in ascending column order.
// Empty columns are skipped; an empty or out-of-range row yields nil.
func (g *Grid) CellsInRow(row int) []Placement {
	if g == nil {
		return nil
	}
	return slices.Clone(g.rows[row])
}

// Rows returns the occupied row numbers in ascending order.
func (g *Grid) Rows() []int {
	if g == nil {
		return nil
	}
	return slices.Clone(g.rowNums)
}

// Records returns the placed records in placement order.
func (g *Grid) Records() []*Record {
	if g == nil {
		return nil
	}
	out := make([]*Record, len(g.records))
	for i := range g.records {
		out[i] = &g.records[i]
	}
	return out
}

// Len is the number of placed records.
func (g *Grid) Len() int {
	if g == nil {
		return 0
	}
	return len(g.records)
}

// Bounds returns the bounds the grid was built with.
func (g *Grid) Bounds() Bounds {
	if g == nil {
		return Bounds{}
	}
	return g.bounds
}

// Categories counts placed records per category tag, for legend rendering.
func (g *Grid) Categories() map[string]int {
	counts := make(map[string]int)
	if g == nil {
		return counts
	}
	for i := range g.records {
		counts[g.records[i].Category]++
	}
	return counts
}

// Fingerprint is a deterministic identifier of the grid's content: two grids
// with the same records, attributes included, in the same cells share a
// fingerprint regardless of the order they were built in. An unbuilt grid has
// an empty fingerprint.
func (g *Grid) Fingerprint() string {
	if g == nil {
		return ""
	}
	h := sha256.New()
	fmt.Fprintf(h, "%dx%d\n", g.bounds.MaxRow, g.bounds.MaxColumn)
	for _, row := range g.rowNums {
		for _, p := range g.rows[row] {
			fmt.Fprintf(h, "%d|%d|%s|%s|", row, p.Column, p.Record.Key, p.Record.Category)
			writeAttributes(h, p.Record.Attributes)
			h.Write([]byte{'\n'})
		}
	}
	sum := h.Sum(nil)
	return "grid-" + hex.EncodeToString(sum[:8])
}

// writeAttributes encodes attrs with keys in sorted order so map iteration
// order never leaks into the fingerprint.
func writeAttributes(w io.Writer, attrs map[string]any) {
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		fmt.Fprintf(w, "%q=%T:%v;", k, attrs[k], attrs[k])
	}
}
