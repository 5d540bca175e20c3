package domain

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFromRows(t *testing.T, rows []RawRow, opts Options) (*Grid, Result, []Rejection) {
	t.Helper()
	res := Normalize(rows, opts)
	grid, rejections := Build(res.Records, opts.Bounds)
	require.NotNil(t, grid)
	return grid, res, rejections
}

func scenarioRows() []RawRow {
	return []RawRow{
		{"key": "H", "row": 1, "col": 1},
		{"key": "He", "row": 1, "col": 18},
		{"key": "Li", "row": 2, "col": 1},
		{"key": "X", "row": 1, "col": 1},
	}
}

func TestBuild_Scenario(t *testing.T) {
	opts := Options{Fields: FieldMap{Key: "key", Row: "row", Column: "col"}, Bounds: Bounds{MaxRow: 10, MaxColumn: 18}}
	grid, res, rejections := buildFromRows(t, scenarioRows(), opts)

	assert.Empty(t, res.Rejections)
	assert.Equal(t, 3, grid.Len())

	h, ok := grid.At(1, 1)
	require.True(t, ok)
	assert.Equal(t, "H", h.Key)
	he, ok := grid.At(1, 18)
	require.True(t, ok)
	assert.Equal(t, "He", he.Key)
	li, ok := grid.At(2, 1)
	require.True(t, ok)
	assert.Equal(t, "Li", li.Key)

	require.Len(t, rejections, 1)
	assert.Equal(t, CollisionRejected, rejections[0].Kind)
	assert.Equal(t, "X", rejections[0].Record.Key)
	assert.Same(t, h, rejections[0].Incumbent)
	assert.Equal(t, 3, rejections[0].Index)

	found, ok := grid.Lookup("he")
	require.True(t, ok)
	assert.Same(t, he, found)

	_, ok = grid.Lookup("Og")
	assert.False(t, ok)
}

func TestBuild_Deterministic(t *testing.T) {
	opts := testOptions()
	rows := periodicSample()

	g1, _, rej1 := buildFromRows(t, rows, opts)
	g2, _, rej2 := buildFromRows(t, rows, opts)

	assert.Empty(t, cmp.Diff(g1, g2, cmp.AllowUnexported(Grid{})))
	assert.Empty(t, cmp.Diff(rej1, rej2))
	assert.Equal(t, g1.Fingerprint(), g2.Fingerprint())
}

func TestBuild_UniquenessAndCoverage(t *testing.T) {
	opts := testOptions()
	grid, res, rejections := buildFromRows(t, periodicSample(), opts)

	cells := map[Cell]string{}
	identities := map[*Record]string{}
	for _, rec := range grid.Records() {
		prev, taken := cells[rec.Cell()]
		assert.False(t, taken, "cell %v held by %s and %s", rec.Cell(), prev, rec.Key)
		cells[rec.Cell()] = rec.Key

		_, seen := identities[rec]
		assert.False(t, seen, "record %s indexed twice", rec.Key)
		identities[rec] = rec.Key
	}

	placed := map[int]bool{}
	for _, rec := range grid.Records() {
		placed[rec.Index] = true
	}
	rejected := map[int]bool{}
	for _, rej := range rejections {
		rejected[rej.Index] = true
	}
	for _, rec := range res.Records {
		assert.True(t, placed[rec.Index] != rejected[rec.Index],
			"record %s must be placed or rejected, not both or neither", rec.Key)
	}
	assert.Equal(t, len(res.Records), grid.Len()+len(rejections))
}

func TestBuild_RoundTripLookup(t *testing.T) {
	grid, _, _ := buildFromRows(t, periodicSample(), testOptions())

	for _, rec := range grid.Records() {
		for _, variant := range []string{rec.Key, strings.ToLower(rec.Key), strings.ToUpper(rec.Key), " " + rec.Key + " "} {
			found, ok := grid.Lookup(variant)
			require.True(t, ok, "lookup %q", variant)
			assert.Same(t, rec, found)
		}
	}
}

func TestBuild_BoundsEnforcedWithoutNormalize(t *testing.T) {
	bounds := Bounds{MaxRow: 10, MaxColumn: 18}
	records := []Record{
		{Key: "A", Row: 0, Column: 1},
		{Key: "B", Row: 1, Column: 19},
		{Key: "C", Row: 1, Column: 1},
	}

	grid, rejections := Build(records, bounds)

	assert.Equal(t, 1, grid.Len())
	require.Len(t, rejections, 2)
	assert.Equal(t, OutOfBounds, rejections[0].Kind)
	assert.Equal(t, OutOfBounds, rejections[1].Kind)
	_, ok := grid.Lookup("A")
	assert.False(t, ok)
	_, ok = grid.Lookup("B")
	assert.False(t, ok)
}

func TestBuild_DuplicateKeysWithoutNormalize(t *testing.T) {
	records := []Record{
		{Key: "Na", Row: 3, Column: 1},
		{Key: "NA", Row: 4, Column: 1},
		{Key: " ", Row: 5, Column: 1},
	}

	grid, rejections := Build(records, DefaultBounds())

	assert.Equal(t, 1, grid.Len())
	require.Len(t, rejections, 2)
	assert.Equal(t, DuplicateKey, rejections[0].Kind)
	assert.Equal(t, "Na", rejections[0].Incumbent.Key)
	assert.Equal(t, MissingKey, rejections[1].Kind)
}

func TestBuild_DoesNotAliasInput(t *testing.T) {
	records := []Record{{Key: "C", Row: 2, Column: 14}}

	grid, _ := Build(records, DefaultBounds())
	records[0].Key = "changed"

	rec, ok := grid.Lookup("C")
	require.True(t, ok)
	assert.Equal(t, "C", rec.Key)
}

func TestGrid_CellsInRow(t *testing.T) {
	records := []Record{
		{Key: "Ne", Row: 2, Column: 18},
		{Key: "Li", Row: 2, Column: 1},
		{Key: "C", Row: 2, Column: 14},
		{Key: "H", Row: 1, Column: 1},
	}
	grid, rejections := Build(records, DefaultBounds())
	require.Empty(t, rejections)

	row := grid.CellsInRow(2)
	require.Len(t, row, 3)
	assert.Equal(t, 1, row[0].Column)
	assert.Equal(t, "Li", row[0].Record.Key)
	assert.Equal(t, 14, row[1].Column)
	assert.Equal(t, 18, row[2].Column)
	assert.Equal(t, "Ne", row[2].Record.Key)

	assert.Empty(t, grid.CellsInRow(3))
	assert.Empty(t, grid.CellsInRow(-1))
	assert.Equal(t, []int{1, 2}, grid.Rows())

	row[0] = Placement{}
	assert.Equal(t, "Li", grid.CellsInRow(2)[0].Record.Key, "returned slice is a copy")
}

func TestGrid_Unbuilt(t *testing.T) {
	var grid *Grid

	_, ok := grid.Lookup("H")
	assert.False(t, ok)
	_, ok = grid.At(1, 1)
	assert.False(t, ok)
	assert.Nil(t, grid.CellsInRow(1))
	assert.Nil(t, grid.Rows())
	assert.Nil(t, grid.Records())
	assert.Equal(t, 0, grid.Len())
	assert.Equal(t, Bounds{}, grid.Bounds())
	assert.Empty(t, grid.Categories())
	assert.Empty(t, grid.Fingerprint())
}

func TestGrid_Categories(t *testing.T) {
	records := []Record{
		{Key: "He", Row: 1, Column: 18, Category: "noble-gas"},
		{Key: "Ne", Row: 2, Column: 18, Category: "noble-gas"},
		{Key: "Li", Row: 2, Column: 1, Category: "alkali-metal"},
	}
	grid, _ := Build(records, DefaultBounds())

	assert.Equal(t, map[string]int{"noble-gas": 2, "alkali-metal": 1}, grid.Categories())
}

func TestGrid_FingerprintIgnoresBuildOrder(t *testing.T) {
	a := []Record{{Key: "H", Row: 1, Column: 1}, {Key: "He", Row: 1, Column: 18}}
	b := []Record{{Key: "He", Row: 1, Column: 18}, {Key: "H", Row: 1, Column: 1}}
	c := []Record{{Key: "H", Row: 1, Column: 1}, {Key: "He", Row: 1, Column: 17}}

	ga, _ := Build(a, DefaultBounds())
	gb, _ := Build(b, DefaultBounds())
	gc, _ := Build(c, DefaultBounds())

	assert.Equal(t, ga.Fingerprint(), gb.Fingerprint())
	assert.NotEqual(t, ga.Fingerprint(), gc.Fingerprint())
	assert.Contains(t, ga.Fingerprint(), "grid-")
}

func TestRejectionString(t *testing.T) {
	h := &Record{Key: "H", Row: 1, Column: 1, Index: 0}
	x := &Record{Key: "X", Row: 1, Column: 1, Index: 3}

	collision := Rejection{Kind: CollisionRejected, Index: 3, Record: x, Incumbent: h}
	assert.Equal(t, `row 3: collision_rejected: "X" at (1,1) already held by "H"`, collision.String())

	invalid := Rejection{Kind: InvalidCoordinate, Field: "col", Index: 4, Detail: `"eighteen" is not a number`}
	assert.Equal(t, `row 4: invalid_coordinate on field "col": "eighteen" is not a number`, invalid.String())

	assert.Equal(t, map[RejectionKind]int{CollisionRejected: 1, InvalidCoordinate: 1},
		CountByKind([]Rejection{collision, invalid}))
}

// periodicSample is the first two periods plus a few rows that must be rejected.
func periodicSample() []RawRow {
	rows := []RawRow{
		{"key": "H", "row": 1, "col": 1, "number": 1, "category": "Gas"},
		{"key": "He", "row": 1, "col": 18, "number": 2, "category": "Gas"},
	}
	period2 := []string{"Li", "Be", "B", "C", "N", "O", "F", "Ne"}
	cols := []int{1, 2, 13, 14, 15, 16, 17, 18}
	for i, sym := range period2 {
		rows = append(rows, RawRow{
			"key": sym, "row": "2", "col": fmt.Sprint(cols[i]), "number": 3 + i, "category": "Solid",
		})
	}
	rows = append(rows,
		RawRow{"key": "Xx", "row": 2, "col": 1, "number": 99},   // collides with Li
		RawRow{"key": "Yy", "row": 1, "col": 18, "number": 0.5}, // sorts first, takes He's cell
		RawRow{"key": "Zz", "row": 1, "col": "eighteen", "number": 100},
	)
	return rows
}

func TestGrid_FingerprintCoversAttributes(t *testing.T) {
	build := func(attrs map[string]any) string {
		g, _ := Build([]Record{{Key: "BRU", Row: 1, Column: 1, Attributes: attrs}}, DefaultBounds())
		return g.Fingerprint()
	}

	cool := build(map[string]any{"temp": 12.0, "country": "BE"})
	warm := build(map[string]any{"temp": 30.0, "country": "BE"})
	reordered := build(map[string]any{"country": "BE", "temp": 12.0})
	asText := build(map[string]any{"temp": "12", "country": "BE"})

	assert.NotEqual(t, cool, warm)
	assert.Equal(t, cool, reordered)
	assert.NotEqual(t, cool, asText)
	assert.NotEqual(t, cool, build(nil))
}
