package dataset

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/element-grid-service/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		explicit string
		path     string
		want     string
		wantErr  bool
	}{
		{"", "elements.csv", FormatCSV, false},
		{"", "stations.JSON", FormatJSON, false},
		{"", "stations.yml", FormatYAML, false},
		{"YAML", "stations.txt", FormatYAML, false},
		{" csv ", "stations.json", FormatCSV, false},
		{"", "elements.xlsx", "", true},
		{"", "elements", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.explicit+"|"+tt.path, func(t *testing.T) {
			got, err := ResolveFormat(tt.explicit, tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileSource_CSV(t *testing.T) {
	path := writeFile(t, "elements.csv", "\ufeffSymbol, Period ,Group,Phase,Atomic_Number\n"+
		"H,1,1,Gas,1\n"+
		"La,6,,Solid,57\n"+
		"He,1,18\n")

	src, err := NewFileSource(path, "")
	require.NoError(t, err)

	rows, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, domain.RawRow{"Symbol": "H", "Period": "1", "Group": "1", "Phase": "Gas", "Atomic_Number": "1"}, rows[0])

	group, present := rows[1]["Group"]
	assert.True(t, present)
	assert.Nil(t, group, "empty cells read as missing values")

	_, present = rows[2]["Phase"]
	assert.False(t, present, "short rows lack trailing fields")
}

func TestFileSource_CSVNormalizes(t *testing.T) {
	path := writeFile(t, "elements.csv", "Symbol,Period,Group,Phase,Atomic_Number\n"+
		"He,1,18,Gas,2\n"+
		"H,1,1,Gas,1\n"+
		"La,6,,Solid,57\n")

	rows, err := (&FileSource{Path: path, Format: FormatCSV}).Load(context.Background())
	require.NoError(t, err)

	result := domain.Normalize(rows, domain.Options{Fields: domain.DefaultFieldMap(), Bounds: domain.DefaultBounds()})
	require.Len(t, result.Records, 2)
	assert.Equal(t, "H", result.Records[0].Key)
	require.Len(t, result.Rejections, 1)
	assert.Equal(t, domain.InvalidCoordinate, result.Rejections[0].Kind)
}

func TestFileSource_JSON(t *testing.T) {
	path := writeFile(t, "stations.json", `[
		{"Station": "VAL", "Row": 1, "Col": 2, "Lat": 51.94, "Location": "Valentia"},
		{"Station": "TRO", "Row": "2", "Col": 3.0, "Lat": null}
	]`)

	rows, err := (&FileSource{Path: path, Format: FormatJSON}).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, json.Number("1"), rows[0]["Row"])
	assert.Equal(t, json.Number("51.94"), rows[0]["Lat"])
	assert.Equal(t, "Valentia", rows[0]["Location"])
	assert.Nil(t, rows[1]["Lat"])

	col, err := domain.CoerceInt(rows[1]["Col"])
	require.NoError(t, err)
	assert.Equal(t, 3, col)
}

func TestFileSource_YAML(t *testing.T) {
	path := writeFile(t, "stations.yaml", strings.Join([]string{
		"- Station: VAL",
		"  Row: 1",
		"  Col: 2",
		"  Climate: Oceanic",
		"- Station: TRO",
		"  Row: 2",
		"  Col: 3",
	}, "\n"))

	rows, err := (&FileSource{Path: path, Format: FormatYAML}).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0]["Row"])
	assert.Equal(t, "Oceanic", rows[0]["Climate"])
}

func TestFileSource_EmptyFiles(t *testing.T) {
	for _, format := range []string{FormatCSV, FormatJSON, FormatYAML} {
		t.Run(format, func(t *testing.T) {
			path := writeFile(t, "empty."+format, "")
			rows, err := (&FileSource{Path: path, Format: format}).Load(context.Background())
			require.NoError(t, err)
			assert.Empty(t, rows)
		})
	}
}

func TestFileSource_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := (&FileSource{Path: filepath.Join(t.TempDir(), "nope.csv"), Format: FormatCSV}).Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open dataset")
	})

	t.Run("json object instead of array", func(t *testing.T) {
		path := writeFile(t, "bad.json", `{"Symbol": "H"}`)
		_, err := (&FileSource{Path: path, Format: FormatJSON}).Load(context.Background())
		require.Error(t, err)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := Decode(strings.NewReader(""), "xlsx")
		require.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		path := writeFile(t, "elements.csv", "Symbol\nH\n")
		_, err := (&FileSource{Path: path, Format: FormatCSV}).Load(ctx)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestShippedDatasets(t *testing.T) {
	load := func(name string) []domain.RawRow {
		src, err := NewFileSource(filepath.Join("..", "..", "..", "data", name), "")
		require.NoError(t, err)
		rows, err := src.Load(context.Background())
		require.NoError(t, err)
		return rows
	}

	t.Run("elements", func(t *testing.T) {
		res := domain.Normalize(load("elements.csv"), domain.Options{Fields: domain.DefaultFieldMap(), Bounds: domain.DefaultBounds()})
		grid, layout := domain.Build(res.Records, domain.DefaultBounds())
		assert.Empty(t, layout)
		assert.Positive(t, grid.Len())
	})

	t.Run("locations with weather", func(t *testing.T) {
		opts := domain.Options{
			Fields: domain.FieldMap{Key: "location_name", Row: "row", Column: "column", Category: "province", Sort: "location_id"},
			Bounds: domain.Bounds{MaxRow: 6, MaxColumn: 6},
		}
		res := domain.Normalize(load("locations.csv"), opts)
		require.Empty(t, res.Rejections)
		grid, layout := domain.Build(res.Records, opts.Bounds)
		require.Empty(t, layout)
		assert.Equal(t, 12, grid.Len())

		samples, rejections := domain.NormalizeSamples(load("weather.csv"), domain.DefaultSampleFields())
		require.Empty(t, rejections)
		fields := domain.DefaultSampleFields()

		latest := func(name string) (domain.Sample, bool) {
			rec, ok := grid.Lookup(name)
			require.True(t, ok, name)
			return domain.LatestSample(samples, fields.JoinKey(rec))
		}

		brussels, ok := latest("Brussels")
		require.True(t, ok)
		assert.Equal(t, "19.8", brussels.Values["temperature"])

		ghent, ok := latest("ghent")
		require.True(t, ok)
		assert.Equal(t, "18.9", ghent.Values["temperature"])

		liege, ok := latest("Liège")
		require.True(t, ok)
		assert.Equal(t, "Light rain", liege.Values["condition"])

		_, ok = latest("Arlon")
		assert.False(t, ok)
	})
}
