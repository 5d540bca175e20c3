// Package dataset reads grid datasets from local CSV, JSON, or YAML files.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/element-grid-service/internal/domain"
)

// Supported dataset formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var jsonAPI = jsoniter.Config{UseNumber: true}.Froze()

// FileSource loads every row of a dataset file on each call.
// It implements pipeline.Source.
type FileSource struct {
	Path   string
	Format string
}

// NewFileSource returns a source for path, inferring the format from its
// extension when format is empty.
func NewFileSource(path, format string) (*FileSource, error) {
	f, err := ResolveFormat(format, path)
	if err != nil {
		return nil, err
	}
	return &FileSource{Path: path, Format: f}, nil
}

// ResolveFormat normalizes an explicit format name, or infers one from the
// file extension.
func ResolveFormat(explicit, path string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(explicit))
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch format {
	case FormatCSV, FormatJSON, FormatYAML:
		return format, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported dataset format %q: want csv, json or yaml", format)
	}
}

// Load opens the file and decodes it into raw rows.
func (s *FileSource) Load(ctx context.Context) ([]domain.RawRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	rows, err := Decode(f, s.Format)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	return rows, nil
}

// Decode reads rows in the given format from r.
func Decode(r io.Reader, format string) ([]domain.RawRow, error) {
	switch format {
	case FormatCSV:
		return decodeCSV(r)
	case FormatJSON:
		return decodeJSON(r)
	case FormatYAML:
		return decodeYAML(r)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", format)
	}
}

// decodeCSV treats the first record as the header. Empty cells become nil so
// they read the same as a missing value in JSON; short rows simply lack the
// trailing fields.
func decodeCSV(r io.Reader) ([]domain.RawRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows []domain.RawRow
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows), err)
		}

		row := make(domain.RawRow, len(header))
		for i, name := range header {
			if i >= len(record) {
				break
			}
			if cell := strings.TrimSpace(record[i]); cell != "" {
				row[name] = cell
			} else {
				row[name] = nil
			}
		}
		rows = append(rows, row)
	}
}

func decodeJSON(r io.Reader) ([]domain.RawRow, error) {
	var objects []map[string]any
	if err := jsonAPI.NewDecoder(r).Decode(&objects); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("want an array of objects: %w", err)
	}
	return toRows(objects), nil
}

func decodeYAML(r io.Reader) ([]domain.RawRow, error) {
	var objects []map[string]any
	if err := yaml.NewDecoder(r).Decode(&objects); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("want a sequence of mappings: %w", err)
	}
	return toRows(objects), nil
}

func toRows(objects []map[string]any) []domain.RawRow {
	rows := make([]domain.RawRow, len(objects))
	for i, obj := range objects {
		if obj == nil {
			obj = map[string]any{}
		}
		rows[i] = domain.RawRow(obj)
	}
	return rows
}
