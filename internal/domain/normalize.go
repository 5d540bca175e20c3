package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// UnknownCategory is the tag given to rows with no usable category value.
const UnknownCategory = "unknown"

// whitespaceRe matches runs of whitespace collapsed to one hyphen in category tags.
var whitespaceRe = regexp.MustCompile(`\s+`)

var (
	errMissing = errors.New("missing")
	errNull    = errors.New("null")
	errEmpty   = errors.New("empty")
)

// Options configures Normalize.
type Options struct {
	Fields FieldMap
	Bounds Bounds
}

// Result holds the records that passed normalization, in layout order, and
// every row that did not.
type Result struct {
	Records    []Record
	Rejections []Rejection
}

type candidate struct {
	record  Record
	sortVal float64
	hasSort bool
}

// Normalize validates raw rows and converts them to records. It never fails:
// rows with bad coordinates, missing or duplicate keys are returned as
// rejections and processing continues with the next row.
//
// Records are ordered by the numeric sort field, rows without a numeric sort
// value last, ties in input order.
func Normalize(rows []RawRow, opts Options) Result {
	var res Result
	candidates := make([]candidate, 0, len(rows))
	seen := make(map[string]*Record, len(rows))

	for i, row := range rows {
		rec, rej, ok := normalizeRow(i, row, opts)
		if !ok {
			res.Rejections = append(res.Rejections, rej)
			continue
		}

		k := lookupKey(rec.Key)
		if incumbent, dup := seen[k]; dup {
			rejected := rec
			res.Rejections = append(res.Rejections, Rejection{
				Kind:      DuplicateKey,
				Field:     opts.Fields.Key,
				Index:     i,
				Row:       row,
				Record:    &rejected,
				Incumbent: incumbent,
			})
			continue
		}
		kept := rec
		seen[k] = &kept

		c := candidate{record: rec}
		if opts.Fields.Sort != "" {
			c.sortVal, c.hasSort = sortValue(row[opts.Fields.Sort])
		}
		candidates = append(candidates, c)
	}

	slices.SortStableFunc(candidates, func(a, b candidate) int {
		switch {
		case a.hasSort && b.hasSort:
			switch {
			case a.sortVal < b.sortVal:
				return -1
			case a.sortVal > b.sortVal:
				return 1
			}
			return 0
		case a.hasSort:
			return -1
		case b.hasSort:
			return 1
		}
		return 0
	})

	res.Records = make([]Record, len(candidates))
	for i := range candidates {
		res.Records[i] = candidates[i].record
	}
	return res
}

// normalizeRow validates a single row. The returned rejection is only
// meaningful when ok is false.
func normalizeRow(index int, row RawRow, opts Options) (Record, Rejection, bool) {
	reject := func(kind RejectionKind, field, detail string) (Record, Rejection, bool) {
		return Record{}, Rejection{Kind: kind, Field: field, Index: index, Row: row, Detail: detail}, false
	}

	rowNum, err := coordinate(row, opts.Fields.Row)
	if err != nil {
		return reject(InvalidCoordinate, opts.Fields.Row, err.Error())
	}
	colNum, err := coordinate(row, opts.Fields.Column)
	if err != nil {
		return reject(InvalidCoordinate, opts.Fields.Column, err.Error())
	}

	if rowNum < 1 || rowNum > opts.Bounds.MaxRow {
		return reject(OutOfBounds, opts.Fields.Row,
			fmt.Sprintf("%d outside 1..%d", rowNum, opts.Bounds.MaxRow))
	}
	if colNum < 1 || colNum > opts.Bounds.MaxColumn {
		return reject(OutOfBounds, opts.Fields.Column,
			fmt.Sprintf("%d outside 1..%d", colNum, opts.Bounds.MaxColumn))
	}

	key := keyValue(row[opts.Fields.Key])
	if key == "" {
		return reject(MissingKey, opts.Fields.Key, "key is blank or missing")
	}

	var category any
	if opts.Fields.Category != "" {
		category = row[opts.Fields.Category]
	}

	return Record{
		Key:        key,
		Row:        rowNum,
		Column:     colNum,
		Category:   CategoryTag(category),
		Attributes: row.Clone(),
		Index:      index,
	}, Rejection{}, true
}

func coordinate(row RawRow, field string) (int, error) {
	v, ok := row[field]
	if !ok {
		return 0, errMissing
	}
	n, err := CoerceInt(v)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// CoerceInt converts a loosely typed coordinate to an int. It accepts Go
// integer types, integer-valued floats, json.Number and numeric strings.
func CoerceInt(v any) (int, error) {
	switch t := v.(type) {
	case nil:
		return 0, errNull
	case int:
		return t, nil
	case int8:
		return int(t), nil
	case int16:
		return int(t), nil
	case int32:
		return int(t), nil
	case int64:
		return intFromInt64(t)
	case uint:
		return intFromUint64(uint64(t))
	case uint8:
		return int(t), nil
	case uint16:
		return int(t), nil
	case uint32:
		return intFromUint64(uint64(t))
	case uint64:
		return intFromUint64(t)
	case float32:
		return intFromFloat(float64(t))
	case float64:
		return intFromFloat(t)
	case json.Number:
		return parseIntString(t.String())
	case string:
		return parseIntString(t)
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}

func parseIntString(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errEmpty
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return intFromFloat(f)
}

func intFromFloat(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a finite number", f)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%v is out of integer range", f)
	}
	return int(f), nil
}

func intFromInt64(n int64) (int, error) {
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%d is out of integer range", n)
	}
	return int(n), nil
}

func intFromUint64(n uint64) (int, error) {
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("%d is out of integer range", n)
	}
	return int(n), nil
}

// sortValue parses the primary sort key. Non-numeric values report false.
func sortValue(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), !math.IsNaN(float64(t))
	case json.Number:
		f, err := t.Float64()
		return f, err == nil && !math.IsNaN(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		if n, err := CoerceInt(v); err == nil {
			return float64(n), true
		}
		return 0, false
	}
}

func keyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// CategoryTag turns a display category into a CSS-friendly tag:
// "Noble Gas" → "noble-gas". Missing, null and blank values map to "unknown".
func CategoryTag(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return UnknownCategory
	case string:
		s = t
	default:
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return UnknownCategory
	}
	return whitespaceRe.ReplaceAllString(strings.ToLower(s), "-")
}
