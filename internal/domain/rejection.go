package domain

import "fmt"

// RejectionKind classifies why a row or record did not reach the grid.
type RejectionKind string

const (
	// InvalidCoordinate: the row or column value is missing or not an integer.
	InvalidCoordinate RejectionKind = "invalid_coordinate"
	// OutOfBounds: the coordinate parsed but lies outside the configured bounds.
	OutOfBounds RejectionKind = "out_of_bounds"
	// MissingKey: the key field is absent or blank.
	MissingKey RejectionKind = "missing_key"
	// DuplicateKey: an earlier record already uses the key (compared case-insensitively).
	DuplicateKey RejectionKind = "duplicate_key"
	// CollisionRejected: an earlier record already occupies the target cell.
	CollisionRejected RejectionKind = "collision_rejected"
	// InvalidTimestamp: a sample row's timestamp is missing or unreadable.
	InvalidTimestamp RejectionKind = "invalid_timestamp"
)

// RejectionKinds lists every kind in reporting order.
var RejectionKinds = []RejectionKind{InvalidCoordinate, OutOfBounds, MissingKey, DuplicateKey, CollisionRejected, InvalidTimestamp}

// Rejection describes one row or record that was left out, and why.
// Rejections are data: callers decide how loudly to report them.
type Rejection struct {
	Kind  RejectionKind `json:"kind"`
	Field string        `json:"field,omitempty"`
	Index int           `json:"index"`
	// Row is the original source row (normalizer rejections).
	Row RawRow `json:"row,omitempty"`
	// Record is the rejected record (layout rejections).
	Record *Record `json:"record,omitempty"`
	// Incumbent is the record that kept the cell or key.
	Incumbent *Record `json:"incumbent,omitempty"`
	Detail    string  `json:"detail,omitempty"`
}

// String renders the rejection for logs and CLI reports.
func (r Rejection) String() string {
	switch r.Kind {
	case CollisionRejected:
		return fmt.Sprintf("row %d: %s: %q at (%d,%d) already held by %q",
			r.Index, r.Kind, r.Record.Key, r.Record.Row, r.Record.Column, r.Incumbent.Key)
	case DuplicateKey:
		return fmt.Sprintf("row %d: %s: %q already used by row %d",
			r.Index, r.Kind, r.Record.Key, r.Incumbent.Index)
	default:
		if r.Field != "" {
			return fmt.Sprintf("row %d: %s on field %q: %s", r.Index, r.Kind, r.Field, r.Detail)
		}
		return fmt.Sprintf("row %d: %s: %s", r.Index, r.Kind, r.Detail)
	}
}

// CountByKind tallies rejections per kind. Kinds with no rejections are absent.
func CountByKind(rejections []Rejection) map[RejectionKind]int {
	counts := make(map[RejectionKind]int)
	for i := range rejections {
		counts[rejections[i].Kind]++
	}
	return counts
}
