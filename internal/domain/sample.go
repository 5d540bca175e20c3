package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sample is one timestamped observation attached to a record, such as a
// weather reading for a location. Samples are immutable once normalized.
type Sample struct {
	Key       string         `json:"key"`
	Timestamp time.Time      `json:"timestamp"`
	Values    map[string]any `json:"values"`
	Index     int            `json:"index"` // position in the sample rows
}

// SampleFields names the sample columns and the record attribute they join on.
type SampleFields struct {
	Key       string
	Timestamp string
	Join      string // record attribute matched against Key; empty joins on the record key
}

// DefaultSampleFields matches the weather.csv columns joined to locations.csv.
func DefaultSampleFields() SampleFields {
	return SampleFields{Key: "location_id", Timestamp: "timestamp", Join: "location_id"}
}

// Validate reports a missing required field name.
func (f SampleFields) Validate() error {
	switch {
	case f.Key == "":
		return errors.New("sample key field name is required")
	case f.Timestamp == "":
		return errors.New("sample timestamp field name is required")
	}
	return nil
}

// JoinKey is the value samples are matched against for rec.
func (f SampleFields) JoinKey(rec *Record) string {
	if rec == nil {
		return ""
	}
	if f.Join == "" {
		return rec.Key
	}
	return rec.Attr(f.Join)
}

// Timestamp layouts accepted in sample rows. Values without a zone are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// NormalizeSamples validates sample rows. Like Normalize it never fails: rows
// with a blank key or an unreadable timestamp become rejections. Samples keep
// input order.
func NormalizeSamples(rows []RawRow, fields SampleFields) ([]Sample, []Rejection) {
	samples := make([]Sample, 0, len(rows))
	var rejections []Rejection

	for i, row := range rows {
		key := keyValue(row[fields.Key])
		if key == "" {
			rejections = append(rejections, Rejection{
				Kind: MissingKey, Field: fields.Key, Index: i, Row: row, Detail: "key is blank or missing",
			})
			continue
		}
		ts, err := ParseTimestamp(row[fields.Timestamp])
		if err != nil {
			rejections = append(rejections, Rejection{
				Kind: InvalidTimestamp, Field: fields.Timestamp, Index: i, Row: row, Detail: err.Error(),
			})
			continue
		}
		samples = append(samples, Sample{Key: key, Timestamp: ts, Values: row.Clone(), Index: i})
	}
	return samples, rejections
}

// ParseTimestamp reads a sample timestamp: an RFC 3339 or date-time string,
// a time.Time, or an integer count of Unix seconds.
func ParseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, errNull
	case time.Time:
		return t.UTC(), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, errEmpty
		}
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		if secs, err := CoerceInt(s); err == nil {
			return time.Unix(int64(secs), 0).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	default:
		secs, err := CoerceInt(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized timestamp %v", v)
		}
		return time.Unix(int64(secs), 0).UTC(), nil
	}
}

// LatestSample returns the newest sample whose key matches key, compared
// case-insensitively. Samples sharing the newest timestamp resolve to the
// earliest in input order.
func LatestSample(samples []Sample, key string) (Sample, bool) {
	k := lookupKey(key)
	if k == "" {
		return Sample{}, false
	}
	best := -1
	for i := range samples {
		if lookupKey(samples[i].Key) != k {
			continue
		}
		if best < 0 || samples[i].Timestamp.After(samples[best].Timestamp) {
			best = i
		}
	}
	if best < 0 {
		return Sample{}, false
	}
	return samples[best], true
}

// SamplesFingerprint identifies a sample set by content and order.
func SamplesFingerprint(samples []Sample) string {
	if len(samples) == 0 {
		return ""
	}
	h := sha256.New()
	for i := range samples {
		s := &samples[i]
		fmt.Fprintf(h, "%s|%d|", s.Key, s.Timestamp.UnixNano())
		writeAttributes(h, s.Values)
		h.Write([]byte{'\n'})
	}
	sum := h.Sum(nil)
	return "samples-" + hex.EncodeToString(sum[:8])
}
