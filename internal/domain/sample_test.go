package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// weatherRows mirrors part of data/weather.csv: Brussels out of timestamp
// order, Ghent with two readings at the same instant.
func weatherRows() []RawRow {
	return []RawRow{
		{"location_id": "1", "timestamp": "2024-06-01 06:00:00", "temperature": "14.2"},
		{"location_id": "1", "timestamp": "2024-06-01 12:00:00", "temperature": "19.8"},
		{"location_id": "1", "timestamp": "2024-06-01 09:00:00", "temperature": "16.5"},
		{"location_id": "3", "timestamp": "2024-06-01 12:00:00", "temperature": "18.9"},
		{"location_id": "3", "timestamp": "2024-06-01 12:00:00", "temperature": "18.7"},
		{"location_id": "3", "timestamp": "2024-06-01 06:00:00", "temperature": "13.1"},
	}
}

func TestNormalizeSamples(t *testing.T) {
	rows := append(weatherRows(),
		RawRow{"location_id": "", "timestamp": "2024-06-01 12:00:00"},
		RawRow{"location_id": "2", "timestamp": "yesterday"},
		RawRow{"location_id": "2"},
	)

	samples, rejections := NormalizeSamples(rows, DefaultSampleFields())

	require.Len(t, samples, 6)
	assert.Equal(t, "1", samples[0].Key)
	assert.Equal(t, time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC), samples[0].Timestamp)
	assert.Equal(t, "14.2", samples[0].Values["temperature"])
	assert.Equal(t, 5, samples[5].Index)

	require.Len(t, rejections, 3)
	assert.Equal(t, MissingKey, rejections[0].Kind)
	assert.Equal(t, 6, rejections[0].Index)
	assert.Equal(t, InvalidTimestamp, rejections[1].Kind)
	assert.Equal(t, "timestamp", rejections[1].Field)
	assert.Contains(t, rejections[1].String(), "yesterday")
	assert.Equal(t, InvalidTimestamp, rejections[2].Kind)
	assert.Equal(t, 8, rejections[2].Index)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input any
	}{
		{"rfc3339", "2024-06-01T12:00:00Z"},
		{"rfc3339 offset", "2024-06-01T14:00:00+02:00"},
		{"iso without zone", "2024-06-01T12:00:00"},
		{"spreadsheet export", "2024-06-01 12:00:00"},
		{"minutes", " 2024-06-01 12:00 "},
		{"unix seconds", want.Unix()},
		{"unix seconds json", json.Number("1717243200")},
		{"unix seconds string", "1717243200"},
		{"time value", want.In(time.FixedZone("CEST", 2*3600))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	for _, bad := range []any{nil, "", "  ", "noon", 12.5, true} {
		_, err := ParseTimestamp(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestLatestSample(t *testing.T) {
	samples, rejections := NormalizeSamples(weatherRows(), DefaultSampleFields())
	require.Empty(t, rejections)

	brussels, ok := LatestSample(samples, "1")
	require.True(t, ok)
	assert.Equal(t, "19.8", brussels.Values["temperature"], "newest wins regardless of input order")

	ghent, ok := LatestSample(samples, " 3 ")
	require.True(t, ok)
	assert.Equal(t, "18.9", ghent.Values["temperature"], "ties go to the earlier row")
	assert.Equal(t, 3, ghent.Index)

	_, ok = LatestSample(samples, "12")
	assert.False(t, ok)
	_, ok = LatestSample(samples, "")
	assert.False(t, ok)
	_, ok = LatestSample(nil, "1")
	assert.False(t, ok)
}

func TestLatestSample_KeysIgnoreCase(t *testing.T) {
	samples := []Sample{
		{Key: "bru", Timestamp: time.Unix(100, 0)},
		{Key: "BRU", Timestamp: time.Unix(200, 0)},
	}

	got, ok := LatestSample(samples, "Bru")
	require.True(t, ok)
	assert.Equal(t, "BRU", got.Key)
}

func TestSampleFields_JoinKey(t *testing.T) {
	rec := &Record{Key: "Brussels", Attributes: map[string]any{"location_id": json.Number("1")}}

	assert.Equal(t, "1", DefaultSampleFields().JoinKey(rec))
	assert.Equal(t, "Brussels", SampleFields{Key: "station"}.JoinKey(rec))
	assert.Empty(t, SampleFields{Join: "missing"}.JoinKey(rec))
	assert.Empty(t, DefaultSampleFields().JoinKey(nil))
}

func TestSampleFieldsValidate(t *testing.T) {
	require.NoError(t, DefaultSampleFields().Validate())
	assert.Error(t, SampleFields{Timestamp: "ts"}.Validate())
	assert.Error(t, SampleFields{Key: "id"}.Validate())
}

func TestSamplesFingerprint(t *testing.T) {
	samples, _ := NormalizeSamples(weatherRows(), DefaultSampleFields())
	again, _ := NormalizeSamples(weatherRows(), DefaultSampleFields())

	changed := weatherRows()
	changed[1]["temperature"] = "25.0"
	warmer, _ := NormalizeSamples(changed, DefaultSampleFields())

	assert.Empty(t, SamplesFingerprint(nil))
	assert.Equal(t, SamplesFingerprint(samples), SamplesFingerprint(again))
	assert.NotEqual(t, SamplesFingerprint(samples), SamplesFingerprint(warmer))
	assert.Contains(t, SamplesFingerprint(samples), "samples-")
}
