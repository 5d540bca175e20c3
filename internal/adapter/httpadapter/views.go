package httpadapter

import (
	"time"

	"github.com/couchcryptid/element-grid-service/internal/domain"
	"github.com/couchcryptid/element-grid-service/internal/pipeline"
)

type recordView struct {
	Key        string         `json:"key"`
	Row        int            `json:"row"`
	Column     int            `json:"column"`
	Category   string         `json:"category"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func newRecordView(rec *domain.Record) recordView {
	return recordView{
		Key:        rec.Key,
		Row:        rec.Row,
		Column:     rec.Column,
		Category:   rec.Category,
		Attributes: rec.Attributes,
	}
}

type sampleView struct {
	Timestamp time.Time      `json:"timestamp"`
	Values    map[string]any `json:"values"`
}

type latestView struct {
	Record recordView `json:"record"`
	Sample sampleView `json:"sample"`
}

func newLatestView(rec *domain.Record, sample domain.Sample) latestView {
	return latestView{
		Record: newRecordView(rec),
		Sample: sampleView{Timestamp: sample.Timestamp, Values: sample.Values},
	}
}

type rowView struct {
	Row   int          `json:"row"`
	Cells []recordView `json:"cells"`
}

func newRowView(row int, cells []domain.Placement) rowView {
	v := rowView{Row: row, Cells: make([]recordView, 0, len(cells))}
	for _, c := range cells {
		v.Cells = append(v.Cells, newRecordView(c.Record))
	}
	return v
}

type gridView struct {
	SnapshotID string         `json:"snapshot_id"`
	BuiltAt    time.Time      `json:"built_at"`
	Bounds     domain.Bounds  `json:"bounds"`
	Records    int            `json:"records"`
	Rows       []rowView      `json:"rows"`
	Categories map[string]int `json:"categories"`
}

func newGridView(snap *pipeline.Snapshot) gridView {
	g := snap.Grid
	v := gridView{
		SnapshotID: snap.ID,
		BuiltAt:    snap.BuiltAt,
		Bounds:     g.Bounds(),
		Records:    g.Len(),
		Rows:       make([]rowView, 0, len(g.Rows())),
		Categories: g.Categories(),
	}
	for _, row := range g.Rows() {
		v.Rows = append(v.Rows, newRowView(row, g.CellsInRow(row)))
	}
	return v
}

type rejectionView struct {
	Kind   domain.RejectionKind `json:"kind"`
	Index  int                  `json:"index"`
	Field  string               `json:"field,omitempty"`
	Key    string               `json:"key,omitempty"`
	Reason string               `json:"reason"`
}

type rejectionsView struct {
	SnapshotID       string                       `json:"snapshot_id"`
	Total            int                          `json:"total"`
	ByKind           map[domain.RejectionKind]int `json:"by_kind"`
	Rejections       []rejectionView              `json:"rejections"`
	SampleRejections []rejectionView              `json:"sample_rejections,omitempty"`
}

func newRejectionsView(snap *pipeline.Snapshot) rejectionsView {
	return rejectionsView{
		SnapshotID:       snap.ID,
		Total:            len(snap.Rejections),
		ByKind:           domain.CountByKind(snap.Rejections),
		Rejections:       newRejectionViews(snap.Rejections),
		SampleRejections: newRejectionViews(snap.SampleRejections),
	}
}

func newRejectionViews(rejections []domain.Rejection) []rejectionView {
	out := make([]rejectionView, 0, len(rejections))
	for _, r := range rejections {
		rv := rejectionView{Kind: r.Kind, Index: r.Index, Field: r.Field, Reason: r.String()}
		if r.Record != nil {
			rv.Key = r.Record.Key
		}
		out = append(out, rv)
	}
	return out
}
