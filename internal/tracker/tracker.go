// Package tracker defines the boundary to an experiment-tracking service.
package tracker

import (
	"context"
	"slices"
	"time"
)

type Status string

const (
	StatusCreated    Status = "created"
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusStopped    Status = "stopped"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusPublished  Status = "published"
)

// OrderNewestFirst sorts records by last update, most recent first.
const OrderNewestFirst = "-last_update"

// Record is a run recorded by the tracking service.
type Record struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	Project    string    `json:"project" yaml:"project"`
	Revision   string    `json:"revision" yaml:"revision"`
	Diff       string    `json:"diff,omitempty" yaml:"diff"`
	Status     Status    `json:"status" yaml:"status"`
	LastUpdate time.Time `json:"last_update" yaml:"last_update"`
	Tags       []string  `json:"tags,omitempty" yaml:"tags"`
}

// HasDiff reports whether the run carried uncommitted changes.
func (r *Record) HasDiff() bool {
	return r.Diff != ""
}

func (r *Record) HasTag(tag string) bool {
	return slices.Contains(r.Tags, tag)
}

// Filter selects records. Zero-valued fields do not constrain the query.
type Filter struct {
	Project  string
	TaskName string
	// Revision matches the record's revision fingerprint as a prefix.
	Revision string
	// Status matches any of the listed statuses.
	Status []Status
	// Tags must all be present on a record.
	Tags    []string
	OrderBy []string
	Limit   int
}

// Series is an ordered sequence of reported (x, y) points.
type Series struct {
	X []float64 `json:"x" yaml:"x"`
	Y []float64 `json:"y" yaml:"y"`
}

// ScalarSet maps scalar title to series name to series.
type ScalarSet map[string]map[string]Series

// Series looks up a single series. ok is false if either the title or the series is absent.
func (s ScalarSet) Series(title, series string) (Series, bool) {
	bySeries, ok := s[title]
	if !ok {
		return Series{}, false
	}
	ser, ok := bySeries[series]
	return ser, ok
}

// Client is the narrow interface the gate needs from a tracking service.
type Client interface {
	QueryRecords(ctx context.Context, f Filter) ([]Record, error)
	ReportedScalars(ctx context.Context, recordID string) (ScalarSet, error)
	// AddTags adds tags to a record. Tags already present are left alone.
	AddTags(ctx context.Context, recordID string, tags ...string) error
}
