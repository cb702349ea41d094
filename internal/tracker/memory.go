package tracker

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Memory is an in-process Client backed by a record snapshot.
type Memory struct {
	mu      sync.Mutex
	records []Record
	scalars map[string]ScalarSet
}

// SnapshotRecord is a record together with its reported scalars.
type SnapshotRecord struct {
	Record  `yaml:",inline"`
	Scalars ScalarSet `yaml:"scalars"`
}

type snapshot struct {
	Records []SnapshotRecord `yaml:"records"`
}

func NewMemory(records ...SnapshotRecord) *Memory {
	m := &Memory{scalars: make(map[string]ScalarSet)}
	for _, r := range records {
		m.records = append(m.records, r.Record)
		if r.Scalars != nil {
			m.scalars[r.ID] = r.Scalars
		}
	}
	return m
}

// LoadSnapshot reads a yaml file with a top-level "records" list.
func LoadSnapshot(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	for i, r := range snap.Records {
		if r.ID == "" {
			return nil, fmt.Errorf("snapshot %s: record %d: id is required", path, i)
		}
	}
	return NewMemory(snap.Records...), nil
}

func (m *Memory) QueryRecords(ctx context.Context, f Filter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Record
	for _, r := range m.records {
		if matches(&r, &f) {
			out = append(out, clone(r))
		}
	}
	if slices.Contains(f.OrderBy, OrderNewestFirst) {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].LastUpdate.After(out[j].LastUpdate)
		})
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) ReportedScalars(ctx context.Context, recordID string) (ScalarSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.find(recordID) < 0 {
		return nil, fmt.Errorf("record %s not found", recordID)
	}
	s, ok := m.scalars[recordID]
	if !ok {
		return ScalarSet{}, nil
	}
	return s, nil
}

func (m *Memory) AddTags(ctx context.Context, recordID string, tags ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.find(recordID)
	if i < 0 {
		return fmt.Errorf("record %s not found", recordID)
	}
	for _, tag := range tags {
		if !slices.Contains(m.records[i].Tags, tag) {
			m.records[i].Tags = append(m.records[i].Tags, tag)
		}
	}
	return nil
}

// Record returns a copy of the stored record.
func (m *Memory) Record(id string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.find(id)
	if i < 0 {
		return Record{}, false
	}
	return clone(m.records[i]), true
}

func (m *Memory) find(id string) int {
	for i := range m.records {
		if m.records[i].ID == id {
			return i
		}
	}
	return -1
}

func matches(r *Record, f *Filter) bool {
	if f.Project != "" && r.Project != f.Project {
		return false
	}
	if f.TaskName != "" && r.Name != f.TaskName {
		return false
	}
	if f.Revision != "" && !strings.HasPrefix(r.Revision, f.Revision) {
		return false
	}
	if len(f.Status) > 0 && !slices.Contains(f.Status, r.Status) {
		return false
	}
	for _, tag := range f.Tags {
		if !r.HasTag(tag) {
			return false
		}
	}
	return true
}

func clone(r Record) Record {
	r.Tags = slices.Clone(r.Tags)
	return r
}
