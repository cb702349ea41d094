package result_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/bestgate/internal/result"
)

func TestWriteAndReadDecision(t *testing.T) {
	dir := t.TempDir()
	current, best := 0.90, 0.85
	d := &result.Decision{
		ID:            "d-1",
		Revision:      "abc123",
		Project:       "proj",
		Task:          "train",
		Direction:     "MAX",
		CurrentID:     "task-clean",
		BestID:        "task-best",
		CurrentMetric: &current,
		BestMetric:    &best,
		Outcome:       result.OutcomePromoted,
		Tagged:        true,
		DecidedAt:     time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC),
	}
	if err := result.WriteDecision(dir, d); err != nil {
		t.Fatalf("WriteDecision: %v", err)
	}
	got, err := result.ReadDecision(filepath.Join(dir, result.DecisionFile))
	if err != nil {
		t.Fatalf("ReadDecision: %v", err)
	}
	if got.Outcome != result.OutcomePromoted {
		t.Errorf("outcome: got %q, want %q", got.Outcome, result.OutcomePromoted)
	}
	if got.CurrentMetric == nil || *got.CurrentMetric != current {
		t.Errorf("current_metric: got %v, want %f", got.CurrentMetric, current)
	}
	if !got.DecidedAt.Equal(d.DecidedAt) {
		t.Errorf("decided_at: got %v, want %v", got.DecidedAt, d.DecidedAt)
	}
}

func TestReadDecisionFirstBestHasNoMetrics(t *testing.T) {
	dir := t.TempDir()
	d := &result.Decision{ID: "d-2", CurrentID: "t", Outcome: result.OutcomeFirstBest, Tagged: true}
	if err := result.WriteDecision(dir, d); err != nil {
		t.Fatalf("WriteDecision: %v", err)
	}
	got, err := result.ReadDecision(filepath.Join(dir, result.DecisionFile))
	if err != nil {
		t.Fatalf("ReadDecision: %v", err)
	}
	if got.BestMetric != nil || got.CurrentMetric != nil {
		t.Errorf("expected no metrics, got best=%v current=%v", got.BestMetric, got.CurrentMetric)
	}
}

func TestStoreDecision(t *testing.T) {
	base := t.TempDir()
	d := &result.Decision{
		ID:        "0b6f2c1e-9a7d-4f3e-8c21-5d4e3f2a1b0c",
		Revision:  "abc123def4567890abc123def4567890abc123de",
		Outcome:   result.OutcomePromoted,
		DecidedAt: time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC),
	}
	runDir, err := result.StoreDecision(base, d)
	if err != nil {
		t.Fatalf("StoreDecision: %v", err)
	}
	if got, want := filepath.Base(runDir), "2024-03-02T12-00-00.000_abc123def456_0b6f2c1e"; got != want {
		t.Errorf("run dir name: got %q, want %q", got, want)
	}
	got, err := result.ReadDecision(filepath.Join(base, "latest", result.DecisionFile))
	if err != nil {
		t.Fatalf("reading through latest: %v", err)
	}
	if got.ID != d.ID {
		t.Errorf("id: got %q, want %q", got.ID, d.ID)
	}
}

func TestStoreDecisionMovesLatest(t *testing.T) {
	base := t.TempDir()
	start := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	first, err := result.StoreDecision(base, &result.Decision{ID: "one", Revision: "aaaa", DecidedAt: start})
	if err != nil {
		t.Fatalf("StoreDecision: %v", err)
	}
	second, err := result.StoreDecision(base, &result.Decision{ID: "two", Revision: "bbbb", DecidedAt: start.Add(time.Second)})
	if err != nil {
		t.Fatalf("StoreDecision: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct directories")
	}
	target, err := os.Readlink(filepath.Join(base, "latest"))
	if err != nil {
		t.Fatalf("reading latest symlink: %v", err)
	}
	if target != second {
		t.Errorf("latest symlink: got %q, want %q", target, second)
	}
	if _, err := os.Stat(filepath.Join(first, result.DecisionFile)); err != nil {
		t.Errorf("first decision should remain: %v", err)
	}
}
