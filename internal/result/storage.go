package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const DecisionFile = "decision.json"

// StoreDecision writes d under baseDir/runs/<decided_at>_<revision>_<id> and points
// baseDir/latest at that directory. It returns the directory written.
func StoreDecision(baseDir string, d *Decision) (string, error) {
	runDir, err := filepath.Abs(filepath.Join(baseDir, "runs", decisionDirName(d)))
	if err != nil {
		return "", fmt.Errorf("resolving decision dir: %w", err)
	}
	if err := WriteDecision(runDir, d); err != nil {
		return "", err
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

func decisionDirName(d *Decision) string {
	at := d.DecidedAt
	if at.IsZero() {
		at = time.Now()
	}
	name := at.UTC().Format("2006-01-02T15-04-05.000")
	if d.Revision != "" {
		name += "_" + shorten(d.Revision, 12)
	}
	if d.ID != "" {
		name += "_" + shorten(d.ID, 8)
	}
	return name
}

func shorten(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func WriteDecision(runDir string, d *Decision) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling decision: %w", err)
	}
	return os.WriteFile(filepath.Join(runDir, DecisionFile), data, 0o644)
}

func ReadDecision(path string) (*Decision, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading decision: %w", err)
	}
	var d Decision
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing decision: %w", err)
	}
	return &d, nil
}
