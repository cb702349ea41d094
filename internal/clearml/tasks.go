package clearml

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/signalnine/bestgate/internal/tracker"
)

var taskFields = []string{
	"id", "name", "project", "status", "last_update", "tags", "script.version_num", "script.diff",
}

type task struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Project    string    `json:"project"`
	Status     string    `json:"status"`
	LastUpdate time.Time `json:"last_update"`
	Tags       []string  `json:"tags"`
	Script     struct {
		VersionNum string `json:"version_num"`
		Diff       string `json:"diff"`
	} `json:"script"`
}

func (t *task) record(projectName string) tracker.Record {
	return tracker.Record{
		ID:         t.ID,
		Name:       t.Name,
		Project:    projectName,
		Revision:   t.Script.VersionNum,
		Diff:       t.Script.Diff,
		Status:     tracker.Status(t.Status),
		LastUpdate: t.LastUpdate,
		Tags:       t.Tags,
	}
}

// exact builds an anchored pattern; ClearML treats name filters as regular expressions.
func exact(s string) string {
	return "^" + regexp.QuoteMeta(s) + "$"
}

func (c *Client) projectID(ctx context.Context, name string) (string, error) {
	var data struct {
		Projects []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"projects"`
	}
	err := c.call(ctx, "projects.get_all", map[string]any{
		"name":        exact(name),
		"only_fields": []string{"id", "name"},
	}, &data)
	if err != nil {
		return "", fmt.Errorf("looking up project %q: %w", name, err)
	}
	for _, p := range data.Projects {
		if p.Name == name {
			return p.ID, nil
		}
	}
	return "", nil
}

// QueryRecords maps the filter onto tasks.get_all. An unknown project yields no records.
func (c *Client) QueryRecords(ctx context.Context, f tracker.Filter) ([]tracker.Record, error) {
	body := map[string]any{
		"only_fields": taskFields,
	}
	if f.Project != "" {
		pid, err := c.projectID(ctx, f.Project)
		if err != nil {
			return nil, err
		}
		if pid == "" {
			c.log.Debug("project not found", zap.String("project", f.Project))
			return nil, nil
		}
		body["project"] = []string{pid}
	}
	if f.TaskName != "" {
		body["name"] = exact(f.TaskName)
	}
	if len(f.Status) > 0 {
		body["status"] = f.Status
	}
	if len(f.Tags) > 0 {
		body["tags"] = f.Tags
	}
	if len(f.OrderBy) > 0 {
		body["order_by"] = f.OrderBy
	}
	if f.Revision != "" {
		body["_all_"] = map[string]any{
			"fields":  []string{"script.version_num"},
			"pattern": "^" + regexp.QuoteMeta(f.Revision),
		}
	}
	if f.Limit > 0 {
		body["page"] = 0
		body["page_size"] = f.Limit
	}

	var data struct {
		Tasks []task `json:"tasks"`
	}
	if err := c.call(ctx, "tasks.get_all", body, &data); err != nil {
		return nil, err
	}
	records := make([]tracker.Record, 0, len(data.Tasks))
	for i := range data.Tasks {
		records = append(records, data.Tasks[i].record(f.Project))
	}
	return records, nil
}

// ReportedScalars fetches every scalar series reported by a task.
func (c *Client) ReportedScalars(ctx context.Context, recordID string) (tracker.ScalarSet, error) {
	var data map[string]map[string]struct {
		Name string    `json:"name"`
		X    []float64 `json:"x"`
		Y    []float64 `json:"y"`
	}
	err := c.call(ctx, "events.scalar_metrics_iter_histogram", map[string]any{
		"task": recordID,
	}, &data)
	if err != nil {
		return nil, err
	}
	set := make(tracker.ScalarSet, len(data))
	for title, bySeries := range data {
		set[title] = make(map[string]tracker.Series, len(bySeries))
		for name, s := range bySeries {
			set[title][name] = tracker.Series{X: s.X, Y: s.Y}
		}
	}
	return set, nil
}

// AddTags reads the task's current tags and writes back the union, skipping the
// edit when nothing is new.
func (c *Client) AddTags(ctx context.Context, recordID string, tags ...string) error {
	var data struct {
		Task struct {
			Tags []string `json:"tags"`
		} `json:"task"`
	}
	if err := c.call(ctx, "tasks.get_by_id", map[string]any{"task": recordID}, &data); err != nil {
		return err
	}
	merged := slices.Clone(data.Task.Tags)
	for _, tag := range tags {
		if !slices.Contains(merged, tag) {
			merged = append(merged, tag)
		}
	}
	if len(merged) == len(data.Task.Tags) {
		return nil
	}
	c.log.Info("tagging task", zap.String("task_id", recordID), zap.Strings("tags", merged))
	return c.call(ctx, "tasks.edit", map[string]any{
		"task":  recordID,
		"tags":  merged,
		"force": true,
	}, nil)
}

var _ tracker.Client = (*Client)(nil)
