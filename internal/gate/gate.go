// Package gate decides whether the task run for a revision becomes the new best.
package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/signalnine/bestgate/internal/config"
	"github.com/signalnine/bestgate/internal/result"
	"github.com/signalnine/bestgate/internal/tracker"
)

var (
	// ErrNotFound means no completed, diff-free task exists for the revision.
	ErrNotFound = errors.New("no task found for revision")
	// ErrDataMissing means a task never reported the configured scalar.
	ErrDataMissing = errors.New("scalar data missing")
)

type Comparator struct {
	client tracker.Client
	cfg    *config.Config
	log    *zap.Logger
	out    io.Writer
	now    func() time.Time
}

type Option func(*Comparator)

// WithOutput sets where human-readable status lines go. Defaults to io.Discard.
func WithOutput(w io.Writer) Option {
	return func(c *Comparator) { c.out = w }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Comparator) { c.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(c *Comparator) { c.now = now }
}

func New(client tracker.Client, cfg *config.Config, opts ...Option) *Comparator {
	c := &Comparator{
		client: client,
		cfg:    cfg,
		log:    zap.NewNop(),
		out:    io.Discard,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Candidates returns every completed task for the revision, newest first, diffed or not.
func (c *Comparator) Candidates(ctx context.Context, revision string) ([]tracker.Record, error) {
	if err := c.cfg.ValidateResolve(); err != nil {
		return nil, err
	}
	if revision == "" {
		return nil, &config.MissingError{Vars: []string{config.EnvRevision}}
	}
	records, err := c.client.QueryRecords(ctx, tracker.Filter{
		Project:  c.cfg.Project,
		TaskName: c.cfg.TaskName,
		Revision: revision,
		Status:   []tracker.Status{tracker.StatusCompleted},
		OrderBy:  []string{tracker.OrderNewestFirst},
	})
	if err != nil {
		return nil, fmt.Errorf("querying tasks for revision %s: %w", revision, err)
	}
	if revs := distinctRevisions(records); len(revs) > 1 {
		c.log.Warn("revision prefix matches several commits; pass the full hash",
			zap.String("revision", revision),
			zap.Strings("matched", revs))
	}
	return records, nil
}

func distinctRevisions(records []tracker.Record) []string {
	var revs []string
	for _, r := range records {
		if !slices.Contains(revs, r.Revision) {
			revs = append(revs, r.Revision)
		}
	}
	return revs
}

// ResolveRecord finds the most recently updated completed task that ran the exact
// code at revision, with no uncommitted diff.
func (c *Comparator) ResolveRecord(ctx context.Context, revision string) (*tracker.Record, error) {
	candidates, err := c.Candidates(ctx, revision)
	if err != nil {
		return nil, err
	}
	c.log.Debug("resolved candidates",
		zap.String("revision", revision),
		zap.Int("candidates", len(candidates)))

	for i := range candidates {
		if !candidates[i].HasDiff() {
			return &candidates[i], nil
		}
		c.log.Debug("skipping task with uncommitted diff", zap.String("task_id", candidates[i].ID))
	}
	return nil, fmt.Errorf("%w: no completed task without uncommitted changes for revision %s in %s/%s; "+
		"run it at least once on the exact code before merging",
		ErrNotFound, revision, c.cfg.Project, c.cfg.TaskName)
}

// CompareAndPromote tags the task for revision as best when its metric ties or beats the
// current best. With no best task yet, the tag is added unconditionally.
func (c *Comparator) CompareAndPromote(ctx context.Context, revision string) (*result.Decision, error) {
	if err := c.cfg.ValidateCompare(); err != nil {
		return nil, err
	}
	direction, err := c.cfg.Direction()
	if err != nil {
		return nil, err
	}

	current, err := c.ResolveRecord(ctx, revision)
	if err != nil {
		return nil, err
	}

	decision := &result.Decision{
		ID:           uuid.NewString(),
		Revision:     revision,
		Project:      c.cfg.Project,
		Task:         c.cfg.TaskName,
		BestTag:      c.cfg.BestTag,
		ScalarTitle:  c.cfg.Scalar.Title,
		ScalarSeries: c.cfg.Scalar.Series,
		Direction:    direction.String(),
		CurrentID:    current.ID,
	}

	best, err := c.findBest(ctx)
	if err != nil {
		return nil, err
	}
	if best == nil {
		c.log.Info("no best task yet, tagging current", zap.String("task_id", current.ID))
		if err := c.tag(ctx, current); err != nil {
			return nil, err
		}
		decision.Outcome = result.OutcomeFirstBest
		decision.Tagged = true
		decision.DecidedAt = c.now().UTC()
		return decision, nil
	}
	decision.BestID = best.ID

	bestMetric, err := c.maxScalar(ctx, best)
	if err != nil {
		return nil, err
	}
	currentMetric, err := c.maxScalar(ctx, current)
	if err != nil {
		return nil, err
	}
	decision.BestMetric = &bestMetric
	decision.CurrentMetric = &currentMetric

	fmt.Fprintf(c.out, "Best metric in the system is: %v and current metric is %v\n", bestMetric, currentMetric)
	if direction.Improves(currentMetric, bestMetric) {
		fmt.Fprintln(c.out, "This means current metric is better or equal! Tagging as such.")
		if err := c.tag(ctx, current); err != nil {
			return nil, err
		}
		decision.Outcome = result.OutcomePromoted
		decision.Tagged = true
	} else {
		fmt.Fprintln(c.out, "This means current metric is worse! Not tagging.")
		decision.Outcome = result.OutcomeRejected
	}
	c.log.Info("comparison decided",
		zap.String("outcome", string(decision.Outcome)),
		zap.String("direction", direction.String()),
		zap.Float64("best", bestMetric),
		zap.Float64("current", currentMetric),
		zap.String("best_id", best.ID),
		zap.String("current_id", current.ID))

	decision.DecidedAt = c.now().UTC()
	return decision, nil
}

func (c *Comparator) findBest(ctx context.Context) (*tracker.Record, error) {
	records, err := c.client.QueryRecords(ctx, tracker.Filter{
		Project:  c.cfg.Project,
		TaskName: c.cfg.TaskName,
		Tags:     []string{c.cfg.BestTag},
		OrderBy:  []string{tracker.OrderNewestFirst},
	})
	if err != nil {
		return nil, fmt.Errorf("querying tasks tagged %q: %w", c.cfg.BestTag, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	if len(records) > 1 {
		c.log.Warn("several tasks carry the best tag, using the most recently updated",
			zap.String("tag", c.cfg.BestTag),
			zap.Int("count", len(records)),
			zap.String("task_id", records[0].ID))
	}
	return &records[0], nil
}

// maxScalar returns the largest y value of the configured series.
func (c *Comparator) maxScalar(ctx context.Context, rec *tracker.Record) (float64, error) {
	scalars, err := c.client.ReportedScalars(ctx, rec.ID)
	if err != nil {
		return 0, fmt.Errorf("fetching scalars for task %s: %w", rec.ID, err)
	}
	title, series := c.cfg.Scalar.Title, c.cfg.Scalar.Series
	ser, ok := scalars.Series(title, series)
	if !ok {
		return 0, fmt.Errorf("%w: task %s has no scalar %q / series %q", ErrDataMissing, rec.ID, title, series)
	}
	top, err := stats.Max(stats.Float64Data(ser.Y))
	if err != nil {
		return 0, fmt.Errorf("%w: task %s scalar %q / series %q has no values", ErrDataMissing, rec.ID, title, series)
	}
	return top, nil
}

func (c *Comparator) tag(ctx context.Context, rec *tracker.Record) error {
	if rec.HasTag(c.cfg.BestTag) {
		c.log.Debug("task already tagged", zap.String("task_id", rec.ID), zap.String("tag", c.cfg.BestTag))
		return nil
	}
	if err := c.client.AddTags(ctx, rec.ID, c.cfg.BestTag); err != nil {
		return fmt.Errorf("tagging task %s as %q: %w", rec.ID, c.cfg.BestTag, err)
	}
	return nil
}
