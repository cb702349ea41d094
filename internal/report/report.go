package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/signalnine/bestgate/internal/result"
)

type Option func(*options)

type options struct {
	log *zap.Logger
}

// WithLogger reports decision files that could not be read.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

type TaskSummary struct {
	Project        string   `json:"project"`
	Task           string   `json:"task"`
	Decisions      int      `json:"decisions"`
	Promotions     int      `json:"promotions"`
	Rejections     int      `json:"rejections"`
	LastOutcome    string   `json:"last_outcome"`
	LastRevision   string   `json:"last_revision"`
	LastMetric     *float64 `json:"last_metric,omitempty"`
	BestMetricSeen *float64 `json:"best_metric_seen,omitempty"`
}

// Generate reads stored decisions under dir and writes a per project/task summary.
func Generate(dir, format string, w io.Writer, opts ...Option) error {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	decisions, err := collectDecisions(dir, o.log)
	if err != nil {
		return err
	}
	summaries := aggregate(decisions)

	switch format {
	case "markdown":
		return writeMarkdown(summaries, w)
	case "json":
		return writeJSON(summaries, w)
	default:
		return writeTable(summaries, w)
	}
}

func collectDecisions(dir string, log *zap.Logger) ([]*result.Decision, error) {
	var decisions []*result.Decision
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Name() == result.DecisionFile {
			d, err := result.ReadDecision(path)
			if err != nil {
				log.Warn("skipping unreadable decision", zap.String("path", path), zap.Error(err))
				return nil
			}
			decisions = append(decisions, d)
		}
		return nil
	})
	return decisions, err
}

func aggregate(decisions []*result.Decision) []TaskSummary {
	sort.SliceStable(decisions, func(i, j int) bool {
		return decisions[i].DecidedAt.Before(decisions[j].DecidedAt)
	})

	type key struct{ project, task string }
	byTask := map[key]*TaskSummary{}
	for _, d := range decisions {
		k := key{d.Project, d.Task}
		s, ok := byTask[k]
		if !ok {
			s = &TaskSummary{Project: d.Project, Task: d.Task}
			byTask[k] = s
		}
		s.Decisions++
		switch d.Outcome {
		case result.OutcomePromoted, result.OutcomeFirstBest:
			s.Promotions++
		case result.OutcomeRejected:
			s.Rejections++
		}
		s.LastOutcome = string(d.Outcome)
		s.LastRevision = d.Revision
		s.LastMetric = d.CurrentMetric
		if d.Tagged && d.CurrentMetric != nil {
			s.BestMetricSeen = d.CurrentMetric
		}
	}

	summaries := make([]TaskSummary, 0, len(byTask))
	for _, s := range byTask {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Project != summaries[j].Project {
			return summaries[i].Project < summaries[j].Project
		}
		return summaries[i].Task < summaries[j].Task
	})
	return summaries
}

func metric(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

func shortRev(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

func writeTable(summaries []TaskSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tTASK\tDECISIONS\tPROMOTED\tREJECTED\tLAST OUTCOME\tLAST REVISION\tLAST METRIC\tBEST TAGGED")
	fmt.Fprintln(tw, strings.Repeat("-", 100))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\t%s\n",
			s.Project, s.Task, s.Decisions, s.Promotions, s.Rejections,
			s.LastOutcome, shortRev(s.LastRevision), metric(s.LastMetric), metric(s.BestMetricSeen))
	}
	return tw.Flush()
}

func writeMarkdown(summaries []TaskSummary, w io.Writer) error {
	fmt.Fprintln(w, "| Project | Task | Decisions | Promoted | Rejected | Last Outcome | Last Revision | Last Metric | Best Tagged |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s | %s | %d | %d | %d | %s | %s | %s | %s |\n",
			s.Project, s.Task, s.Decisions, s.Promotions, s.Rejections,
			s.LastOutcome, shortRev(s.LastRevision), metric(s.LastMetric), metric(s.BestMetricSeen))
	}
	return nil
}

func writeJSON(summaries []TaskSummary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}

// WriteDecision prints a single decision in the requested format. Used by compare.
func WriteDecision(d *result.Decision, format string, w io.Writer) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	case "markdown":
		fmt.Fprintln(w, "| Revision | Current | Best | Direction | Current Metric | Best Metric | Outcome |")
		fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
		fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s | %s |\n",
			shortRev(d.Revision), d.CurrentID, orDash(d.BestID), d.Direction,
			metric(d.CurrentMetric), metric(d.BestMetric), d.Outcome)
		return nil
	default:
		fmt.Fprintf(w, "Outcome: %s (current task %s, tagged: %v)\n", d.Outcome, d.CurrentID, d.Tagged)
		return nil
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
