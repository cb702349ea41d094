package result

import "time"

type Outcome string

const (
	// OutcomeFirstBest means no record carried the best tag, so the current one got it unconditionally.
	OutcomeFirstBest Outcome = "first_best"
	OutcomePromoted  Outcome = "promoted"
	OutcomeRejected  Outcome = "rejected"
)

// Decision records what one compare-and-promote invocation decided.
type Decision struct {
	ID            string    `json:"id"`
	Revision      string    `json:"revision"`
	Project       string    `json:"project"`
	Task          string    `json:"task"`
	BestTag       string    `json:"best_tag"`
	ScalarTitle   string    `json:"scalar_title"`
	ScalarSeries  string    `json:"scalar_series"`
	Direction     string    `json:"direction"`
	CurrentID     string    `json:"current_id"`
	BestID        string    `json:"best_id,omitempty"`
	CurrentMetric *float64  `json:"current_metric,omitempty"`
	BestMetric    *float64  `json:"best_metric,omitempty"`
	Outcome       Outcome   `json:"outcome"`
	Tagged        bool      `json:"tagged"`
	DecidedAt     time.Time `json:"decided_at"`
}
