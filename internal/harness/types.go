package harness

import "github.com/roach88/mvvplatform/internal/journal"

// Order outcome statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusDiscarded = "discarded" // queued, never started, dropped by kill
	StatusHeld      = "held"      // never pushed
)

// Outcome is what happened to one order.
type Outcome struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion holds.
	Pass bool `json:"pass"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	// Deliveries maps consumer name to delivered order names in delivery
	// order.
	Deliveries map[string][]string `json:"deliveries"`

	// Outcomes maps order name to its outcome.
	Outcomes map[string]Outcome `json:"outcomes"`

	// Discarded is the number of orders dropped when the pool was killed.
	Discarded int `json:"discarded"`

	// Session is the journal session token.
	Session string `json:"session"`

	// Events is the journal of the run, in seq order.
	Events []journal.Event `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Errors:     []string{},
		Deliveries: make(map[string][]string),
		Outcomes:   make(map[string]Outcome),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
