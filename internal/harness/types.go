package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Step   int            `json:"step"`
	Op     string         `json:"op"`
	Ref    string         `json:"ref"`
	Class  string         `json:"class,omitempty"`
	ID     int64          `json:"id"`
	Values map[string]any `json:"values,omitempty"`

	// Writes lists the table writes issued by the step as "command Table".
	Writes []string `json:"writes,omitempty"`

	// Error is the step's error message when the step was expected to fail.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step behaved as declared and every assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step to the trace.
func (r *Result) AddStep(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

// Step returns the trace event of step index i, if it ran.
func (r *Result) Step(i int) (TraceEvent, bool) {
	for _, ev := range r.Trace {
		if ev.Step == i {
			return ev, true
		}
	}
	return TraceEvent{}, false
}
