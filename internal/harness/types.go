package harness

// Outcome is the recorded result of one step.
type Outcome struct {
	Name   string
	Method string
	Status int
	Code   string
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step met its expectation.
	Pass     bool
	Outcomes []Outcome
	Errors   []string
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{Pass: true, Outcomes: []Outcome{}, Errors: []string{}}
}

// AddError records a failed expectation.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
