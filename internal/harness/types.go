package harness

// StepResult is the outcome of compiling one step.
type StepResult struct {
	PQL string `json:"pql"`

	// Body is the compiled request decoded as generic JSON. Nil when the
	// step failed to compile.
	Body map[string]any `json:"body,omitempty"`

	// Error is the error code of a failed step.
	Error string `json:"error,omitempty"`

	// Message is the full error text of a failed step.
	Message string `json:"message,omitempty"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every step met its expectations.
	Pass bool `json:"pass"`

	Steps []StepResult `json:"steps"`

	// Errors holds one message per failed expectation.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
