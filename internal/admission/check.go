// Package admission validates documents before they enter the ingestion
// pipeline. Checks run in a fixed order; a critical failure rejects the
// submission and skips the remaining checks.
package admission

import (
	"fmt"
	"time"
)

// CheckStatus represents the result of a single admission check.
type CheckStatus string

const (
	CheckPassed  CheckStatus = "passed"
	CheckFailed  CheckStatus = "failed"
	CheckSkipped CheckStatus = "skipped"
	CheckWarning CheckStatus = "warning"
)

// CheckSeverity indicates how a failing check affects the submission.
type CheckSeverity string

const (
	SeverityCritical CheckSeverity = "critical" // Reject and stop evaluating
	SeverityRequired CheckSeverity = "required" // Reject but evaluate the rest
	SeverityAdvisory CheckSeverity = "advisory" // Warning only, does not reject
)

// Submission is one candidate document.
type Submission struct {
	Path    string
	Content []byte
}

// CheckResult captures the outcome of a single check.
type CheckResult struct {
	Name        string        `json:"name"`
	Status      CheckStatus   `json:"status"`
	Severity    CheckSeverity `json:"severity"`
	Message     string        `json:"message"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
}

// Check is the interface all admission checks implement.
type Check interface {
	Name() string
	Severity() CheckSeverity
	Evaluate(sub *Submission) (*CheckResult, error)
}

// Decision captures the complete admission evaluation.
type Decision struct {
	Accepted     bool          `json:"accepted"`
	Checks       []CheckResult `json:"checks"`
	PassedCount  int           `json:"passed_count"`
	FailedCount  int           `json:"failed_count"`
	SkippedCount int           `json:"skipped_count"`
	WarningCount int           `json:"warning_count"`
	Summary      string        `json:"summary"`
}

// Reason returns the message of the first failing check, or "".
func (d *Decision) Reason() string {
	for _, c := range d.Checks {
		if c.Status == CheckFailed {
			return c.Message
		}
	}
	return ""
}

// Pipeline runs multiple admission checks in sequence.
type Pipeline struct {
	checks []Check
}

// NewPipeline creates an admission pipeline from the given checks.
func NewPipeline(checks ...Check) *Pipeline {
	return &Pipeline{checks: checks}
}

// AddCheck appends a check to the pipeline.
func (p *Pipeline) AddCheck(c Check) {
	p.checks = append(p.checks, c)
}

// Run evaluates all checks against the submission.
func (p *Pipeline) Run(sub *Submission) *Decision {
	decision := &Decision{Accepted: true}

	aborted := false

	for _, check := range p.checks {
		if aborted {
			decision.Checks = append(decision.Checks, CheckResult{
				Name:        check.Name(),
				Status:      CheckSkipped,
				Severity:    check.Severity(),
				Message:     "Skipped due to critical check failure",
				EvaluatedAt: time.Now(),
			})
			decision.SkippedCount++
			continue
		}

		cr, err := check.Evaluate(sub)
		if err != nil {
			cr = &CheckResult{
				Name:     check.Name(),
				Status:   CheckFailed,
				Severity: check.Severity(),
				Message:  fmt.Sprintf("Check evaluation error: %v", err),
			}
		}
		cr.EvaluatedAt = time.Now()

		decision.Checks = append(decision.Checks, *cr)

		switch cr.Status {
		case CheckPassed:
			decision.PassedCount++
		case CheckFailed:
			decision.FailedCount++
			switch cr.Severity {
			case SeverityCritical:
				aborted = true
				decision.Accepted = false
			case SeverityRequired:
				decision.Accepted = false
			}
		case CheckWarning:
			decision.WarningCount++
		case CheckSkipped:
			decision.SkippedCount++
		}
	}

	decision.Summary = formatSummary(decision)
	return decision
}

func formatSummary(d *Decision) string {
	verdict := "accepted"
	if !d.Accepted {
		verdict = "rejected"
	}
	return fmt.Sprintf("Admission: %d passed, %d failed, %d warnings, %d skipped [%s]",
		d.PassedCount, d.FailedCount, d.WarningCount, d.SkippedCount, verdict)
}
