package delivery

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNothingDelivered is the run outcome when every attempt failed.
var ErrNothingDelivered = errors.New("no report was delivered")

// Tally accumulates delivery attempts for one run.
type Tally struct {
	Attempted int
	Succeeded int
	Failed    int
	Degraded  int
	Failures  []Attempt
}

// Record adds one attempt.
func (t *Tally) Record(a Attempt) {
	t.Attempted++
	if a.OK() {
		t.Succeeded++
		if a.Degraded {
			t.Degraded++
		}
		return
	}
	t.Failed++
	t.Failures = append(t.Failures, a)
}

// Outcome returns ErrNothingDelivered when at least one attempt was made and
// none succeeded. Partial failure is not an error.
func (t *Tally) Outcome() error {
	if t.Attempted > 0 && t.Succeeded == 0 {
		return fmt.Errorf("%w: %d attempted, %d failed", ErrNothingDelivered, t.Attempted, t.Failed)
	}
	return nil
}

// Partial reports whether some but not all attempts failed.
func (t *Tally) Partial() bool {
	return t.Failed > 0 && t.Succeeded > 0
}

// Summary is the one-line run summary.
func (t *Tally) Summary() string {
	return fmt.Sprintf("%d attempted, %d sent, %d failed", t.Attempted, t.Succeeded, t.Failed)
}

// FailureReport lists failed artifacts with their errors, one per line.
func (t *Tally) FailureReport() string {
	var sb strings.Builder
	for _, f := range t.Failures {
		fmt.Fprintf(&sb, "  - %s (batch %d): %v\n", f.Artifact.Name, f.Batch, f.Err)
	}
	return sb.String()
}
