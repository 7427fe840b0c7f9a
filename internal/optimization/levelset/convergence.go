package levelset

import "math"

// ConvergenceTracker maintains the append-only objective history and
// evaluates a moving-window stability criterion over it. The metric rejects
// premature convergence from a single locally-flat step by requiring
// sustained stability across the whole window.
type ConvergenceTracker struct {
	window int
	values []float64
}

// NewConvergenceTracker returns a tracker with the given window size. A
// window smaller than 1 falls back to the default of 5.
func NewConvergenceTracker(window int) *ConvergenceTracker {
	if window < 1 {
		window = 5
	}
	return &ConvergenceTracker{
		window: window,
		values: make([]float64, 0, 64),
	}
}

// Append records the objective value of a completed iteration. Values are
// never mutated once appended.
func (t *ConvergenceTracker) Append(objective float64) {
	t.values = append(t.values, objective)
}

// RelativeDifference returns the stability metric for the latest iteration:
// the maximum over the previous window iterations m of
// |(obj_k - obj_m) / obj_k|. It is exactly 0 until more than window
// iterations have completed.
func (t *ConvergenceTracker) RelativeDifference() float64 {
	k := len(t.values)
	if k <= t.window {
		return 0
	}

	objK := t.values[k-1]
	diff := 0.0
	for i := 1; i <= t.window; i++ {
		objM := t.values[k-1-i]
		diff = math.Max(diff, math.Abs((objK-objM)/objK))
	}
	return diff
}

// Converged reports whether the history is stable within tol. It is always
// false until the window is full, regardless of the metric value, so a short
// history can never satisfy the termination test.
func (t *ConvergenceTracker) Converged(tol float64) bool {
	if len(t.values) <= t.window {
		return false
	}
	return t.RelativeDifference() <= tol
}

// Len returns the number of completed iterations recorded so far.
func (t *ConvergenceTracker) Len() int {
	return len(t.values)
}

// History returns a copy of the objective history, indexed from iteration 1.
func (t *ConvergenceTracker) History() []float64 {
	out := make([]float64, len(t.values))
	copy(out, t.values)
	return out
}
