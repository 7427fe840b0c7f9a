package levelset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelativeDifferenceWindow(t *testing.T) {
	tests := []struct {
		name   string
		window int
		values []float64
		want   float64
	}{
		{
			name:   "empty history",
			window: 5,
			values: nil,
			want:   0,
		},
		{
			name:   "metric is zero until the window is exceeded",
			window: 5,
			values: []float64{10, 9, 8, 7, 6},
			want:   0,
		},
		{
			name:   "first iteration past the window",
			window: 5,
			values: []float64{10, 9, 8, 7, 6, 5},
			// max over m of |(5 - obj_m)/5|; the oldest windowed value 10
			// dominates.
			want: 1.0,
		},
		{
			name:   "flat tail converges",
			window: 5,
			values: []float64{10, 4, 4, 4, 4, 4, 4},
			want:   0,
		},
		{
			name:   "single flat step does not zero the metric",
			window: 5,
			values: []float64{10, 9, 8, 7, 6, 6},
			want:   math.Abs((6.0 - 10.0) / 6.0),
		},
		{
			name:   "window slides past old values",
			window: 2,
			values: []float64{100, 50, 50, 50},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewConvergenceTracker(tt.window)
			for _, v := range tt.values {
				tracker.Append(v)
			}
			assert.InDelta(t, tt.want, tracker.RelativeDifference(), 1e-12)
		})
	}
}

func TestRelativeDifferenceExactFormula(t *testing.T) {
	// For k > 5 the metric must equal the maximum over the previous five
	// iterations of |(obj_k - obj_m)/obj_k|, computed by hand here.
	values := []float64{20, 18, 15, 14, 13.5, 13.2, 13.1}
	tracker := NewConvergenceTracker(5)
	for _, v := range values {
		tracker.Append(v)
	}

	objK := values[len(values)-1]
	want := 0.0
	for i := 1; i <= 5; i++ {
		objM := values[len(values)-1-i]
		want = math.Max(want, math.Abs((objK-objM)/objK))
	}
	assert.InDelta(t, want, tracker.RelativeDifference(), 1e-12)
}

func TestConvergedGateStaysClosedUntilWindowFull(t *testing.T) {
	tracker := NewConvergenceTracker(5)

	// A perfectly flat history reports a zero metric but must not satisfy
	// the gate before more than window iterations have completed.
	for i := 0; i < 5; i++ {
		tracker.Append(7.0)
		assert.Zero(t, tracker.RelativeDifference())
		assert.False(t, tracker.Converged(5e-4), "gate must stay closed at iteration %d", i+1)
	}

	tracker.Append(7.0)
	assert.True(t, tracker.Converged(5e-4))
}

func TestHistoryIsAppendOnlyCopy(t *testing.T) {
	tracker := NewConvergenceTracker(5)
	tracker.Append(3)
	tracker.Append(2)

	h := tracker.History()
	require.Equal(t, []float64{3, 2}, h)

	// Mutating the returned slice must not corrupt the tracker.
	h[0] = -1
	assert.Equal(t, []float64{3, 2}, tracker.History())
	assert.Equal(t, 2, tracker.Len())
}
