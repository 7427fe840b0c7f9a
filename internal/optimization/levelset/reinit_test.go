package levelset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideReinit(t *testing.T) {
	tests := []struct {
		name          string
		counter       int
		skipLimit     int
		reinitialized bool
		wantForce     bool
		wantNext      int
	}{
		{
			name:          "advection already reinitialized resets the counter",
			counter:       3,
			skipLimit:     1,
			reinitialized: true,
			wantForce:     false,
			wantNext:      1,
		},
		{
			name:      "counter at limit forces a reinitialization",
			counter:   1,
			skipLimit: 1,
			wantForce: true,
			wantNext:  1,
		},
		{
			name:      "counter below limit just increments",
			counter:   0,
			skipLimit: 1,
			wantForce: false,
			wantNext:  1,
		},
		{
			name:      "larger skip limit accumulates",
			counter:   2,
			skipLimit: 4,
			wantForce: false,
			wantNext:  3,
		},
		{
			name:          "implicit reinitialization wins over a saturated counter",
			counter:       4,
			skipLimit:     4,
			reinitialized: true,
			wantForce:     false,
			wantNext:      1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			force, next := DecideReinit(tt.counter, tt.skipLimit, tt.reinitialized)
			assert.Equal(t, tt.wantForce, force)
			assert.Equal(t, tt.wantNext, next)
		})
	}
}

func TestReinitSchedulerScriptedSequence(t *testing.T) {
	// Replaying advection outcomes {false, false, true, false} with a skip
	// limit of 1 must force reinitializations after the 2nd and 4th
	// iterations only: the implicit reinitialization at iteration 3 resets
	// the counter, postponing the next forced one by a full cycle.
	sched := NewReinitScheduler(1)

	script := []bool{false, false, true, false}
	var forced []int
	for i, reinitialized := range script {
		if sched.Step(reinitialized) {
			forced = append(forced, i+1)
		}
	}

	assert.Equal(t, []int{2, 4}, forced)
}

func TestReinitSchedulerClampsLimit(t *testing.T) {
	sched := NewReinitScheduler(0)

	// With the limit clamped to 1 every other iteration forces.
	assert.False(t, sched.Step(false))
	assert.True(t, sched.Step(false))
	assert.False(t, sched.Step(false))
	assert.True(t, sched.Step(false))
}
