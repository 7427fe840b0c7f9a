package levelset

// DecideReinit is the reinitialization policy as a pure function of the skip
// counter and the advection step's self-report. It returns whether an
// explicit reinitialization must be forced now and the counter value to
// carry into the next iteration.
//
// If the advection step reinitialized on its own, the counter resets. If it
// did not and the counter has reached skipLimit consecutive skipped
// iterations, a reinitialization is forced and the counter resets. The
// counter is then incremented unconditionally, so with skipLimit = 1 the
// signed-distance field is redistanced at least every second iteration.
func DecideReinit(counter, skipLimit int, reinitialized bool) (force bool, next int) {
	if reinitialized {
		return false, 1
	}
	if counter == skipLimit {
		return true, 1
	}
	return false, counter + 1
}

// ReinitScheduler is the stateful wrapper around DecideReinit owning the
// skip counter for one optimization run.
type ReinitScheduler struct {
	counter   int
	skipLimit int
}

// NewReinitScheduler returns a scheduler forcing an explicit
// reinitialization after skipLimit consecutive skipped iterations. A limit
// smaller than 1 falls back to 1.
func NewReinitScheduler(skipLimit int) *ReinitScheduler {
	if skipLimit < 1 {
		skipLimit = 1
	}
	return &ReinitScheduler{skipLimit: skipLimit}
}

// Step advances the scheduler by one iteration given the advection step's
// reinitialization report and returns whether an explicit reinitialization
// must be performed now.
func (s *ReinitScheduler) Step(reinitialized bool) bool {
	force, next := DecideReinit(s.counter, s.skipLimit, reinitialized)
	s.counter = next
	return force
}

// Counter returns the iterations elapsed since the last reinitialization
// opportunity.
func (s *ReinitScheduler) Counter() int {
	return s.counter
}
