package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/STRUT/internal/optimization"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "strut.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunRoundTrip(t *testing.T) {
	s := openTestStore(t)

	info := optimization.RunInfo{
		ID:            "run-1",
		Study:         "lbeam-stress",
		MaxIterations: 500,
		MaxArea:       0.4,
		Tolerance:     5e-4,
	}
	require.NoError(t, s.Start(info))

	records := []optimization.IterationRecord{
		{Iteration: 1, Objective: 12.5, MaxStress: 30, AreaFraction: 0.8, RelativeChange: 0},
		{Iteration: 2, Objective: 11.5, MaxStress: 28, AreaFraction: 0.7, RelativeChange: 0.087},
		{Iteration: 3, Objective: 11.0, MaxStress: 27, AreaFraction: 0.6, RelativeChange: 0.045},
	}
	for _, rec := range records {
		require.NoError(t, s.Record(rec))
		require.NoError(t, s.Snapshot(rec.Iteration))
	}

	summary := optimization.RunSummary{
		Iterations:   3,
		Converged:    true,
		Objective:    11.0,
		AreaFraction: 0.6,
		Elapsed:      0.9,
	}
	require.NoError(t, s.Finish(summary))

	gotInfo, gotSummary, err := s.Run("run-1")
	require.NoError(t, err)
	assert.Equal(t, info, gotInfo)
	assert.Equal(t, summary, gotSummary)

	gotRecords, err := s.Iterations("run-1")
	require.NoError(t, err)
	assert.Equal(t, records, gotRecords)
}

func TestRecordRejectsDuplicateIteration(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Start(optimization.RunInfo{ID: "run-1", Study: "lbeam-stress"}))
	require.NoError(t, s.Record(optimization.IterationRecord{Iteration: 1, Objective: 10}))

	err := s.Record(optimization.IterationRecord{Iteration: 1, Objective: 9})
	assert.Error(t, err, "the (run, iteration) key must be unique")
}

func TestUnfinishedRunReadsBackAsRunning(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Start(optimization.RunInfo{ID: "run-2", Study: "lbeam-stress", MaxIterations: 10}))

	_, summary, err := s.Run("run-2")
	require.NoError(t, err)
	assert.False(t, summary.Converged)
	assert.Zero(t, summary.Iterations)
	assert.Zero(t, summary.Objective)
}

func TestRunMissingID(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.Run("nope")
	require.Error(t, err)
}

func TestIterationsEmptyRun(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Start(optimization.RunInfo{ID: "run-3", Study: "lbeam-stress"}))

	records, err := s.Iterations("run-3")
	require.NoError(t, err)
	assert.Empty(t, records)
}
