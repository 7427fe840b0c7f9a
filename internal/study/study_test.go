package study

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestLBeamDefinition(t *testing.T) {
	s := LBeam()

	require.NoError(t, s.Validate())
	assert.Equal(t, "lbeam-stress", s.Name)
	assert.Equal(t, 100, s.NelX)
	assert.Equal(t, 100, s.NelY)
	assert.Equal(t, 1.0, s.Young)
	assert.Equal(t, 0.3, s.Poisson)
	assert.Equal(t, 0.4, s.MaxAreaFraction)
	assert.Equal(t, 6.0, s.BandWidth)

	// The L domain: full square minus the upper-right three-fifths square.
	assert.InDelta(t, 100*100-60*60, s.MeshArea, 1e-9)
	assert.InDelta(t, s.MeshArea, s.TotalArea(), 1e-9)

	require.Len(t, s.Supports, 1)
	assert.Equal(t, r2.Vec{X: 0, Y: 100}, s.Supports[0].Coord)

	require.Len(t, s.Loads, 1)
	assert.Equal(t, r2.Vec{X: 100, Y: 40}, s.Loads[0].Coord)
	assert.Equal(t, -3.0, s.Loads[0].FY)

	assert.Len(t, s.Holes, 5)
	for _, h := range s.Holes {
		assert.Equal(t, 10.0, h.R)
	}

	require.Len(t, s.KillRegions, 1)
	assert.Len(t, s.BoundaryEdges, 2)
	require.Len(t, s.FixedRegions, 1)
}

func TestTotalAreaDefaultsToRectangle(t *testing.T) {
	s := &Study{NelX: 30, NelY: 20}
	assert.Equal(t, 600.0, s.TotalArea())
}

func writeStudyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "study.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := writeStudyFile(t, `
name = "short-beam"
nelx = 60
max_area_fraction = 0.5

[[holes]]
x = 30.0
y = 30.0
r = 5.0

[[loads]]
coord = [60.0, 0.0]
tol = [0.1, 0.1]
fy = -1.0
`)

	s, err := LoadFile(path)
	require.NoError(t, err)

	// Overridden fields.
	assert.Equal(t, "short-beam", s.Name)
	assert.Equal(t, 60, s.NelX)
	assert.Equal(t, 0.5, s.MaxAreaFraction)
	require.Len(t, s.Holes, 1)
	assert.Equal(t, Hole{X: 30, Y: 30, R: 5}, s.Holes[0])
	require.Len(t, s.Loads, 1)
	assert.Equal(t, r2.Vec{X: 60, Y: 0}, s.Loads[0].Coord)

	// Untouched defaults survive.
	assert.Equal(t, 100, s.NelY)
	assert.Equal(t, 0.3, s.Poisson)
	assert.Len(t, s.Supports, 1)
	assert.Len(t, s.KillRegions, 1)
}

func TestLoadFileRejectsBadVectors(t *testing.T) {
	path := writeStudyFile(t, `
[[supports]]
coord = [0.0]
tol = [0.1, 0.1]
`)

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "supports[0].coord")
}

func TestLoadFileValidatesResult(t *testing.T) {
	path := writeStudyFile(t, `max_area_fraction = 1.5`)

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max area fraction")
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Study)
		want   string
	}{
		{"tiny grid", func(s *Study) { s.NelX = 1 }, "too small"},
		{"bad modulus", func(s *Study) { s.Young = 0 }, "must be positive"},
		{"bad poisson", func(s *Study) { s.Poisson = 0.5 }, "Poisson"},
		{"no supports", func(s *Study) { s.Supports = nil }, "support"},
		{"no loads", func(s *Study) { s.Loads = nil }, "load"},
		{"bad area fraction", func(s *Study) { s.MaxAreaFraction = 0 }, "area fraction"},
		{"bad band width", func(s *Study) { s.BandWidth = -1 }, "band width"},
		{"bad hole", func(s *Study) { s.Holes[0].R = 0 }, "radius"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := LBeam()
			tt.mutate(s)
			err := s.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
