// Package study holds the problem definition of an optimization run: mesh
// dimensions, material, supports, loads, seeded holes and design-domain
// regions. The built-in L-beam study matches the reference stress
// minimization setup; a TOML file can override any part of it.
package study

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// Support is a homogeneous Dirichlet condition over a node selection box.
type Support struct {
	Coord r2.Vec
	Tol   r2.Vec
}

// Load is a point load split evenly over a node selection box.
type Load struct {
	Coord r2.Vec
	Tol   r2.Vec
	FX    float64
	FY    float64
}

// Hole is a circular void seeded into the initial design.
type Hole struct {
	X float64
	Y float64
	R float64
}

// Region is an axis-aligned rectangle in grid coordinates.
type Region struct {
	Min r2.Vec
	Max r2.Vec
}

// Study is a complete problem definition.
type Study struct {
	Name string

	// NelX and NelY are the analysis and level-set grid element counts.
	NelX int
	NelY int

	// Young and Poisson are the material constants.
	Young   float64
	Poisson float64

	Supports []Support
	Loads    []Load
	Holes    []Hole

	// KillRegions are excluded from the design domain entirely.
	KillRegions []Region
	// BoundaryEdges imprint interior domain edges the structure boundary
	// may rest on but never cross.
	BoundaryEdges []Region
	// FixedRegions freeze the boundary, typically around load pads.
	FixedRegions []Region

	// MeshArea is the total area available to the structure. Zero means
	// the full NelX by NelY rectangle.
	MeshArea float64

	// MaxAreaFraction is the volume constraint.
	MaxAreaFraction float64

	// BandWidth is the narrow band width of the level set.
	BandWidth float64
}

// LBeam returns the built-in L-beam stress minimization study: a 100 by 100
// grid with the upper-right three-fifths square cut out, clamped along the
// top edge, a point load at the tip of the lower arm and five seeded holes.
func LBeam() *Study {
	const (
		nel    = 100
		corner = float64(nel) * 2 / 5 // inner corner of the L
		eps    = 0.01
	)
	w := float64(nel)
	h := float64(nel)

	loadCoord := r2.Vec{X: w, Y: h * 2 / 5}

	return &Study{
		Name:    "lbeam-stress",
		NelX:    nel,
		NelY:    nel,
		Young:   1.0,
		Poisson: 0.3,
		Supports: []Support{
			// Clamped along the full top edge of the upright arm.
			{Coord: r2.Vec{X: 0, Y: h}, Tol: r2.Vec{X: w + 0.1, Y: 0.1}},
		},
		Loads: []Load{
			{Coord: loadCoord, Tol: r2.Vec{X: 1.1, Y: 0.1}, FX: 0, FY: -3.0},
		},
		Holes: []Hole{
			{X: 20, Y: 20, R: 10},
			{X: 20, Y: 50, R: 10},
			{X: 20, Y: 80, R: 10},
			{X: 50, Y: 20, R: 10},
			{X: 80, Y: 20, R: 10},
		},
		KillRegions: []Region{
			{Min: r2.Vec{X: corner + eps, Y: corner + eps}, Max: r2.Vec{X: w + eps, Y: h + eps}},
		},
		BoundaryEdges: []Region{
			// Vertical inner edge of the L.
			{Min: r2.Vec{X: corner - eps, Y: corner - eps}, Max: r2.Vec{X: corner + eps, Y: h + eps}},
			// Horizontal inner edge of the L.
			{Min: r2.Vec{X: corner - eps, Y: corner - eps}, Max: r2.Vec{X: w + eps, Y: corner + eps}},
		},
		FixedRegions: []Region{
			// Pad beside the load so the boundary never retreats there.
			{Min: r2.Vec{X: loadCoord.X - 3.01, Y: loadCoord.Y - 2.01}, Max: r2.Vec{X: loadCoord.X + eps, Y: loadCoord.Y + eps}},
		},
		MeshArea:        w*h - (w * 3 / 5 * (h * 3 / 5)),
		MaxAreaFraction: 0.4,
		BandWidth:       6,
	}
}

// TotalArea returns the effective mesh area, defaulting to the full
// rectangle when unset.
func (s *Study) TotalArea() float64 {
	if s.MeshArea > 0 {
		return s.MeshArea
	}
	return float64(s.NelX) * float64(s.NelY)
}
