package optimization

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// ObjectiveType selects the quantity the sensitivity engine differentiates.
type ObjectiveType int

const (
	// ObjectiveCompliance differentiates the structural compliance.
	ObjectiveCompliance ObjectiveType = iota
	// ObjectiveStress differentiates the p-norm aggregated von Mises stress.
	ObjectiveStress
)

// BoundaryPoint is one point on the discretized zero contour of the level
// set. Points are created fresh by every boundary discretization and are
// owned by the iteration that produced them.
type BoundaryPoint struct {
	// Coord is the point position in mesh-grid units.
	Coord r2.Vec

	// Length is the integration length associated with the point, half the
	// combined length of its adjacent boundary segments.
	Length float64

	// Sensitivities holds the design sensitivities at the point, indexed
	// objective-first, then one slot per constraint id.
	Sensitivities []float64

	// Velocity is the signed normal velocity assigned by the constrained
	// velocity optimizer. Positive moves the boundary outward.
	Velocity float64

	// Fixed marks points whose motion is frozen (load pads and the like).
	Fixed bool
}

// StructuralSolver assembles and solves the governing state equation for a
// given area-fraction field. Loads and boundary conditions are fixed at
// construction time.
type StructuralSolver interface {
	// Solve accepts one area fraction per analysis element, each in (0, 1].
	Solve(fractions []float64) error
}

// SensitivityEngine computes design sensitivities of the selected objective
// at analysis resolution and interpolates them onto arbitrary coordinates.
type SensitivityEngine interface {
	// ComputeElementSensitivities evaluates per-Gauss-point sensitivities of
	// the chosen objective using the most recent state solution.
	ComputeElementSensitivities(objective ObjectiveType, pNorm float64) error

	// InterpolateAtPoint returns the interpolated sensitivity at coord using
	// analysis samples within radius (mesh-grid units). A neighborhood with
	// zero samples is an error.
	InterpolateAtPoint(coord r2.Vec, radius float64, objective ObjectiveType, pNorm float64) (float64, error)

	// Objective returns the scalar objective value from the latest
	// ComputeElementSensitivities call.
	Objective() float64

	// MaxStress returns the maximum von Mises measure from the latest
	// ComputeElementSensitivities call.
	MaxStress() float64

	// ClearBoundaryBuffer empties the transient per-call interpolation
	// buffer; it is recomputed from scratch every iteration.
	ClearBoundaryBuffer()
}

// GeometryEngine is the level-set geometry collaborator: boundary
// discretization, area fractions, velocity extension and advection.
type GeometryEngine interface {
	// DiscretizeBoundary extracts the zero contour into ordered boundary
	// points sized for nConstraints constraint sensitivities.
	DiscretizeBoundary(nConstraints int) ([]BoundaryPoint, error)

	// ComputeAreaFractions returns one solid area fraction per analysis
	// element and refreshes the cached structural area.
	ComputeAreaFractions() []float64

	// Area returns the current structural area from the latest boundary
	// integration.
	Area() float64

	// ExtendVelocities spreads boundary-point velocities onto the narrow
	// band nodes.
	ExtendVelocities(points []BoundaryPoint)

	// ComputeGradients evaluates the upwind gradient magnitude of the
	// signed-distance field within the narrow band.
	ComputeGradients()

	// Advance moves the signed-distance field by dt and reports whether the
	// step performed an implicit reinitialization.
	Advance(dt float64) bool

	// Reinitialize rebuilds a true signed-distance field from the current
	// zero contour.
	Reinitialize()
}

// VelocityProblem carries the per-iteration parameters of the constrained
// velocity sub-optimization.
type VelocityProblem struct {
	// MoveLimit is the global CFL move limit in grid units.
	MoveLimit float64
	// TrustRegion is the reduced per-iteration move limit for this
	// sub-problem, tighter than MoveLimit.
	TrustRegion float64
	// DomainWidth and DomainHeight are the level-set mesh dimensions.
	DomainWidth  float64
	DomainHeight float64
	// CurrentArea is the structural area from the freshest boundary
	// integration.
	CurrentArea float64
	// MeshArea is the fixed total area of the design domain.
	MeshArea float64
	// MaxArea is the maximum allowed area fraction.
	MaxArea float64
}

// VelocitySolution is the result of one constrained velocity solve.
type VelocitySolution struct {
	// Lambdas holds the multipliers of the solve: the objective scaling
	// followed by the Lagrange multiplier per active constraint.
	Lambdas []float64
	// TimeStep is the advection time step satisfying the CFL move limit.
	TimeStep float64
}

// VelocityOptimizer solves the bound- and constraint-limited update of the
// boundary-point normal velocities. Implementations write the per-point
// result into points[i].Velocity.
type VelocityOptimizer interface {
	Solve(points []BoundaryPoint, problem VelocityProblem) (*VelocitySolution, error)
}

// IterationRecord is the per-iteration result tuple. Produced once per
// iteration and never mutated afterwards.
type IterationRecord struct {
	Iteration      int     `json:"iteration"`
	Objective      float64 `json:"objective"`
	MaxStress      float64 `json:"max_stress"`
	AreaFraction   float64 `json:"area_fraction"`
	RelativeChange float64 `json:"relative_change"`
}

// RunInfo identifies an optimization run for persistence.
type RunInfo struct {
	ID            string  `json:"id"`
	Study         string  `json:"study"`
	MaxIterations int     `json:"max_iterations"`
	MaxArea       float64 `json:"max_area"`
	Tolerance     float64 `json:"tolerance"`
}

// RunSummary is the terminal state of a run.
type RunSummary struct {
	Iterations   int     `json:"iterations"`
	Converged    bool    `json:"converged"`
	Objective    float64 `json:"objective"`
	AreaFraction float64 `json:"area_fraction"`
	Elapsed      float64 `json:"elapsed"`
}

// Sink receives run lifecycle events and per-iteration records. Snapshot is
// called after Record with the same iteration index so sinks that persist
// geometry can write iteration-indexed files.
type Sink interface {
	Start(info RunInfo) error
	Record(rec IterationRecord) error
	Snapshot(iteration int) error
	Finish(summary RunSummary) error
}

// MultiSink fans out to several sinks in order, stopping at the first error.
type MultiSink []Sink

// Start implements Sink.
func (m MultiSink) Start(info RunInfo) error {
	for _, s := range m {
		if err := s.Start(info); err != nil {
			return err
		}
	}
	return nil
}

// Record implements Sink.
func (m MultiSink) Record(rec IterationRecord) error {
	for _, s := range m {
		if err := s.Record(rec); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot implements Sink.
func (m MultiSink) Snapshot(iteration int) error {
	for _, s := range m {
		if err := s.Snapshot(iteration); err != nil {
			return err
		}
	}
	return nil
}

// Finish implements Sink.
func (m MultiSink) Finish(summary RunSummary) error {
	for _, s := range m {
		if err := s.Finish(summary); err != nil {
			return err
		}
	}
	return nil
}
