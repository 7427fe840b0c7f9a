package fea

import (
	"errors"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/copyleftdev/STRUT/internal/optimization"
)

// ErrNoSamples is returned when a sensitivity interpolation neighborhood
// contains no analysis samples.
var ErrNoSamples = errors.New("fea: no sensitivity samples within radius")

// ErrNotComputed is returned when interpolation is requested before any
// element sensitivity computation.
var ErrNotComputed = errors.New("fea: element sensitivities not computed")

// sample is one per-Gauss-point sensitivity value at its physical location.
type sample struct {
	coord r2.Vec
	value float64
}

// Sensitivity computes design sensitivities of the aggregated stress
// objective at Gauss-point resolution and interpolates them onto arbitrary
// coordinates. It implements optimization.SensitivityEngine.
type Sensitivity struct {
	mesh   *Mesh
	solver *Solver

	objective float64
	maxStress float64
	samples   []sample

	// boundary is the transient buffer of interpolated boundary values,
	// recomputed from scratch every iteration.
	boundary []float64

	logger *zap.Logger
}

// NewSensitivity returns a sensitivity engine bound to the given solver.
// A nil logger discards log output.
func NewSensitivity(solver *Solver, logger *zap.Logger) *Sensitivity {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sensitivity{
		mesh:   solver.mesh,
		solver: solver,
		logger: logger.Named("sensitivity"),
	}
}

// ComputeElementSensitivities evaluates per-Gauss-point sensitivities of the
// selected objective using the solver's latest displacement field. For the
// stress objective the p-norm aggregate J = (sum w * svm^p)^(1/p) is
// differentiated with the adjoint method; each element's adjoint term is
// spread evenly over its four Gauss points.
func (s *Sensitivity) ComputeElementSensitivities(objective optimization.ObjectiveType, pNorm float64) error {
	const op = "Sensitivity.ComputeElementSensitivities"

	if s.solver.fractions == nil {
		return optimization.WrapError(ErrNotComputed, "state equation not solved").
			WithOperation(op).WithComponent("fea")
	}

	switch objective {
	case optimization.ObjectiveStress:
		return s.computeStress(pNorm)
	case optimization.ObjectiveCompliance:
		return s.computeCompliance()
	default:
		return optimization.NewErrorf("unknown objective type %d", objective).
			WithOperation(op).WithComponent("fea")
	}
}

// computeStress differentiates the p-norm von Mises aggregate.
func (s *Sensitivity) computeStress(pNorm float64) error {
	const op = "Sensitivity.computeStress"

	nel := s.mesh.NumElements()
	u := s.solver.Displacements()
	em := s.solver.em
	offsets := gaussOffsets()

	// First pass: Gauss point stresses, the aggregate objective and the
	// maximum von Mises measure.
	type gpState struct {
		sigma [3]float64
		svm   float64
	}
	states := make([]gpState, 4*nel)
	elemU := make([][8]float64, nel)

	aggregate := 0.0
	s.maxStress = 0.0
	for e := 0; e < nel; e++ {
		dofs := s.mesh.ElementDofs(e)
		for c, d := range dofs {
			elemU[e][c] = u[d]
		}
		af := s.solver.fractions[e]
		for g := 0; g < 4; g++ {
			sigma := em.stress(g, af, &elemU[e])
			svm := vonMises(sigma)
			states[4*e+g] = gpState{sigma: sigma, svm: svm}
			aggregate += gaussWeight * math.Pow(svm, pNorm)
			if svm > s.maxStress {
				s.maxStress = svm
			}
		}
	}
	s.objective = math.Pow(aggregate, 1/pNorm)

	if s.objective == 0 {
		// Fully unloaded state: every sensitivity is zero.
		s.samples = s.samples[:0]
		for e := 0; e < nel; e++ {
			i := e % s.mesh.NelX
			j := e / s.mesh.NelX
			for g := 0; g < 4; g++ {
				s.samples = append(s.samples, sample{
					coord: r2.Vec{X: float64(i) + offsets[g][0], Y: float64(j) + offsets[g][1]},
				})
			}
		}
		return nil
	}

	// chain is J^(1-p), the outer derivative of the p-norm aggregate.
	chain := math.Pow(s.objective, 1-pNorm)

	// Adjoint right-hand side dJ/du, scattered per Gauss point.
	rhs := make([]float64, s.mesh.NumDofs())
	for e := 0; e < nel; e++ {
		dofs := s.mesh.ElementDofs(e)
		af := s.solver.fractions[e]
		for g := 0; g < 4; g++ {
			st := states[4*e+g]
			if st.svm == 0 {
				continue
			}
			// dsvm/dsigma under plane stress.
			dsvm := [3]float64{
				(2*st.sigma[0] - st.sigma[1]) / (2 * st.svm),
				(2*st.sigma[1] - st.sigma[0]) / (2 * st.svm),
				3 * st.sigma[2] / st.svm,
			}
			scale := chain * gaussWeight * math.Pow(st.svm, pNorm-1)
			for c := 0; c < 8; c++ {
				sum := 0.0
				for r := 0; r < 3; r++ {
					sum += dsvm[r] * em.db[g].At(r, c)
				}
				rhs[dofs[c]] += scale * af * sum
			}
		}
	}

	lambda, err := s.solver.solveAdjoint(rhs)
	if err != nil {
		return optimization.WrapError(err, "adjoint solve failed").
			WithOperation(op).WithComponent("fea")
	}

	// Second pass: per-element sensitivity with respect to the area
	// fraction, split into the explicit stress term per Gauss point and the
	// adjoint stiffness term spread over the element.
	s.samples = s.samples[:0]
	var lam, kl [8]float64
	for e := 0; e < nel; e++ {
		dofs := s.mesh.ElementDofs(e)
		af := s.solver.fractions[e]
		for c, d := range dofs {
			lam[c] = lambda[d]
		}
		em.stiffnessMul(&elemU[e], &kl)
		adjoint := 0.0
		for c := 0; c < 8; c++ {
			adjoint += lam[c] * kl[c]
		}

		i := e % s.mesh.NelX
		j := e / s.mesh.NelX
		for g := 0; g < 4; g++ {
			st := states[4*e+g]
			explicit := chain * gaussWeight * math.Pow(st.svm, pNorm) / af
			s.samples = append(s.samples, sample{
				coord: r2.Vec{X: float64(i) + offsets[g][0], Y: float64(j) + offsets[g][1]},
				value: explicit - adjoint/4,
			})
		}
	}

	s.logger.Debug("stress sensitivities computed",
		zap.Float64("objective", s.objective),
		zap.Float64("max_von_mises", s.maxStress),
		zap.Int("samples", len(s.samples)),
	)
	return nil
}

// computeCompliance differentiates the structural compliance, which is
// self-adjoint and needs no extra solve.
func (s *Sensitivity) computeCompliance() error {
	nel := s.mesh.NumElements()
	u := s.solver.Displacements()
	em := s.solver.em
	offsets := gaussOffsets()

	s.objective = 0
	for d := range s.solver.load {
		s.objective += s.solver.load[d] * u[d]
	}

	s.samples = s.samples[:0]
	s.maxStress = 0
	var ue, ku [8]float64
	for e := 0; e < nel; e++ {
		dofs := s.mesh.ElementDofs(e)
		af := s.solver.fractions[e]
		for c, d := range dofs {
			ue[c] = u[d]
		}
		em.stiffnessMul(&ue, &ku)
		strain := 0.0
		for c := 0; c < 8; c++ {
			strain += ue[c] * ku[c]
		}

		i := e % s.mesh.NelX
		j := e / s.mesh.NelX
		for g := 0; g < 4; g++ {
			svm := vonMises(em.stress(g, af, &ue))
			if svm > s.maxStress {
				s.maxStress = svm
			}
			s.samples = append(s.samples, sample{
				coord: r2.Vec{X: float64(i) + offsets[g][0], Y: float64(j) + offsets[g][1]},
				value: strain / 4,
			})
		}
	}
	return nil
}

// InterpolateAtPoint returns the sensitivity at coord interpolated from
// Gauss-point samples within radius by a distance-weighted least-squares
// plane fit, falling back to the weighted mean when the normal system is
// under-determined. The result is appended to the transient boundary
// buffer. A neighborhood with zero samples is an error.
func (s *Sensitivity) InterpolateAtPoint(coord r2.Vec, radius float64, objective optimization.ObjectiveType, pNorm float64) (float64, error) {
	const op = "Sensitivity.InterpolateAtPoint"

	if s.samples == nil {
		return 0, optimization.WrapError(ErrNotComputed, "interpolation before sensitivity computation").
			WithOperation(op).WithComponent("fea")
	}

	var near []neighbor
	for _, sp := range s.samples {
		dx := sp.coord.X - coord.X
		dy := sp.coord.Y - coord.Y
		dist := math.Hypot(dx, dy)
		if dist > radius {
			continue
		}
		near = append(near, neighbor{dx: dx, dy: dy, w: 1 / (dist + 1e-9), v: sp.value})
	}

	if len(near) == 0 {
		return 0, optimization.WrapErrorf(ErrNoSamples, "at (%.4f, %.4f) radius %g", coord.X, coord.Y, radius).
			WithOperation(op).WithComponent("fea")
	}

	value, ok := fitPlane(near)
	if !ok {
		// Weighted mean fallback.
		num, den := 0.0, 0.0
		for _, n := range near {
			num += n.w * n.v
			den += n.w
		}
		value = num / den
	}

	s.boundary = append(s.boundary, value)
	return value, nil
}

// neighbor is one interpolation sample relative to the query point.
type neighbor struct {
	dx, dy, w, v float64
}

// fitPlane solves the weighted least-squares fit v = a + b dx + c dy and
// returns the value at the origin. ok is false when the normal system is
// singular.
func fitPlane(near []neighbor) (float64, bool) {
	if len(near) < 3 {
		return 0, false
	}

	var a [9]float64
	var b [3]float64
	for _, n := range near {
		row := [3]float64{1, n.dx, n.dy}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				a[3*r+c] += n.w * row[r] * row[c]
			}
			b[r] += n.w * row[r] * n.v
		}
	}

	var x mat.VecDense
	if err := x.SolveVec(mat.NewDense(3, 3, a[:]), mat.NewVecDense(3, b[:])); err != nil {
		return 0, false
	}
	return x.AtVec(0), true
}

// Objective returns the scalar objective of the latest sensitivity
// computation.
func (s *Sensitivity) Objective() float64 { return s.objective }

// MaxStress returns the maximum von Mises measure of the latest sensitivity
// computation.
func (s *Sensitivity) MaxStress() float64 { return s.maxStress }

// ClearBoundaryBuffer empties the transient interpolation buffer.
func (s *Sensitivity) ClearBoundaryBuffer() {
	s.boundary = s.boundary[:0]
}
