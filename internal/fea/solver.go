package fea

import (
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/copyleftdev/STRUT/internal/metrics"
	"github.com/copyleftdev/STRUT/internal/optimization"
)

// Solver assembles and solves the structural state equation K(af) u = f for
// a given area-fraction field. The stiffness operator is applied matrix-free
// element by element, scaled by each element's area fraction, and the system
// is solved with a Jacobi-preconditioned conjugate gradient warm-started
// from the previous iteration's displacements.
//
// Loads and Dirichlet conditions are fixed at setup time; Solve only varies
// the area fractions.
type Solver struct {
	mesh *Mesh
	em   *elementMatrices

	fixed []bool    // per dof
	load  []float64 // per dof

	u         []float64 // displacements, persisted across solves
	fractions []float64 // fractions of the latest solve

	tol     float64
	maxIter int

	logger *zap.Logger
}

// NewSolver returns a solver for the given mesh and material with no loads
// or boundary conditions applied yet. A nil logger discards log output.
func NewSolver(mesh *Mesh, material Material, logger *zap.Logger) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{
		mesh:    mesh,
		em:      newElementMatrices(material),
		fixed:   make([]bool, mesh.NumDofs()),
		load:    make([]float64, mesh.NumDofs()),
		u:       make([]float64, mesh.NumDofs()),
		tol:     1e-8,
		maxIter: 10 * mesh.NumDofs(),
		logger:  logger.Named("fea"),
	}
}

// FixNodes applies a homogeneous Dirichlet condition to every node within
// the tolerance box around coord and returns the number of nodes fixed.
func (s *Solver) FixNodes(coord, tol r2.Vec) int {
	nodes := s.mesh.NodesByCoordinate(coord, tol)
	for _, d := range s.mesh.Dofs(nodes) {
		s.fixed[d] = true
	}
	return len(nodes)
}

// AddPointLoad distributes the load (fx, fy) evenly over every node within
// the tolerance box around coord and returns the number of loaded nodes.
func (s *Solver) AddPointLoad(coord, tol r2.Vec, fx, fy float64) int {
	nodes := s.mesh.NodesByCoordinate(coord, tol)
	if len(nodes) == 0 {
		return 0
	}
	n := float64(len(nodes))
	for _, node := range nodes {
		s.load[2*node] += fx / n
		s.load[2*node+1] += fy / n
	}
	return len(nodes)
}

// Solve implements optimization.StructuralSolver. Fractions must hold one
// value per element, each in (0, 1]; the clamp upstream guarantees no
// element reaches zero stiffness. Non-convergence of the inner conjugate
// gradient is fatal.
func (s *Solver) Solve(fractions []float64) error {
	const op = "Solver.Solve"

	if len(fractions) != s.mesh.NumElements() {
		return optimization.NewErrorf("got %d area fractions for %d elements",
			len(fractions), s.mesh.NumElements()).
			WithOperation(op).WithComponent("fea")
	}
	for e, f := range fractions {
		if f <= 0 || f > 1 {
			return optimization.NewErrorf("area fraction %g of element %d outside (0, 1]", f, e).
				WithOperation(op).WithComponent("fea")
		}
	}

	if s.fractions == nil {
		s.fractions = make([]float64, len(fractions))
	}
	copy(s.fractions, fractions)

	start := time.Now()
	iters, err := s.solveCG(s.load, s.u)
	metrics.SolveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	s.logger.Debug("state solve complete",
		zap.Int("cg_iterations", iters),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Displacements returns the displacement field of the latest solve. The
// slice is owned by the solver and overwritten by the next solve.
func (s *Solver) Displacements() []float64 {
	return s.u
}

// solveAdjoint solves K lambda = rhs against the operator of the latest
// state solve, starting from zero.
func (s *Solver) solveAdjoint(rhs []float64) ([]float64, error) {
	lambda := make([]float64, len(rhs))
	if _, err := s.solveCG(rhs, lambda); err != nil {
		return nil, err
	}
	return lambda, nil
}

// applyStiffness computes y = K x element by element, treating fixed
// degrees of freedom as identity rows so the operator stays symmetric
// positive definite.
func (s *Solver) applyStiffness(x, y []float64) {
	for i := range y {
		y[i] = 0
	}

	var ue, ve [8]float64
	for e := 0; e < s.mesh.NumElements(); e++ {
		dofs := s.mesh.ElementDofs(e)
		for c, d := range dofs {
			if s.fixed[d] {
				ue[c] = 0
			} else {
				ue[c] = x[d]
			}
		}
		s.em.stiffnessMul(&ue, &ve)
		af := s.fractions[e]
		for c, d := range dofs {
			if !s.fixed[d] {
				y[d] += af * ve[c]
			}
		}
	}

	for d, fixed := range s.fixed {
		if fixed {
			y[d] = x[d]
		}
	}
}

// jacobi fills diag with the diagonal of the current stiffness operator.
func (s *Solver) jacobi(diag []float64) {
	for i := range diag {
		diag[i] = 0
	}
	for e := 0; e < s.mesh.NumElements(); e++ {
		dofs := s.mesh.ElementDofs(e)
		af := s.fractions[e]
		for c, d := range dofs {
			diag[d] += af * s.em.ke.At(c, c)
		}
	}
	for d, fixed := range s.fixed {
		if fixed {
			diag[d] = 1
		}
	}
}

// solveCG runs the preconditioned conjugate gradient on K u = b, mutating u
// in place, and returns the iteration count.
func (s *Solver) solveCG(b, u []float64) (int, error) {
	const op = "Solver.solveCG"
	n := len(b)

	rhs := make([]float64, n)
	copy(rhs, b)
	for d, fixed := range s.fixed {
		if fixed {
			rhs[d] = 0
			u[d] = 0
		}
	}

	diag := make([]float64, n)
	s.jacobi(diag)

	r := make([]float64, n)
	z := make([]float64, n)
	p := make([]float64, n)
	ap := make([]float64, n)

	s.applyStiffness(u, r)
	floats.AddScaledTo(r, rhs, -1, r) // r = b - K u

	normB := floats.Norm(rhs, 2)
	if normB == 0 {
		for i := range u {
			u[i] = 0
		}
		return 0, nil
	}

	for i := range z {
		z[i] = r[i] / diag[i]
	}
	copy(p, z)
	rz := floats.Dot(r, z)

	for iter := 1; iter <= s.maxIter; iter++ {
		s.applyStiffness(p, ap)

		pap := floats.Dot(p, ap)
		if pap <= 0 || math.IsNaN(pap) {
			return iter, optimization.NewErrorf("operator lost positive definiteness at iteration %d", iter).
				WithOperation(op).WithComponent("fea")
		}

		alpha := rz / pap
		floats.AddScaled(u, alpha, p)
		floats.AddScaled(r, -alpha, ap)

		if floats.Norm(r, 2) <= s.tol*normB {
			metrics.CGIterations.Observe(float64(iter))
			return iter, nil
		}

		for i := range z {
			z[i] = r[i] / diag[i]
		}
		rzNext := floats.Dot(r, z)
		beta := rzNext / rz
		rz = rzNext

		floats.AddScaledTo(p, z, beta, p) // p = z + beta p
	}

	return s.maxIter, optimization.NewErrorf("conjugate gradient did not converge in %d iterations (residual %g)",
		s.maxIter, floats.Norm(r, 2)/normB).
		WithOperation(op).WithComponent("fea")
}
