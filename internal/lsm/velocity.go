package lsm

import (
	"math"

	"go.uber.org/zap"

	"github.com/copyleftdev/STRUT/internal/optimization"
)

// VelocitySolver solves the per-iteration bound- and constraint-limited
// update of the boundary-point normal velocities. The move is taken in
// displacement space inside a trust region tighter than the global CFL move
// limit; the area constraint is matched by a Newton iteration on the scalar
// Lagrange multiplier with a bisection fallback on a clamp-guaranteed
// bracket. It implements optimization.VelocityOptimizer.
type VelocitySolver struct {
	logger *zap.Logger
}

// NewVelocitySolver returns a velocity solver. A nil logger discards log
// output.
func NewVelocitySolver(logger *zap.Logger) *VelocitySolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VelocitySolver{logger: logger.Named("velocity")}
}

// Solve computes the per-point displacements d_i = clamp(trust * s0_i +
// lambda * s1_i, +-trust), with s0 the objective sensitivities normalized to
// unit magnitude and s1 the constraint sensitivities, such that the area
// change sum(d_i * len_i) meets the clamped constraint distance. Velocities
// are written into points[i].Velocity and scaled so the global move limit is
// exactly saturated; the returned time step realizes the displacements under
// that scaling. Lambdas holds the objective normalization followed by the
// constraint multiplier.
func (s *VelocitySolver) Solve(points []optimization.BoundaryPoint, problem optimization.VelocityProblem) (*optimization.VelocitySolution, error) {
	const op = "VelocitySolver.Solve"

	if len(points) == 0 {
		return nil, optimization.WrapError(ErrEmptyBoundary, "no boundary points to optimize").
			WithOperation(op).WithComponent("lsm")
	}
	for i := range points {
		if len(points[i].Sensitivities) < 2 {
			return nil, optimization.NewErrorf("point %d has %d sensitivity slots, need objective plus constraint",
				i, len(points[i].Sensitivities)).
				WithOperation(op).WithComponent("lsm")
		}
	}

	trust := problem.TrustRegion

	// Normalize objective sensitivities to unit magnitude so the trust
	// region bounds the raw displacement directly.
	scale := 0.0
	for i := range points {
		if a := math.Abs(points[i].Sensitivities[0]); a > scale {
			scale = a
		}
	}

	s0 := make([]float64, len(points))
	s1 := make([]float64, len(points))
	lengths := make([]float64, len(points))
	for i := range points {
		if scale > 0 {
			s0[i] = points[i].Sensitivities[0] / scale
		}
		s1[i] = points[i].Sensitivities[len(points[i].Sensitivities)-1]
		lengths[i] = points[i].Length
	}

	// Clamp the constraint target to what the trust region can reach this
	// iteration.
	target := problem.MaxArea*problem.MeshArea - problem.CurrentArea
	reach := 0.0
	for i := range points {
		if !points[i].Fixed {
			reach += trust * lengths[i]
		}
	}
	target = math.Max(-reach, math.Min(reach, target))

	displacement := func(lambda float64, i int) float64 {
		if points[i].Fixed {
			return 0
		}
		d := trust*s0[i] + lambda*s1[i]
		return math.Max(-trust, math.Min(trust, d))
	}

	// Area mismatch and its derivative over the unclamped points.
	residual := func(lambda float64) (g, dg float64) {
		g = -target
		for i := range points {
			if points[i].Fixed {
				continue
			}
			d := trust*s0[i] + lambda*s1[i]
			if d > -trust && d < trust {
				dg += s1[i] * lengths[i]
			}
			g += math.Max(-trust, math.Min(trust, d)) * lengths[i]
		}
		return g, dg
	}

	lambda, err := s.solveMultiplier(residual, trust, target)
	if err != nil {
		return nil, err
	}

	maxD := 0.0
	for i := range points {
		d := displacement(lambda, i)
		points[i].Velocity = d
		if a := math.Abs(d); a > maxD {
			maxD = a
		}
	}

	// Zero motion: nothing to advect this iteration.
	if maxD == 0 {
		return &optimization.VelocitySolution{
			Lambdas:  []float64{scale, lambda},
			TimeStep: 0,
		}, nil
	}

	// Convert displacements to velocities so the largest motion exactly
	// saturates the CFL move limit.
	dt := maxD / problem.MoveLimit
	for i := range points {
		points[i].Velocity /= dt
	}

	s.logger.Debug("velocity solve complete",
		zap.Int("points", len(points)),
		zap.Float64("lambda", lambda),
		zap.Float64("target", target),
		zap.Float64("time_step", dt),
	)

	return &optimization.VelocitySolution{
		Lambdas:  []float64{scale, lambda},
		TimeStep: dt,
	}, nil
}

// solveMultiplier finds the multiplier zeroing the area mismatch. The
// residual is piecewise linear and monotone in lambda for the unit-weight
// area constraint, so Newton converges except on flat clamp plateaus, where
// bisection takes over; the bracket is guaranteed because all displacements
// clamp beyond |lambda| = 2 * trust.
func (s *VelocitySolver) solveMultiplier(residual func(float64) (float64, float64), trust, target float64) (float64, error) {
	const op = "VelocitySolver.solveMultiplier"
	tol := 1e-9 * math.Max(1, math.Abs(target))

	lambda := 0.0
	for iter := 0; iter < 50; iter++ {
		g, dg := residual(lambda)
		if math.Abs(g) <= tol {
			return lambda, nil
		}
		if dg == 0 {
			break
		}
		next := lambda - g/dg
		if math.Abs(next-lambda) <= 1e-14*math.Max(1, math.Abs(lambda)) {
			return next, nil
		}
		lambda = next
	}

	lo, hi := -2*trust-1, 2*trust+1
	gLo, _ := residual(lo)
	gHi, _ := residual(hi)
	if gLo == 0 {
		return lo, nil
	}
	if gHi == 0 {
		return hi, nil
	}
	if math.Signbit(gLo) == math.Signbit(gHi) {
		return 0, optimization.NewErrorf("multiplier bracket [%g, %g] does not straddle the constraint target", lo, hi).
			WithOperation(op).WithComponent("lsm")
	}

	for iter := 0; iter < 200; iter++ {
		mid := (lo + hi) / 2
		g, _ := residual(mid)
		if math.Abs(g) <= tol || hi-lo <= 1e-14 {
			return mid, nil
		}
		if math.Signbit(g) == math.Signbit(gLo) {
			lo, gLo = mid, g
		} else {
			hi = mid
		}
	}

	return (lo + hi) / 2, nil
}
