// Package levelset implements the level-set topology optimization control
// loop: the iteration that couples boundary discretization, the structural
// state solve, sensitivity mapping, the constrained velocity sub-problem,
// level-set advection, reinitialization scheduling and convergence detection.
package levelset

import (
	"context"

	"go.uber.org/zap"

	"github.com/copyleftdev/STRUT/internal/metrics"
	"github.com/copyleftdev/STRUT/internal/optimization"
)

// Config holds the numerical policy of one optimization run. All values are
// in mesh-grid units unless noted.
type Config struct {
	// MaxIterations is the hard iteration ceiling, independent of
	// convergence.
	MaxIterations int

	// ConvergenceTol is the relative-difference threshold below which the
	// objective history counts as stable.
	ConvergenceTol float64

	// ConvergenceWindow is the number of trailing iterations the stability
	// metric spans.
	ConvergenceWindow int

	// MaxAreaFraction is the maximum allowed structural area as a fraction
	// of the mesh area.
	MaxAreaFraction float64

	// AreaSlack is the feasibility slack factor on MaxAreaFraction in the
	// termination test.
	AreaSlack float64

	// MinAreaFraction is the clamp applied to computed element area
	// fractions so no element reaches zero stiffness.
	MinAreaFraction float64

	// MoveLimit is the global CFL move limit.
	MoveLimit float64

	// TrustRegion is the reduced move limit for the constrained velocity
	// sub-problem.
	TrustRegion float64

	// InterpolationRadius is the least-squares radius of the sensitivity
	// interpolation.
	InterpolationRadius float64

	// PNorm is the stress aggregation exponent.
	PNorm float64

	// ReinitSkipLimit is the number of consecutive skipped iterations after
	// which an explicit reinitialization is forced.
	ReinitSkipLimit int

	// NConstraints is the number of active constraints, one for the area
	// constraint alone.
	NConstraints int

	// DomainWidth, DomainHeight and MeshArea describe the design domain.
	// MeshArea is the fixed total area available to the structure.
	DomainWidth  float64
	DomainHeight float64
	MeshArea     float64
}

// DefaultConfig returns the run policy of the reference L-beam study.
func DefaultConfig() Config {
	return Config{
		MaxIterations:       500,
		ConvergenceTol:      5e-4,
		ConvergenceWindow:   5,
		MaxAreaFraction:     0.4,
		AreaSlack:           1.001,
		MinAreaFraction:     1e-6,
		MoveLimit:           0.5,
		TrustRegion:         0.15,
		InterpolationRadius: 2.0,
		PNorm:               6,
		ReinitSkipLimit:     1,
		NConstraints:        1,
	}
}

// Result is the terminal state of a run.
type Result struct {
	// Iterations is the number of completed iterations.
	Iterations int
	// Converged reports whether the convergence-and-feasibility condition
	// was met before the iteration ceiling.
	Converged bool
	// Objective is the final objective value.
	Objective float64
	// AreaFraction is the final structural area fraction.
	AreaFraction float64
	// Elapsed is the accumulated pseudo-time over all advection steps.
	Elapsed float64
	// History holds every iteration record in order.
	History []optimization.IterationRecord
}

// Orchestrator sequences one full optimization iteration at a time and owns
// the global run state: the objective history, the reinitialization counter
// and the accumulated time. A run has exactly two states, running and
// terminated; there is no pause or resume.
type Orchestrator struct {
	cfg Config

	solver   optimization.StructuralSolver
	sens     optimization.SensitivityEngine
	geom     optimization.GeometryEngine
	velocity optimization.VelocityOptimizer
	sink     optimization.Sink

	tracker   *ConvergenceTracker
	scheduler *ReinitScheduler
	mapper    *SensitivityMapper

	elapsed float64
	logger  *zap.Logger
}

// NewOrchestrator wires the control loop to its collaborators. A nil sink
// disables persistence; a nil logger discards log output.
func NewOrchestrator(cfg Config, solver optimization.StructuralSolver, sens optimization.SensitivityEngine,
	geom optimization.GeometryEngine, velocity optimization.VelocityOptimizer, sink optimization.Sink,
	logger *zap.Logger) *Orchestrator {

	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = optimization.MultiSink(nil)
	}
	if cfg.NConstraints < 1 {
		cfg.NConstraints = 1
	}
	if cfg.AreaSlack <= 0 {
		cfg.AreaSlack = 1.001
	}

	return &Orchestrator{
		cfg:       cfg,
		solver:    solver,
		sens:      sens,
		geom:      geom,
		velocity:  velocity,
		sink:      sink,
		tracker:   NewConvergenceTracker(cfg.ConvergenceWindow),
		scheduler: NewReinitScheduler(cfg.ReinitSkipLimit),
		mapper:    NewSensitivityMapper(sens, optimization.ObjectiveStress, cfg.InterpolationRadius, cfg.PNorm),
		logger:    logger.Named("orchestrator"),
	}
}

// Run executes iterations until the convergence-and-feasibility condition is
// met or the iteration ceiling is exhausted. Exhausting the ceiling is not
// an error; the result reports Converged false and the caller interprets the
// output as "did not converge". Cancellation is honored between iterations
// only; no stage is interrupted mid-flight.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	const op = "Orchestrator.Run"

	history := make([]optimization.IterationRecord, 0, o.cfg.MaxIterations)
	converged := false

	var rec optimization.IterationRecord
	for iter := 1; iter <= o.cfg.MaxIterations; iter++ {
		select {
		case <-ctx.Done():
			return nil, optimization.WrapError(ctx.Err(), "run cancelled").
				WithOperation(op).WithComponent("levelset")
		default:
		}

		var err error
		rec, err = o.iterate(iter)
		if err != nil {
			return nil, err
		}
		history = append(history, rec)

		if err := o.sink.Record(rec); err != nil {
			return nil, optimization.WrapError(err, "persisting iteration record").
				WithOperation(op).WithComponent("levelset")
		}
		if err := o.sink.Snapshot(iter); err != nil {
			return nil, optimization.WrapError(err, "persisting geometry snapshot").
				WithOperation(op).WithComponent("levelset")
		}

		if o.tracker.Converged(o.cfg.ConvergenceTol) &&
			rec.AreaFraction <= o.cfg.AreaSlack*o.cfg.MaxAreaFraction {
			converged = true
			break
		}
	}

	result := &Result{
		Iterations:   len(history),
		Converged:    converged,
		Objective:    rec.Objective,
		AreaFraction: rec.AreaFraction,
		Elapsed:      o.elapsed,
		History:      history,
	}

	o.logger.Info("optimization finished",
		zap.Int("iterations", result.Iterations),
		zap.Bool("converged", result.Converged),
		zap.Float64("objective", result.Objective),
		zap.Float64("area_fraction", result.AreaFraction),
		zap.Float64("elapsed", result.Elapsed),
	)

	return result, nil
}

// iterate performs one full optimization iteration and returns its record.
func (o *Orchestrator) iterate(iter int) (optimization.IterationRecord, error) {
	const op = "Orchestrator.iterate"
	var zero optimization.IterationRecord

	fail := func(err error, msg string) (optimization.IterationRecord, error) {
		return zero, optimization.WrapError(err, msg).WithOperation(op).WithComponent("levelset")
	}

	// Discretize the current zero contour into fresh boundary points.
	points, err := o.geom.DiscretizeBoundary(o.cfg.NConstraints)
	if err != nil {
		return fail(err, "discretizing boundary")
	}

	// Area fractions from the level-set geometry, clamped away from zero so
	// no element reaches zero stiffness.
	fractions := o.geom.ComputeAreaFractions()
	for i, f := range fractions {
		if f < o.cfg.MinAreaFraction {
			fractions[i] = o.cfg.MinAreaFraction
		}
	}

	if err := o.solver.Solve(fractions); err != nil {
		return fail(err, "solving state equation")
	}

	if err := o.sens.ComputeElementSensitivities(optimization.ObjectiveStress, o.cfg.PNorm); err != nil {
		return fail(err, "computing element sensitivities")
	}

	if err := o.mapper.Assign(points); err != nil {
		return zero, err
	}

	// Constraint distance from the freshest boundary integration; never
	// reused across iterations.
	area := o.geom.Area()

	solution, err := o.velocity.Solve(points, optimization.VelocityProblem{
		MoveLimit:    o.cfg.MoveLimit,
		TrustRegion:  o.cfg.TrustRegion,
		DomainWidth:  o.cfg.DomainWidth,
		DomainHeight: o.cfg.DomainHeight,
		CurrentArea:  area,
		MeshArea:     o.cfg.MeshArea,
		MaxArea:      o.cfg.MaxAreaFraction,
	})
	if err != nil {
		return fail(err, "solving constrained velocity problem")
	}

	o.geom.ExtendVelocities(points)
	o.geom.ComputeGradients()
	reinitialized := o.geom.Advance(solution.TimeStep)

	if o.scheduler.Step(reinitialized) {
		o.geom.Reinitialize()
		metrics.ReinitializationsTotal.WithLabelValues("forced").Inc()
	} else if reinitialized {
		metrics.ReinitializationsTotal.WithLabelValues("implicit").Inc()
	}

	o.elapsed += solution.TimeStep

	rec := optimization.IterationRecord{
		Iteration:    iter,
		Objective:    o.sens.Objective(),
		MaxStress:    o.sens.MaxStress(),
		AreaFraction: area / o.cfg.MeshArea,
	}

	o.tracker.Append(rec.Objective)
	rec.RelativeChange = o.tracker.RelativeDifference()

	metrics.IterationsTotal.Inc()
	metrics.Objective.Set(rec.Objective)
	metrics.AreaFraction.Set(rec.AreaFraction)
	metrics.RelativeChange.Set(rec.RelativeChange)

	o.logger.Info("iteration complete",
		zap.Int("iteration", iter),
		zap.Float64("objective", rec.Objective),
		zap.Float64("max_stress", rec.MaxStress),
		zap.Float64("area_fraction", rec.AreaFraction),
		zap.Float64("relative_change", rec.RelativeChange),
		zap.Int("boundary_points", len(points)),
		zap.Float64("time_step", solution.TimeStep),
		zap.Float64("lambda", solution.Lambdas[len(solution.Lambdas)-1]),
		zap.Bool("reinitialized", reinitialized),
	)

	return rec, nil
}

// Elapsed returns the accumulated pseudo-time over all advection steps so
// far. Reported but never used for control decisions.
func (o *Orchestrator) Elapsed() float64 {
	return o.elapsed
}
