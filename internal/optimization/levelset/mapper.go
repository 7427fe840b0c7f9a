package levelset

import (
	"github.com/copyleftdev/STRUT/internal/optimization"
)

// constraintSensitivity is the uniform constraint gradient assigned to every
// boundary point: the area constraint normalized to unit weight.
const constraintSensitivity = -1.0

// SensitivityMapper projects sensitivities computed at analysis resolution
// onto the boundary points whose motion is optimized.
type SensitivityMapper struct {
	engine    optimization.SensitivityEngine
	objective optimization.ObjectiveType
	radius    float64
	pNorm     float64
}

// NewSensitivityMapper returns a mapper interpolating the given objective
// with the given least-squares radius (mesh-grid units) and aggregation
// exponent.
func NewSensitivityMapper(engine optimization.SensitivityEngine, objective optimization.ObjectiveType, radius, pNorm float64) *SensitivityMapper {
	return &SensitivityMapper{
		engine:    engine,
		objective: objective,
		radius:    radius,
		pNorm:     pNorm,
	}
}

// Assign fills every boundary point's sensitivity vector: the negated
// interpolated objective sensitivity in slot 0 and the constant constraint
// gradient in every constraint slot. The engine's transient interpolation
// buffer is cleared after the pass. Interpolation failures (a neighborhood
// with zero analysis samples) propagate unchanged.
func (m *SensitivityMapper) Assign(points []optimization.BoundaryPoint) error {
	const op = "SensitivityMapper.Assign"

	for i := range points {
		value, err := m.engine.InterpolateAtPoint(points[i].Coord, m.radius, m.objective, m.pNorm)
		if err != nil {
			e := optimization.WrapErrorf(err, "interpolating sensitivity at point %d (%.4f, %.4f)",
				i, points[i].Coord.X, points[i].Coord.Y)
			return e.WithOperation(op).WithComponent("levelset")
		}

		points[i].Sensitivities[0] = -value
		for c := 1; c < len(points[i].Sensitivities); c++ {
			points[i].Sensitivities[c] = constraintSensitivity
		}
	}

	m.engine.ClearBoundaryBuffer()
	return nil
}
