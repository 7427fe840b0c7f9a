package fea

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstitutiveMatrix(t *testing.T) {
	d := DefaultMaterial().Constitutive()

	c := 1.0 / (1 - 0.3*0.3)
	assert.InDelta(t, c, d.At(0, 0), 1e-12)
	assert.InDelta(t, c, d.At(1, 1), 1e-12)
	assert.InDelta(t, 0.3*c, d.At(0, 1), 1e-12)
	assert.InDelta(t, 0.3*c, d.At(1, 0), 1e-12)
	assert.InDelta(t, c*(1-0.3)/2, d.At(2, 2), 1e-12)
	assert.Zero(t, d.At(0, 2))
	assert.Zero(t, d.At(2, 1))
}

func TestElementStiffnessSymmetry(t *testing.T) {
	em := newElementMatrices(DefaultMaterial())

	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			assert.InDelta(t, em.ke.At(c, r), em.ke.At(r, c), 1e-12, "ke[%d,%d]", r, c)
		}
	}
}

func TestElementStiffnessRigidBodyNullspace(t *testing.T) {
	em := newElementMatrices(DefaultMaterial())

	// Corner order (0,0), (1,0), (1,1), (0,1); x then y per corner.
	modes := map[string][8]float64{
		"translation x": {1, 0, 1, 0, 1, 0, 1, 0},
		"translation y": {0, 1, 0, 1, 0, 1, 0, 1},
		// Linearized rotation ux = -y, uy = x.
		"rotation": {0, 0, 0, 1, -1, 1, -1, 0},
	}

	var out [8]float64
	for name, mode := range modes {
		ue := mode
		em.stiffnessMul(&ue, &out)
		for c := 0; c < 8; c++ {
			assert.InDelta(t, 0, out[c], 1e-12, "%s, component %d", name, c)
		}
	}
}

func TestElementStressUniaxial(t *testing.T) {
	em := newElementMatrices(DefaultMaterial())

	// Uniform uniaxial strain state: uy = y, ux = -nu * x. Under plane
	// stress this produces sigma = (0, E, 0) at every Gauss point, scaled by
	// the area fraction.
	nu := 0.3
	ue := [8]float64{0, 0, -nu, 0, -nu, 1, 0, 1}

	for g := 0; g < 4; g++ {
		sigma := em.stress(g, 0.5, &ue)
		assert.InDelta(t, 0, sigma[0], 1e-12)
		assert.InDelta(t, 0.5, sigma[1], 1e-12)
		assert.InDelta(t, 0, sigma[2], 1e-12)
	}
}

func TestVonMises(t *testing.T) {
	tests := []struct {
		name  string
		sigma [3]float64
		want  float64
	}{
		{"unloaded", [3]float64{0, 0, 0}, 0},
		{"uniaxial", [3]float64{2, 0, 0}, 2},
		{"pure shear", [3]float64{0, 0, 1}, math.Sqrt(3)},
		{"equibiaxial", [3]float64{3, 3, 0}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, vonMises(tt.sigma), 1e-12)
		})
	}
}
