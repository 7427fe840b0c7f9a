package fea

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Material holds isotropic linear-elastic properties under plane stress.
type Material struct {
	// Young is the elastic modulus.
	Young float64
	// Poisson is Poisson's ratio.
	Poisson float64
}

// DefaultMaterial returns the normalized material of the reference studies.
func DefaultMaterial() Material {
	return Material{Young: 1.0, Poisson: 0.3}
}

// Constitutive returns the 3x3 plane-stress constitutive matrix.
func (m Material) Constitutive() *mat.Dense {
	c := m.Young / (1 - m.Poisson*m.Poisson)
	return mat.NewDense(3, 3, []float64{
		c, c * m.Poisson, 0,
		c * m.Poisson, c, 0,
		0, 0, c * (1 - m.Poisson) / 2,
	})
}

// gaussWeight is the integration weight of one 2x2 Gauss point on a unit
// square element (detJ = 1/4, unit quadrature weights).
const gaussWeight = 0.25

// gaussPoints returns the four 2x2 Gauss point locations in the element's
// natural coordinates.
func gaussPoints() [4][2]float64 {
	g := 1.0 / math.Sqrt(3)
	return [4][2]float64{
		{-g, -g}, {g, -g}, {g, g}, {-g, g},
	}
}

// gaussOffsets returns the four Gauss point offsets from an element's
// bottom-left corner in physical coordinates.
func gaussOffsets() [4][2]float64 {
	pts := gaussPoints()
	var out [4][2]float64
	for i, p := range pts {
		out[i] = [2]float64{(p[0] + 1) / 2, (p[1] + 1) / 2}
	}
	return out
}

// strainDisplacement returns the 3x8 strain-displacement matrix of the unit
// Q4 element at natural coordinates (xi, eta). The unit element Jacobian is
// diagonal with detJ = 1/4, so physical shape-function derivatives are twice
// the natural ones.
func strainDisplacement(xi, eta float64) *mat.Dense {
	// dN/dxi and dN/deta for corners (-1,-1), (1,-1), (1,1), (-1,1).
	dxi := [4]float64{
		-(1 - eta) / 4, (1 - eta) / 4, (1 + eta) / 4, -(1 + eta) / 4,
	}
	deta := [4]float64{
		-(1 - xi) / 4, -(1 + xi) / 4, (1 + xi) / 4, (1 - xi) / 4,
	}

	b := mat.NewDense(3, 8, nil)
	for c := 0; c < 4; c++ {
		dx := 2 * dxi[c]
		dy := 2 * deta[c]
		b.Set(0, 2*c, dx)
		b.Set(1, 2*c+1, dy)
		b.Set(2, 2*c, dy)
		b.Set(2, 2*c+1, dx)
	}
	return b
}

// elementMatrices holds the per-Gauss-point strain-displacement matrices and
// the assembled unit element stiffness, computed once per material.
type elementMatrices struct {
	d  *mat.Dense    // 3x3 constitutive
	b  [4]*mat.Dense // 3x8 strain-displacement per Gauss point
	db [4]*mat.Dense // 3x8 stress-displacement (D*B) per Gauss point
	ke *mat.Dense    // 8x8 unit element stiffness
}

// newElementMatrices integrates the unit Q4 stiffness with 2x2 Gauss
// quadrature.
func newElementMatrices(material Material) *elementMatrices {
	em := &elementMatrices{
		d:  material.Constitutive(),
		ke: mat.NewDense(8, 8, nil),
	}

	for g, p := range gaussPoints() {
		em.b[g] = strainDisplacement(p[0], p[1])

		db := mat.NewDense(3, 8, nil)
		db.Mul(em.d, em.b[g])
		em.db[g] = db

		var btdb mat.Dense
		btdb.Mul(em.b[g].T(), db)
		btdb.Scale(gaussWeight, &btdb)
		em.ke.Add(em.ke, &btdb)
	}

	return em
}

// stiffnessMul computes out = ke * ue for one element.
func (em *elementMatrices) stiffnessMul(ue *[8]float64, out *[8]float64) {
	for r := 0; r < 8; r++ {
		sum := 0.0
		for c := 0; c < 8; c++ {
			sum += em.ke.At(r, c) * ue[c]
		}
		out[r] = sum
	}
}

// stress computes the stress vector sigma = af * D * B * ue at Gauss point g
// under the ersatz material interpolation.
func (em *elementMatrices) stress(g int, af float64, ue *[8]float64) [3]float64 {
	var sigma [3]float64
	for r := 0; r < 3; r++ {
		sum := 0.0
		for c := 0; c < 8; c++ {
			sum += em.db[g].At(r, c) * ue[c]
		}
		sigma[r] = af * sum
	}
	return sigma
}

// vonMises returns the plane-stress von Mises measure of sigma.
func vonMises(sigma [3]float64) float64 {
	sx, sy, txy := sigma[0], sigma[1], sigma[2]
	return math.Sqrt(sx*sx + sy*sy - sx*sy + 3*txy*txy)
}
