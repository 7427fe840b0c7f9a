// Package fea implements the finite-element collaborators of the
// optimization loop: a structured Q4 mesh, an ersatz-material structural
// solver and the stress sensitivity engine.
package fea

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Mesh is a structured grid of unit bilinear quadrilateral elements with two
// degrees of freedom per node. Nodes and elements are numbered row-major
// from the bottom-left corner.
type Mesh struct {
	// NelX and NelY are the element counts along x and y.
	NelX int
	NelY int
}

// NewMesh returns a structured nelx by nely element mesh.
func NewMesh(nelx, nely int) *Mesh {
	return &Mesh{NelX: nelx, NelY: nely}
}

// Width returns the domain width in grid units.
func (m *Mesh) Width() float64 { return float64(m.NelX) }

// Height returns the domain height in grid units.
func (m *Mesh) Height() float64 { return float64(m.NelY) }

// NumNodes returns the total node count.
func (m *Mesh) NumNodes() int { return (m.NelX + 1) * (m.NelY + 1) }

// NumElements returns the total element count.
func (m *Mesh) NumElements() int { return m.NelX * m.NelY }

// NumDofs returns the total degree-of-freedom count.
func (m *Mesh) NumDofs() int { return 2 * m.NumNodes() }

// Node returns the node index at grid position (i, j).
func (m *Mesh) Node(i, j int) int { return j*(m.NelX+1) + i }

// NodeCoord returns the position of node n.
func (m *Mesh) NodeCoord(n int) r2.Vec {
	return r2.Vec{
		X: float64(n % (m.NelX + 1)),
		Y: float64(n / (m.NelX + 1)),
	}
}

// ElementNodes returns the corner nodes of element e in counterclockwise
// order starting at the bottom-left corner.
func (m *Mesh) ElementNodes(e int) [4]int {
	i := e % m.NelX
	j := e / m.NelX
	return [4]int{
		m.Node(i, j),
		m.Node(i+1, j),
		m.Node(i+1, j+1),
		m.Node(i, j+1),
	}
}

// ElementDofs returns the eight degrees of freedom of element e, x then y
// per corner node.
func (m *Mesh) ElementDofs(e int) [8]int {
	nodes := m.ElementNodes(e)
	var dofs [8]int
	for c, n := range nodes {
		dofs[2*c] = 2 * n
		dofs[2*c+1] = 2*n + 1
	}
	return dofs
}

// ElementCenter returns the centroid of element e.
func (m *Mesh) ElementCenter(e int) r2.Vec {
	i := e % m.NelX
	j := e / m.NelX
	return r2.Vec{X: float64(i) + 0.5, Y: float64(j) + 0.5}
}

// NodesByCoordinate returns every node within the axis-aligned tolerance box
// around coord, in ascending node order. Used to select boundary-condition
// and load nodes.
func (m *Mesh) NodesByCoordinate(coord, tol r2.Vec) []int {
	var nodes []int
	for n := 0; n < m.NumNodes(); n++ {
		p := m.NodeCoord(n)
		if math.Abs(p.X-coord.X) <= tol.X && math.Abs(p.Y-coord.Y) <= tol.Y {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Dofs returns the degrees of freedom of the given nodes, x then y per node.
func (m *Mesh) Dofs(nodes []int) []int {
	dofs := make([]int, 0, 2*len(nodes))
	for _, n := range nodes {
		dofs = append(dofs, 2*n, 2*n+1)
	}
	return dofs
}
