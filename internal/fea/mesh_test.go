package fea

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestMeshCounts(t *testing.T) {
	m := NewMesh(3, 2)

	assert.Equal(t, 3.0, m.Width())
	assert.Equal(t, 2.0, m.Height())
	assert.Equal(t, 12, m.NumNodes())
	assert.Equal(t, 6, m.NumElements())
	assert.Equal(t, 24, m.NumDofs())
}

func TestNodeNumberingRoundTrip(t *testing.T) {
	m := NewMesh(3, 2)

	for j := 0; j <= m.NelY; j++ {
		for i := 0; i <= m.NelX; i++ {
			n := m.Node(i, j)
			assert.Equal(t, r2.Vec{X: float64(i), Y: float64(j)}, m.NodeCoord(n))
		}
	}

	// Row-major from the bottom-left corner.
	assert.Equal(t, 0, m.Node(0, 0))
	assert.Equal(t, 3, m.Node(3, 0))
	assert.Equal(t, 4, m.Node(0, 1))
	assert.Equal(t, 11, m.Node(3, 2))
}

func TestElementConnectivity(t *testing.T) {
	m := NewMesh(3, 2)

	// Element 4 sits at grid cell (1, 1): corners counterclockwise from the
	// bottom-left.
	nodes := m.ElementNodes(4)
	assert.Equal(t, [4]int{5, 6, 10, 9}, nodes)

	dofs := m.ElementDofs(4)
	assert.Equal(t, [8]int{10, 11, 12, 13, 20, 21, 18, 19}, dofs)

	assert.Equal(t, r2.Vec{X: 1.5, Y: 1.5}, m.ElementCenter(4))
}

func TestNodesByCoordinate(t *testing.T) {
	m := NewMesh(4, 4)

	tests := []struct {
		name  string
		coord r2.Vec
		tol   r2.Vec
		want  []int
	}{
		{
			name:  "single node",
			coord: r2.Vec{X: 2, Y: 3},
			tol:   r2.Vec{X: 0.01, Y: 0.01},
			want:  []int{17},
		},
		{
			name:  "full top edge",
			coord: r2.Vec{X: 0, Y: 4},
			tol:   r2.Vec{X: 4.1, Y: 0.1},
			want:  []int{20, 21, 22, 23, 24},
		},
		{
			name:  "empty box",
			coord: r2.Vec{X: 2.5, Y: 2.5},
			tol:   r2.Vec{X: 0.1, Y: 0.1},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.NodesByCoordinate(tt.coord, tt.tol))
		})
	}
}

func TestDofs(t *testing.T) {
	m := NewMesh(4, 4)

	dofs := m.Dofs([]int{0, 7})
	require.Equal(t, []int{0, 1, 14, 15}, dofs)
}
