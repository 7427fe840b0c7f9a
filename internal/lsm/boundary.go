package lsm

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/copyleftdev/STRUT/internal/optimization"
)

// ErrEmptyBoundary is returned when the zero contour yields no boundary
// points.
var ErrEmptyBoundary = errors.New("lsm: boundary discretization produced no points")

// pointKey quantizes a coordinate so contour points shared between cell
// edges deduplicate exactly.
type pointKey struct {
	x, y int64
}

func keyOf(p r2.Vec) pointKey {
	const scale = 1e9
	return pointKey{x: int64(math.Round(p.X * scale)), y: int64(math.Round(p.Y * scale))}
}

// indexedSegment references contour points by index.
type indexedSegment struct {
	a, b int
}

// DiscretizeBoundary extracts the zero contour into an ordered sequence of
// boundary points by marching squares, deduplicating crossings shared
// between cells. Each point's integration length is half the combined
// length of its adjacent segments; its sensitivity vector is sized for the
// objective plus nConstraints constraint slots. Implements part of
// optimization.GeometryEngine.
func (ls *LevelSet) DiscretizeBoundary(nConstraints int) ([]optimization.BoundaryPoint, error) {
	const op = "LevelSet.DiscretizeBoundary"

	coords, segs := ls.marchingSquares()
	if len(coords) == 0 {
		return nil, optimization.WrapError(ErrEmptyBoundary, "zero contour is empty").
			WithOperation(op).WithComponent("lsm")
	}

	points := make([]optimization.BoundaryPoint, len(coords))
	for i, c := range coords {
		points[i] = optimization.BoundaryPoint{
			Coord:         c,
			Sensitivities: make([]float64, nConstraints+1),
			Fixed:         ls.pointFixed(c),
		}
	}

	ls.segments = ls.segments[:0]
	for _, s := range segs {
		a, b := coords[s.a], coords[s.b]
		length := math.Hypot(b.X-a.X, b.Y-a.Y)
		points[s.a].Length += length / 2
		points[s.b].Length += length / 2
		ls.segments = append(ls.segments, Segment{A: a, B: b})
	}

	return points, nil
}

// pointFixed reports whether a boundary point lies inside a fixed node's
// cell neighborhood.
func (ls *LevelSet) pointFixed(p r2.Vec) bool {
	i := int(math.Round(p.X))
	j := int(math.Round(p.Y))
	if i < 0 || i >= ls.nx || j < 0 || j >= ls.ny {
		return false
	}
	return ls.fixed[ls.node(i, j)]
}

// marchingSquares walks every active cell and collects zero crossings on
// cell edges plus the segments joining them. Solid is phi < 0; a crossing
// lands exactly on a node when that node's phi is zero.
func (ls *LevelSet) marchingSquares() ([]r2.Vec, []indexedSegment) {
	var coords []r2.Vec
	var segs []indexedSegment
	index := make(map[pointKey]int)

	intern := func(p r2.Vec) int {
		k := keyOf(p)
		if i, ok := index[k]; ok {
			return i
		}
		i := len(coords)
		index[k] = i
		coords = append(coords, p)
		return i
	}

	for e := 0; e < ls.nelx*ls.nely; e++ {
		if ls.killedElem[e] {
			continue
		}
		i := e % ls.nelx
		j := e / ls.nelx

		corners := [4]int{
			ls.node(i, j), ls.node(i+1, j), ls.node(i+1, j+1), ls.node(i, j+1),
		}
		pos := [4]r2.Vec{
			{X: float64(i), Y: float64(j)},
			{X: float64(i + 1), Y: float64(j)},
			{X: float64(i + 1), Y: float64(j + 1)},
			{X: float64(i), Y: float64(j + 1)},
		}

		var cut []int
		center := 0.0
		for c := 0; c < 4; c++ {
			pa := ls.phi[corners[c]]
			pb := ls.phi[corners[(c+1)%4]]
			center += pa / 4
			if crossing := pa < 0 && pb >= 0 || pa >= 0 && pb < 0; !crossing {
				continue
			}
			t := pa / (pa - pb)
			a, b := pos[c], pos[(c+1)%4]
			cut = append(cut, intern(r2.Vec{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)}))
		}

		switch len(cut) {
		case 2:
			if cut[0] != cut[1] {
				segs = append(segs, indexedSegment{a: cut[0], b: cut[1]})
			}
		case 4:
			// Ambiguous saddle cell: the center sign picks the pairing.
			if center < 0 {
				segs = append(segs, indexedSegment{a: cut[0], b: cut[1]}, indexedSegment{a: cut[2], b: cut[3]})
			} else {
				segs = append(segs, indexedSegment{a: cut[0], b: cut[3]}, indexedSegment{a: cut[1], b: cut[2]})
			}
		}
	}

	return coords, segs
}

// contourSegments returns the zero-contour segments of the current field
// without building boundary points.
func (ls *LevelSet) contourSegments() []Segment {
	coords, segs := ls.marchingSquares()
	out := make([]Segment, 0, len(segs))
	for _, s := range segs {
		out = append(out, Segment{A: coords[s.a], B: coords[s.b]})
	}
	return out
}

// ComputeAreaFractions clips every element against the solid region and
// returns one area fraction per element, killed elements at zero. The
// cached structural area is refreshed to the fraction sum, so the area
// always reflects the freshest geometry. The returned slice is a copy the
// caller may clamp freely. Implements part of optimization.GeometryEngine.
func (ls *LevelSet) ComputeAreaFractions() []float64 {
	if ls.fractions == nil {
		ls.fractions = make([]float64, ls.nelx*ls.nely)
	}

	ls.area = 0
	for e := range ls.fractions {
		if ls.killedElem[e] {
			ls.fractions[e] = 0
			continue
		}
		ls.fractions[e] = ls.cellFraction(e)
		ls.area += ls.fractions[e]
	}

	out := make([]float64, len(ls.fractions))
	copy(out, ls.fractions)
	return out
}

// cellFraction returns the solid area of one unit cell by clipping the cell
// polygon against the linearly interpolated zero contour.
func (ls *LevelSet) cellFraction(e int) float64 {
	i := e % ls.nelx
	j := e / ls.nelx

	corners := [4]int{
		ls.node(i, j), ls.node(i+1, j), ls.node(i+1, j+1), ls.node(i, j+1),
	}
	pos := [4]r2.Vec{
		{X: float64(i), Y: float64(j)},
		{X: float64(i + 1), Y: float64(j)},
		{X: float64(i + 1), Y: float64(j + 1)},
		{X: float64(i), Y: float64(j + 1)},
	}

	var poly []r2.Vec
	for c := 0; c < 4; c++ {
		pa := ls.phi[corners[c]]
		pb := ls.phi[corners[(c+1)%4]]
		if pa < 0 {
			poly = append(poly, pos[c])
		}
		if pa < 0 && pb >= 0 || pa >= 0 && pb < 0 {
			t := pa / (pa - pb)
			a, b := pos[c], pos[(c+1)%4]
			poly = append(poly, r2.Vec{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)})
		}
	}

	return math.Abs(shoelace(poly))
}

// shoelace returns the signed area of the polygon.
func shoelace(poly []r2.Vec) float64 {
	if len(poly) < 3 {
		return 0
	}
	area := 0.0
	for i := range poly {
		a := poly[i]
		b := poly[(i+1)%len(poly)]
		area += a.X*b.Y - b.X*a.Y
	}
	return area / 2
}
