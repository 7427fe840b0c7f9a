// Package lsm implements the level-set geometry collaborators of the
// optimization loop: the signed-distance field and its narrow band,
// zero-contour discretization, element area fractions and the constrained
// velocity optimizer.
package lsm

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/copyleftdev/STRUT/internal/optimization"
)

// Hole is a circular void seeded into the initial design.
type Hole struct {
	X float64
	Y float64
	R float64
}

// Segment is one piece of the discretized zero contour.
type Segment struct {
	A r2.Vec
	B r2.Vec
}

// Region is an axis-aligned rectangle in grid coordinates.
type Region struct {
	Min r2.Vec
	Max r2.Vec
}

// Contains reports whether p lies inside the region.
func (r Region) Contains(p r2.Vec) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// LevelSet is a node-centered signed-distance field on the (nelx+1) by
// (nely+1) grid. Negative values are solid, positive values void; the zero
// contour is the structure's boundary. It implements
// optimization.GeometryEngine.
type LevelSet struct {
	nelx, nely int
	nx, ny     int

	phi      []float64 // per node
	velocity []float64 // per node
	gradient []float64 // per node, upwind |grad phi|

	killed []bool // per node, excluded from the design domain
	edge   []bool // per node, pinned to phi >= 0 (interior domain edges)
	fixed  []bool // per node, velocity frozen at zero

	killedElem []bool // per element

	bandWidth float64
	moved     float64 // front motion since the last redistancing

	segments  []Segment
	fractions []float64
	area      float64

	logger *zap.Logger
}

// reinitFraction is the share of the band half-width the front may travel
// before Advance redistances on its own.
const reinitFraction = 0.5

// NewLevelSet returns a level set over an nelx by nely element grid with the
// given seeded holes. The field is initialized to the signed distance to the
// nearest of the domain border and the hole surfaces, then killed, edge and
// fixed regions are applied by the caller before the first Reinitialize.
// A nil logger discards log output.
func NewLevelSet(nelx, nely int, holes []Hole, bandWidth float64, logger *zap.Logger) *LevelSet {
	if logger == nil {
		logger = zap.NewNop()
	}

	ls := &LevelSet{
		nelx:       nelx,
		nely:       nely,
		nx:         nelx + 1,
		ny:         nely + 1,
		bandWidth:  bandWidth,
		killedElem: make([]bool, nelx*nely),
		logger:     logger.Named("lsm"),
	}

	n := ls.nx * ls.ny
	ls.phi = make([]float64, n)
	ls.velocity = make([]float64, n)
	ls.gradient = make([]float64, n)
	ls.killed = make([]bool, n)
	ls.edge = make([]bool, n)
	ls.fixed = make([]bool, n)

	w := float64(nelx)
	h := float64(nely)
	for node := 0; node < n; node++ {
		p := ls.nodeCoord(node)
		border := math.Min(math.Min(p.X, w-p.X), math.Min(p.Y, h-p.Y))
		phi := -border
		for _, hole := range holes {
			d := hole.R - math.Hypot(p.X-hole.X, p.Y-hole.Y)
			if d > phi {
				phi = d
			}
		}
		ls.phi[node] = phi
	}

	return ls
}

// nodeCoord returns the position of node index n.
func (ls *LevelSet) nodeCoord(n int) r2.Vec {
	return r2.Vec{X: float64(n % ls.nx), Y: float64(n / ls.nx)}
}

// node returns the node index at grid position (i, j).
func (ls *LevelSet) node(i, j int) int { return j*ls.nx + i }

// KillRegion excludes every node and element inside the region from the
// design domain. Killed nodes carry a ghost distance so contours along the
// region edge stay well defined.
func (ls *LevelSet) KillRegion(region Region) {
	for n := range ls.phi {
		if region.Contains(ls.nodeCoord(n)) {
			ls.killed[n] = true
		}
	}
	for e := range ls.killedElem {
		if region.Contains(ls.elementCenter(e)) {
			ls.killedElem[e] = true
		}
	}
}

// AddBoundary imprints an interior domain edge: nodes inside the region are
// pinned to phi >= 0 so the structure boundary can rest on the edge but
// never cross it.
func (ls *LevelSet) AddBoundary(region Region) {
	for n := range ls.phi {
		if ls.killed[n] {
			continue
		}
		if region.Contains(ls.nodeCoord(n)) {
			ls.edge[n] = true
			if ls.phi[n] < 0 {
				ls.phi[n] = 0
			}
		}
	}
}

// FixRegion freezes the nodes inside the region: their velocity is always
// zero, so the boundary never retreats there. Used for load pads.
func (ls *LevelSet) FixRegion(region Region) {
	for n := range ls.phi {
		if region.Contains(ls.nodeCoord(n)) {
			ls.fixed[n] = true
		}
	}
}

// elementCenter returns the centroid of element e.
func (ls *LevelSet) elementCenter(e int) r2.Vec {
	return r2.Vec{
		X: float64(e%ls.nelx) + 0.5,
		Y: float64(e/ls.nelx) + 0.5,
	}
}

// inBand reports whether node n participates in narrow-band computations.
func (ls *LevelSet) inBand(n int) bool {
	return !ls.killed[n] && math.Abs(ls.phi[n]) < ls.bandWidth/2
}

// ExtendVelocities spreads the boundary-point velocities onto the narrow
// band by inverse-square distance weighting over points within the band
// width, with a nearest-point fallback. Fixed nodes stay at zero.
func (ls *LevelSet) ExtendVelocities(points []optimization.BoundaryPoint) {
	for n := range ls.velocity {
		ls.velocity[n] = 0
		if ls.fixed[n] || !ls.inBand(n) {
			continue
		}

		p := ls.nodeCoord(n)
		num, den := 0.0, 0.0
		nearest := -1
		nearestDist := math.Inf(1)
		for i := range points {
			d := math.Hypot(points[i].Coord.X-p.X, points[i].Coord.Y-p.Y)
			if d < nearestDist {
				nearestDist = d
				nearest = i
			}
			if d > ls.bandWidth {
				continue
			}
			w := 1 / (d*d + 1e-12)
			num += w * points[i].Velocity
			den += w
		}

		switch {
		case den > 0:
			ls.velocity[n] = num / den
		case nearest >= 0:
			ls.velocity[n] = points[nearest].Velocity
		}
	}
}

// ComputeGradients evaluates the Godunov upwind gradient magnitude of the
// signed-distance field at every band node, with the upwind direction
// selected by the node's velocity sign. Differences towards killed nodes or
// past the domain border fall back one-sided.
func (ls *LevelSet) ComputeGradients() {
	for n := range ls.gradient {
		ls.gradient[n] = 0
		if !ls.inBand(n) {
			continue
		}
		ls.gradient[n] = ls.upwindGradient(n)
	}
}

// upwindGradient returns the Godunov |grad phi| at node n.
func (ls *LevelSet) upwindGradient(n int) float64 {
	i := n % ls.nx
	j := n / ls.nx
	phi := ls.phi[n]

	diff := func(ii, jj int) (float64, bool) {
		if ii < 0 || ii >= ls.nx || jj < 0 || jj >= ls.ny {
			return 0, false
		}
		m := ls.node(ii, jj)
		if ls.killed[m] {
			return 0, false
		}
		return ls.phi[m], true
	}

	var bx, fx, by, fy float64
	if v, ok := diff(i-1, j); ok {
		bx = phi - v
	}
	if v, ok := diff(i+1, j); ok {
		fx = v - phi
	}
	if v, ok := diff(i, j-1); ok {
		by = phi - v
	}
	if v, ok := diff(i, j+1); ok {
		fy = v - phi
	}

	if ls.velocity[n] > 0 {
		gx := math.Max(math.Max(bx, 0), -math.Min(fx, 0))
		gy := math.Max(math.Max(by, 0), -math.Min(fy, 0))
		return math.Hypot(gx, gy)
	}
	gx := math.Max(-math.Min(bx, 0), math.Max(fx, 0))
	gy := math.Max(-math.Min(by, 0), math.Max(fy, 0))
	return math.Hypot(gx, gy)
}

// Advance moves the signed-distance field by one Hamilton-Jacobi step of
// length dt and reports whether the step redistanced the field as a side
// effect. The front motion since the last redistancing is tracked; once it
// exceeds the safe share of the band half-width the field drifts too far
// from a true signed distance and is rebuilt here.
func (ls *LevelSet) Advance(dt float64) bool {
	maxMove := 0.0
	for n := range ls.phi {
		if !ls.inBand(n) {
			continue
		}
		move := dt * ls.velocity[n] * ls.gradient[n]
		ls.phi[n] -= move
		if ls.edge[n] && ls.phi[n] < 0 {
			ls.phi[n] = 0
		}
		if m := math.Abs(move); m > maxMove {
			maxMove = m
		}
	}

	ls.moved += maxMove
	if ls.moved > reinitFraction*ls.bandWidth/2 {
		ls.Reinitialize()
		return true
	}
	return false
}

// Reinitialize rebuilds a true signed-distance field: the signed minimum
// distance from every node to the current discretized zero contour. Killed
// nodes receive a positive ghost distance.
func (ls *LevelSet) Reinitialize() {
	segments := ls.contourSegments()
	if len(segments) == 0 {
		ls.moved = 0
		return
	}

	for n := range ls.phi {
		p := ls.nodeCoord(n)
		d := math.Inf(1)
		for _, s := range segments {
			if ds := distToSegment(p, s); ds < d {
				d = ds
			}
		}
		if ls.killed[n] || ls.phi[n] >= 0 {
			ls.phi[n] = d
		} else {
			ls.phi[n] = -d
		}
		if ls.edge[n] && ls.phi[n] < 0 {
			ls.phi[n] = 0
		}
	}

	ls.moved = 0
	ls.logger.Debug("signed distance reinitialized", zap.Int("segments", len(segments)))
}

// distToSegment returns the distance from p to segment s.
func distToSegment(p r2.Vec, s Segment) float64 {
	ab := r2.Vec{X: s.B.X - s.A.X, Y: s.B.Y - s.A.Y}
	ap := r2.Vec{X: p.X - s.A.X, Y: p.Y - s.A.Y}
	len2 := ab.X*ab.X + ab.Y*ab.Y
	t := 0.0
	if len2 > 0 {
		t = (ap.X*ab.X + ap.Y*ab.Y) / len2
		t = math.Max(0, math.Min(1, t))
	}
	return math.Hypot(p.X-(s.A.X+t*ab.X), p.Y-(s.A.Y+t*ab.Y))
}

// Phi returns the signed-distance values, one per node, row-major from the
// bottom-left corner. The slice is owned by the level set.
func (ls *LevelSet) Phi() []float64 { return ls.phi }

// GridSize returns the node grid dimensions.
func (ls *LevelSet) GridSize() (nx, ny int) { return ls.nx, ls.ny }

// Segments returns the zero-contour segments of the latest discretization.
func (ls *LevelSet) Segments() []Segment { return ls.segments }

// Fractions returns the element area fractions of the latest
// ComputeAreaFractions call. The slice is owned by the level set.
func (ls *LevelSet) Fractions() []float64 { return ls.fractions }

// Area returns the structural area from the latest boundary integration.
func (ls *LevelSet) Area() float64 { return ls.area }
