package study

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"gonum.org/v1/gonum/spatial/r2"
)

// TOML key mapping for study definition files. Every section overrides the
// corresponding part of the built-in L-beam study; absent sections keep the
// defaults.
type fileStudy struct {
	Name            string       `toml:"name"`
	NelX            int          `toml:"nelx"`
	NelY            int          `toml:"nely"`
	Young           float64      `toml:"young"`
	Poisson         float64      `toml:"poisson"`
	MeshArea        float64      `toml:"mesh_area"`
	MaxAreaFraction float64      `toml:"max_area_fraction"`
	BandWidth       float64      `toml:"band_width"`
	Supports        []fileBox    `toml:"supports"`
	Loads           []fileLoad   `toml:"loads"`
	Holes           []fileHole   `toml:"holes"`
	KillRegions     []fileRegion `toml:"kill_regions"`
	BoundaryEdges   []fileRegion `toml:"boundary_edges"`
	FixedRegions    []fileRegion `toml:"fixed_regions"`
}

type fileBox struct {
	Coord []float64 `toml:"coord"`
	Tol   []float64 `toml:"tol"`
}

type fileLoad struct {
	Coord []float64 `toml:"coord"`
	Tol   []float64 `toml:"tol"`
	FX    float64   `toml:"fx"`
	FY    float64   `toml:"fy"`
}

type fileHole struct {
	X float64 `toml:"x"`
	Y float64 `toml:"y"`
	R float64 `toml:"r"`
}

type fileRegion struct {
	Min []float64 `toml:"min"`
	Max []float64 `toml:"max"`
}

// LoadFile reads a TOML study definition, overlaying it on the built-in
// L-beam defaults, and validates the result.
func LoadFile(path string) (*Study, error) {
	s := LBeam()

	var raw fileStudy
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load study %s: %w", path, err)
	}

	if meta.IsDefined("name") {
		s.Name = raw.Name
	}
	if meta.IsDefined("nelx") {
		s.NelX = raw.NelX
	}
	if meta.IsDefined("nely") {
		s.NelY = raw.NelY
	}
	if meta.IsDefined("young") {
		s.Young = raw.Young
	}
	if meta.IsDefined("poisson") {
		s.Poisson = raw.Poisson
	}
	if meta.IsDefined("mesh_area") {
		s.MeshArea = raw.MeshArea
	}
	if meta.IsDefined("max_area_fraction") {
		s.MaxAreaFraction = raw.MaxAreaFraction
	}
	if meta.IsDefined("band_width") {
		s.BandWidth = raw.BandWidth
	}

	if meta.IsDefined("supports") {
		s.Supports = nil
		for i, b := range raw.Supports {
			coord, err := vec(b.Coord, "supports", i, "coord")
			if err != nil {
				return nil, err
			}
			tol, err := vec(b.Tol, "supports", i, "tol")
			if err != nil {
				return nil, err
			}
			s.Supports = append(s.Supports, Support{Coord: coord, Tol: tol})
		}
	}
	if meta.IsDefined("loads") {
		s.Loads = nil
		for i, l := range raw.Loads {
			coord, err := vec(l.Coord, "loads", i, "coord")
			if err != nil {
				return nil, err
			}
			tol, err := vec(l.Tol, "loads", i, "tol")
			if err != nil {
				return nil, err
			}
			s.Loads = append(s.Loads, Load{Coord: coord, Tol: tol, FX: l.FX, FY: l.FY})
		}
	}
	if meta.IsDefined("holes") {
		s.Holes = nil
		for _, h := range raw.Holes {
			s.Holes = append(s.Holes, Hole{X: h.X, Y: h.Y, R: h.R})
		}
	}
	if meta.IsDefined("kill_regions") {
		if s.KillRegions, err = regions(raw.KillRegions, "kill_regions"); err != nil {
			return nil, err
		}
	}
	if meta.IsDefined("boundary_edges") {
		if s.BoundaryEdges, err = regions(raw.BoundaryEdges, "boundary_edges"); err != nil {
			return nil, err
		}
	}
	if meta.IsDefined("fixed_regions") {
		if s.FixedRegions, err = regions(raw.FixedRegions, "fixed_regions"); err != nil {
			return nil, err
		}
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("study %s: %w", path, err)
	}
	return s, nil
}

func vec(v []float64, section string, index int, field string) (r2.Vec, error) {
	if len(v) != 2 {
		return r2.Vec{}, fmt.Errorf("study: %s[%d].%s needs exactly 2 values, got %d", section, index, field, len(v))
	}
	return r2.Vec{X: v[0], Y: v[1]}, nil
}

func regions(raw []fileRegion, section string) ([]Region, error) {
	var out []Region
	for i, r := range raw {
		min, err := vec(r.Min, section, i, "min")
		if err != nil {
			return nil, err
		}
		max, err := vec(r.Max, section, i, "max")
		if err != nil {
			return nil, err
		}
		out = append(out, Region{Min: min, Max: max})
	}
	return out, nil
}

// Validate checks the study for values the engines cannot work with.
func (s *Study) Validate() error {
	if s.NelX < 2 || s.NelY < 2 {
		return fmt.Errorf("study: grid %dx%d is too small", s.NelX, s.NelY)
	}
	if s.Young <= 0 {
		return fmt.Errorf("study: Young's modulus %g must be positive", s.Young)
	}
	if s.Poisson <= -1 || s.Poisson >= 0.5 {
		return fmt.Errorf("study: Poisson's ratio %g outside (-1, 0.5)", s.Poisson)
	}
	if len(s.Supports) == 0 {
		return fmt.Errorf("study: at least one support is required")
	}
	if len(s.Loads) == 0 {
		return fmt.Errorf("study: at least one load is required")
	}
	if s.MaxAreaFraction <= 0 || s.MaxAreaFraction > 1 {
		return fmt.Errorf("study: max area fraction %g outside (0, 1]", s.MaxAreaFraction)
	}
	if s.BandWidth <= 0 {
		return fmt.Errorf("study: band width %g must be positive", s.BandWidth)
	}
	for i, h := range s.Holes {
		if h.R <= 0 {
			return fmt.Errorf("study: hole %d radius %g must be positive", i, h.R)
		}
	}
	return nil
}
