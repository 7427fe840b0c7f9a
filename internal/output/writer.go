// Package output writes the run-scoped results tree: the tab-separated
// iteration history, legacy-VTK snapshots of the signed-distance field and
// area fractions, and per-iteration boundary segment files.
package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/copyleftdev/STRUT/internal/lsm"
	"github.com/copyleftdev/STRUT/internal/optimization"
)

// Writer persists iteration records and geometry snapshots under a results
// directory. It implements optimization.Sink.
type Writer struct {
	dir     string
	ls      *lsm.LevelSet
	history *os.File
	console bool
	logger  *zap.Logger
}

// NewWriter prepares the results tree under dir: subdirectories are created,
// stale text and VTK files from earlier runs removed, and the history file
// opened with its header. When console is true each record is also printed
// as a table row on stdout. A nil logger discards log output.
func NewWriter(dir string, ls *lsm.LevelSet, console bool, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, sub := range []string{"history", "level_set", "area_fractions", "boundary_segments"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("output: creating %s: %w", sub, err)
		}
	}
	if err := removeStale(dir); err != nil {
		return nil, err
	}

	historyPath := filepath.Join(dir, "history", "history.txt")
	f, err := os.OpenFile(historyPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("output: opening history: %w", err)
	}
	if _, err := f.WriteString("Iteration\tStress\tTvm_max\tArea\tChange\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("output: writing history header: %w", err)
	}

	return &Writer{
		dir:     dir,
		ls:      ls,
		history: f,
		console: console,
		logger:  logger.Named("output"),
	}, nil
}

// removeStale deletes text and VTK leftovers from earlier runs.
func removeStale(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if strings.HasSuffix(path, ".txt") || strings.HasSuffix(path, ".vtk") {
			return os.Remove(path)
		}
		return nil
	})
}

// Start implements optimization.Sink. The initial geometry is written as
// iteration zero and the console table header printed.
func (w *Writer) Start(info optimization.RunInfo) error {
	if w.console {
		fmt.Println("\nStarting stress minimization...")
		fmt.Println("---------------------------------------------")
		fmt.Printf("%9s %12s %10s %10s\n", "Iteration", "Objective", "Tvm_max", "Area")
		fmt.Println("---------------------------------------------")
	}
	return w.Snapshot(0)
}

// Record implements optimization.Sink: one tab-separated line per iteration,
// 16 significant digits.
func (w *Writer) Record(rec optimization.IterationRecord) error {
	if w.console {
		fmt.Printf("%9d %12.4f %10.4f %10.4f\n",
			rec.Iteration, rec.Objective, rec.MaxStress, rec.AreaFraction)
	}

	_, err := fmt.Fprintf(w.history, "%d\t%.16g\t%.16g\t%.16g\t%.16g\n",
		rec.Iteration, rec.Objective, rec.MaxStress, rec.AreaFraction, rec.RelativeChange)
	if err != nil {
		return fmt.Errorf("output: appending history record: %w", err)
	}
	return nil
}

// Snapshot implements optimization.Sink: iteration-indexed VTK files for the
// signed-distance field and the area fractions, plus the boundary segments
// as plain text.
func (w *Writer) Snapshot(iteration int) error {
	if err := w.saveLevelSetVTK(iteration); err != nil {
		return err
	}
	if err := w.saveAreaFractionsVTK(iteration); err != nil {
		return err
	}
	return w.saveBoundarySegments(iteration)
}

// Finish implements optimization.Sink.
func (w *Writer) Finish(summary optimization.RunSummary) error {
	if w.console {
		fmt.Println("\nProgram complete.")
	}
	w.logger.Info("results written",
		zap.String("dir", w.dir),
		zap.Int("iterations", summary.Iterations),
	)
	return w.history.Close()
}

// saveLevelSetVTK writes the signed-distance field as legacy-VTK structured
// points with one scalar per node.
func (w *Writer) saveLevelSetVTK(iteration int) error {
	nx, ny := w.ls.GridSize()
	path := filepath.Join(w.dir, "level_set", fmt.Sprintf("level_set_%d.vtk", iteration))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: creating %s: %w", path, err)
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	fmt.Fprintf(buf, "# vtk DataFile Version 3.0\nlevel_set\nASCII\n")
	fmt.Fprintf(buf, "DATASET STRUCTURED_POINTS\n")
	fmt.Fprintf(buf, "DIMENSIONS %d %d 1\n", nx, ny)
	fmt.Fprintf(buf, "ORIGIN 0 0 0\nSPACING 1 1 1\n")
	fmt.Fprintf(buf, "POINT_DATA %d\n", nx*ny)
	fmt.Fprintf(buf, "SCALARS phi double 1\nLOOKUP_TABLE default\n")
	for _, v := range w.ls.Phi() {
		fmt.Fprintf(buf, "%.16g\n", v)
	}
	return buf.Flush()
}

// saveAreaFractionsVTK writes the element area fractions as legacy-VTK
// structured points cell data.
func (w *Writer) saveAreaFractionsVTK(iteration int) error {
	nx, ny := w.ls.GridSize()
	path := filepath.Join(w.dir, "area_fractions", fmt.Sprintf("area_fractions_%d.vtk", iteration))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: creating %s: %w", path, err)
	}
	defer f.Close()

	fractions := w.ls.Fractions()

	buf := bufio.NewWriter(f)
	fmt.Fprintf(buf, "# vtk DataFile Version 3.0\narea_fractions\nASCII\n")
	fmt.Fprintf(buf, "DATASET STRUCTURED_POINTS\n")
	fmt.Fprintf(buf, "DIMENSIONS %d %d 1\n", nx, ny)
	fmt.Fprintf(buf, "ORIGIN 0 0 0\nSPACING 1 1 1\n")
	fmt.Fprintf(buf, "CELL_DATA %d\n", (nx-1)*(ny-1))
	fmt.Fprintf(buf, "SCALARS area_fraction double 1\nLOOKUP_TABLE default\n")
	if fractions == nil {
		for i := 0; i < (nx-1)*(ny-1); i++ {
			fmt.Fprintf(buf, "0\n")
		}
	} else {
		for _, v := range fractions {
			fmt.Fprintf(buf, "%.16g\n", v)
		}
	}
	return buf.Flush()
}

// saveBoundarySegments writes the latest contour segments, one "x1 y1 x2 y2"
// line per segment.
func (w *Writer) saveBoundarySegments(iteration int) error {
	path := filepath.Join(w.dir, "boundary_segments", fmt.Sprintf("boundary_segments_%d.txt", iteration))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: creating %s: %w", path, err)
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	for _, s := range w.ls.Segments() {
		fmt.Fprintf(buf, "%.16g %.16g %.16g %.16g\n", s.A.X, s.A.Y, s.B.X, s.B.Y)
	}
	return buf.Flush()
}
