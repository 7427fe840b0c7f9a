package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/copyleftdev/STRUT/internal/config"
	"github.com/copyleftdev/STRUT/internal/fea"
	"github.com/copyleftdev/STRUT/internal/logging"
	"github.com/copyleftdev/STRUT/internal/lsm"
	"github.com/copyleftdev/STRUT/internal/optimization"
	"github.com/copyleftdev/STRUT/internal/optimization/levelset"
	"github.com/copyleftdev/STRUT/internal/output"
	"github.com/copyleftdev/STRUT/internal/server"
	"github.com/copyleftdev/STRUT/internal/store"
	"github.com/copyleftdev/STRUT/internal/study"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use standard logger as fallback if config loading fails
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize base logger
	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Create a service logger with additional fields
	serviceLogger := logger.WithFields(map[string]interface{}{
		"service": "strut-optimizer",
		"version": "1.0.0",
	})

	// The numerical packages log through zap against the same backend
	zapLogger := logging.NewZapLogger(serviceLogger)

	// Load the study definition
	var st *study.Study
	if cfg.Study.File != "" {
		st, err = study.LoadFile(cfg.Study.File)
		if err != nil {
			serviceLogger.Fatal("Failed to load study", map[string]interface{}{
				"file":  cfg.Study.File,
				"error": err.Error(),
			})
		}
	} else {
		st = study.LBeam()
	}

	serviceLogger.Info("Study loaded", map[string]interface{}{
		"study":    st.Name,
		"grid":     fmt.Sprintf("%dx%d", st.NelX, st.NelY),
		"max_area": st.MaxAreaFraction,
	})

	// Finite-element engine: mesh, supports, loads, sensitivities
	mesh := fea.NewMesh(st.NelX, st.NelY)
	solver := fea.NewSolver(mesh, fea.Material{Young: st.Young, Poisson: st.Poisson}, zapLogger)
	for _, sup := range st.Supports {
		if n := solver.FixNodes(sup.Coord, sup.Tol); n == 0 {
			serviceLogger.Fatal("Support selects no nodes", map[string]interface{}{
				"coord": fmt.Sprintf("(%g, %g)", sup.Coord.X, sup.Coord.Y),
			})
		}
	}
	for _, load := range st.Loads {
		if n := solver.AddPointLoad(load.Coord, load.Tol, load.FX, load.FY); n == 0 {
			serviceLogger.Fatal("Load selects no nodes", map[string]interface{}{
				"coord": fmt.Sprintf("(%g, %g)", load.Coord.X, load.Coord.Y),
			})
		}
	}
	sens := fea.NewSensitivity(solver, zapLogger)

	// Level-set geometry engine: initial design, design-domain regions
	holes := make([]lsm.Hole, len(st.Holes))
	for i, h := range st.Holes {
		holes[i] = lsm.Hole{X: h.X, Y: h.Y, R: h.R}
	}
	ls := lsm.NewLevelSet(st.NelX, st.NelY, holes, st.BandWidth, zapLogger)
	for _, r := range st.KillRegions {
		ls.KillRegion(lsm.Region{Min: r.Min, Max: r.Max})
	}
	for _, r := range st.BoundaryEdges {
		ls.AddBoundary(lsm.Region{Min: r.Min, Max: r.Max})
	}
	for _, r := range st.FixedRegions {
		ls.FixRegion(lsm.Region{Min: r.Min, Max: r.Max})
	}
	ls.Reinitialize()

	velocity := lsm.NewVelocitySolver(zapLogger)

	// Persistence sinks: results tree, SQLite history, debug server
	writer, err := output.NewWriter(cfg.Output.Dir, ls, true, zapLogger)
	if err != nil {
		serviceLogger.Fatal("Failed to prepare results directory", map[string]interface{}{
			"dir":   cfg.Output.Dir,
			"error": err.Error(),
		})
	}
	sinks := optimization.MultiSink{writer}

	if cfg.Store.Enabled {
		runStore, err := store.Open(cfg.Store.DSN)
		if err != nil {
			serviceLogger.Fatal("Failed to open run store", map[string]interface{}{
				"dsn":   cfg.Store.DSN,
				"error": err.Error(),
			})
		}
		defer runStore.Close()
		sinks = append(sinks, runStore)
	}

	var httpServer *http.Server
	if cfg.Debug.Enabled {
		srv := server.NewServer(serviceLogger)
		sinks = append(sinks, srv)

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		r.Use(logging.Middleware(logger))
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		r.Handle("/metrics", promhttp.Handler())
		srv.RegisterRoutes(r)

		httpServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Debug.Port),
			Handler: r,
		}
		go func() {
			serviceLogger.Info("Starting debug server", map[string]interface{}{
				"address": httpServer.Addr,
			})
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serviceLogger.Error("Debug server failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()
	}

	// Wire the control loop
	loopCfg := levelset.Config{
		MaxIterations:       cfg.Optimization.MaxIterations,
		ConvergenceTol:      cfg.Optimization.ConvergenceTol,
		ConvergenceWindow:   cfg.Optimization.ConvergenceWindow,
		MaxAreaFraction:     st.MaxAreaFraction,
		AreaSlack:           1.001,
		MinAreaFraction:     cfg.Optimization.MinAreaFraction,
		MoveLimit:           cfg.Optimization.MoveLimit,
		TrustRegion:         cfg.Optimization.TrustRegion,
		InterpolationRadius: cfg.Optimization.InterpolationRadius,
		PNorm:               cfg.Optimization.PNorm,
		ReinitSkipLimit:     cfg.Optimization.ReinitSkipLimit,
		NConstraints:        1,
		DomainWidth:         float64(st.NelX),
		DomainHeight:        float64(st.NelY),
		MeshArea:            st.TotalArea(),
	}
	orchestrator := levelset.NewOrchestrator(loopCfg, solver, sens, ls, velocity, sinks, zapLogger)

	info := optimization.RunInfo{
		ID:            uuid.New().String(),
		Study:         st.Name,
		MaxIterations: loopCfg.MaxIterations,
		MaxArea:       loopCfg.MaxAreaFraction,
		Tolerance:     loopCfg.ConvergenceTol,
	}
	if err := sinks.Start(info); err != nil {
		serviceLogger.Fatal("Failed to start run", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// SIGINT/SIGTERM cancel the run between iterations
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := orchestrator.Run(ctx)
	if err != nil {
		serviceLogger.Fatal("Optimization aborted", map[string]interface{}{
			"run_id": info.ID,
			"error":  err.Error(),
		})
	}

	if err := sinks.Finish(optimization.RunSummary{
		Iterations:   result.Iterations,
		Converged:    result.Converged,
		Objective:    result.Objective,
		AreaFraction: result.AreaFraction,
		Elapsed:      result.Elapsed,
	}); err != nil {
		serviceLogger.Error("Failed to finalize run", map[string]interface{}{
			"error": err.Error(),
		})
	}

	serviceLogger.Info("Run complete", map[string]interface{}{
		"run_id":     info.ID,
		"iterations": result.Iterations,
		"converged":  result.Converged,
		"objective":  result.Objective,
	})

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			serviceLogger.Error("Debug server forced to shutdown", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}
