package config

import (
	"os"
	"strconv"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	Logging     struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Debug struct {
		Enabled bool `env:"DEBUG_SERVER_ENABLED" envDefault:"false"`
		Port    int  `env:"DEBUG_SERVER_PORT" envDefault:"8080"`
	}
	Output struct {
		Dir string `env:"OUTPUT_DIR" envDefault:"results"`
	}
	Store struct {
		Enabled bool   `env:"STORE_ENABLED" envDefault:"true"`
		DSN     string `env:"STORE_DSN" envDefault:"file:data/strut.db?cache=shared&_fk=1"`
	}
	Study struct {
		// File is an optional TOML study definition; empty keeps the
		// built-in L-beam study.
		File string `env:"STUDY_FILE"`
	}
	Optimization struct {
		MaxIterations       int     `env:"OPT_MAX_ITERATIONS" envDefault:"500"`
		ConvergenceTol      float64 `env:"OPT_CONVERGENCE_TOL" envDefault:"5e-4"`
		ConvergenceWindow   int     `env:"OPT_CONVERGENCE_WINDOW" envDefault:"5"`
		MinAreaFraction     float64 `env:"OPT_MIN_AREA_FRACTION" envDefault:"1e-6"`
		ReinitSkipLimit     int     `env:"OPT_REINIT_SKIP_LIMIT" envDefault:"1"`
		MoveLimit           float64 `env:"OPT_MOVE_LIMIT" envDefault:"0.5"`
		TrustRegion         float64 `env:"OPT_TRUST_REGION" envDefault:"0.15"`
		PNorm               float64 `env:"OPT_P_NORM" envDefault:"6"`
		InterpolationRadius float64 `env:"OPT_INTERPOLATION_RADIUS" envDefault:"2.0"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	// Ensure the data directory exists for the SQLite store
	if cfg.Store.Enabled {
		if err := os.MkdirAll("data", 0755); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// GetEnv returns the value of the environment variable or the default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt returns the value of the environment variable as int or the default value
func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := GetEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// GetEnvAsBool returns the value of the environment variable as bool or the default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	valueStr := GetEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
