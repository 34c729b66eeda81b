// Package config reads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/ironsheep/roi-editor-mcp/internal/imaging"
	"github.com/ironsheep/roi-editor-mcp/internal/regions"
)

// Environment variable names.
const (
	EnvLogLevel     = "ROI_MCP_LOG_LEVEL"
	EnvLogFormat    = "ROI_MCP_LOG_FORMAT"
	EnvOutlierSigma = "ROI_MCP_OUTLIER_SIGMA"
	EnvMarkerSize   = "ROI_MCP_MARKER_SIZE"
)

// Config holds the server settings.
type Config struct {
	LogLevel     string
	LogFormat    string
	OutlierSigma float64
	MarkerSize   int
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		LogLevel:     "info",
		LogFormat:    "text",
		OutlierSigma: regions.DefaultSigma,
		MarkerSize:   imaging.DefaultMarkerSize,
	}
}

// Load reads an optional .env from the working directory, then the
// environment. Variables already set in the environment take precedence
// over the file.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from a variable lookup function.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		cfg.LogFormat = v
	}
	if v, ok := lookup(EnvOutlierSigma); ok && v != "" {
		sigma, err := strconv.ParseFloat(v, 64)
		if err != nil || sigma <= 0 {
			return cfg, fmt.Errorf("%s must be a positive number, got %q", EnvOutlierSigma, v)
		}
		cfg.OutlierSigma = sigma
	}
	if v, ok := lookup(EnvMarkerSize); ok && v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return cfg, fmt.Errorf("%s must be a positive integer, got %q", EnvMarkerSize, v)
		}
		cfg.MarkerSize = size
	}
	return cfg, nil
}
