package main

import (
	"fmt"
	"os"

	"github.com/ironsheep/roi-editor-mcp/internal/config"
	"github.com/ironsheep/roi-editor-mcp/internal/logger"
	"github.com/ironsheep/roi-editor-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("roi-editor-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("roi-editor-mcp - MCP server for curating segmented cell ROIs")
			fmt.Println()
			fmt.Println("Usage: roi-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables (a .env file in the working directory is also read):")
			fmt.Printf("  %s=debug       Log level: debug, info, warn, error\n", config.EnvLogLevel)
			fmt.Printf("  %s=text       Log format: text or json\n", config.EnvLogFormat)
			fmt.Printf("  %s=2       Outlier band width in standard deviations\n", config.EnvOutlierSigma)
			fmt.Printf("  %s=10       Preview marker diameter in pixels\n", config.EnvMarkerSize)
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
			return
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	// Logging goes to stderr (stdout is for MCP protocol)
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Debug("starting ROI editor MCP server",
		"version", Version,
		"build_time", BuildTime,
		"commit", GitCommit,
	)

	server.Version = Version
	srv := server.New(cfg, log)
	if err := srv.Run(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
