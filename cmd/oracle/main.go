// Command oracle runs the knowledge backend.
//
// Usage:
//
//	oracle serve --config config.yaml
//	oracle ingest docs/uu-6-2011.pdf --collection legal_architect
//	oracle watch --dir ./dropbox
//	oracle validate --config config.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/balidesk/oracle/pkg/config"
)

const version = "0.9.0"

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP server."`
	Ingest   IngestCmd   `cmd:"" help:"Ingest document files."`
	Watch    WatchCmd    `cmd:"" help:"Watch a directory and ingest dropped files."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration and connectivity."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config   string `short:"c" help:"Path to config file." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	fmt.Printf("oracle %s\n", version)
	return nil
}

func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func loadConfig(cli *CLI) (*config.Config, error) {
	if err := config.LoadEnvFiles(); err != nil {
		slog.Warn("Failed to load env files", "error", err)
	}
	return config.Load(cli.Config)
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("oracle"),
		kong.Description("Retrieval-augmented knowledge backend for Indonesian legal, tax, visa and business questions."),
		kong.UsageOnError(),
	)

	setupLogging(cli.LogLevel)

	if err := ctx.Run(cli); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
