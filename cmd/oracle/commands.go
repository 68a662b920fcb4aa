package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/balidesk/oracle/pkg/ingest"
	"github.com/balidesk/oracle/pkg/server"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int `help:"Listen port (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	var ratings server.RatingStore
	var documents server.DocumentReader
	if app.db != nil {
		ratings = app.db
		documents = app.db
	}
	srv := server.New(server.Config{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, app.orch, app.ingestor, ratings, documents)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// IngestCmd ingests files from the command line.
type IngestCmd struct {
	Paths []string `arg:"" help:"Files to ingest." type:"existingfile"`

	Collection string `help:"Force the target collection."`
	Tier       string `help:"Force the access tier (S, A, B, C, D)."`
	Title      string `help:"Override the document title (single file only)."`
}

func (c *IngestCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	if app.ingestor == nil {
		return fmt.Errorf("ingestion requires both DATABASE_URL and a reachable vector store")
	}

	opts := &ingest.Options{Collection: c.Collection, TierOverride: c.Tier}
	if len(c.Paths) == 1 {
		opts.Title = c.Title
	}

	results := app.ingestor.IngestBatch(ctx, c.Paths, opts)
	failed := 0
	for _, res := range results {
		status := "ok"
		if !res.Success {
			status = "failed"
			failed++
		} else if res.Skipped {
			status = "skipped"
		}
		fmt.Printf("%-8s %-40s %4d chunks  %s\n", status, res.Title, res.ChunksCreated, res.Message)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

// WatchCmd watches a directory and ingests dropped files.
type WatchCmd struct {
	Dir string `help:"Directory to watch (overrides config)." type:"existingdir"`
}

func (c *WatchCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	dir := c.Dir
	if dir == "" {
		dir = cfg.Ingest.WatchDir
	}
	if dir == "" {
		return fmt.Errorf("no watch directory: pass --dir or set ingest.watch_dir")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	if app.ingestor == nil {
		return fmt.Errorf("ingestion requires both DATABASE_URL and a reachable vector store")
	}

	watcher, err := ingest.NewWatcher(app.ingestor, dir, nil)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// ValidateCmd checks the configuration and backend connectivity.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: INVALID: %v\n", err)
		return err
	}
	fmt.Println("config: ok")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	if app.db != nil {
		if err := app.db.Ping(ctx); err != nil {
			fmt.Printf("database: unreachable (%v)\n", err)
		} else {
			fmt.Println("database: ok")
		}
	} else {
		fmt.Println("database: not configured")
	}

	if app.vectors != nil {
		fmt.Println("vector store: configured")
	} else {
		fmt.Println("vector store: not configured")
	}

	if app.ladder != nil {
		fmt.Printf("llm: ok (starting tier %s)\n", app.ladder.Current())
	} else {
		fmt.Println("llm: no providers configured")
	}

	fmt.Printf("embedder: %s (%s, dim %d)\n", app.embed.Provider(), app.embed.Model(), app.embed.Dimension())
	return nil
}
