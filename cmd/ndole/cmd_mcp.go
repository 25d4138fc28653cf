package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/ndole/internal/app"
	"github.com/felixgeelhaar/ndole/internal/config"
	mcpserver "github.com/felixgeelhaar/ndole/internal/mcp"
)

// cmdMCP starts the MCP server on stdio against the configured store
func cmdMCP() error {
	ndoleDir, err := config.EnsureNdoleDir()
	if err != nil {
		return fmt.Errorf("setup ndole directory: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// stdout carries the MCP protocol, keep logs off it
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	a, err := app.Build(ctx, cfg, ndoleDir, app.Options{})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer a.Close()

	mcpSrv := mcpserver.NewServer(mcpserver.Config{
		Service: a.Service,
		Catalog: a.Catalog,
		Version: Version,
	})

	return mcpSrv.ServeStdio(ctx)
}
