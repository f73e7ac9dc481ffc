// Package cmd provides the shared entrypoint plumbing for gmassist binaries.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ehallam/gmassist/internal/platform/config"
	"github.com/ehallam/gmassist/internal/platform/otel"
)

const defaultOTelShutdownTimeout = 5 * time.Second

// Process identifiers used for startup telemetry and log prefixes.
const (
	ProcessController = "controller"
	ProcessPlayer     = "player"
)

// ParseConfig loads environment defaults into cfg.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses command-line flags.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// RunWithTelemetry configures observability and executes a process run loop.
func RunWithTelemetry(ctx context.Context, process string, run func(context.Context) error) error {
	process = strings.TrimSpace(process)
	if process == "" {
		return fmt.Errorf("process name is required")
	}
	if run == nil {
		return fmt.Errorf("run function is required")
	}
	shutdown, err := otel.Setup(ctx, "gmassist-"+process)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultOTelShutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("%s otel shutdown: %v", process, err)
		}
	}()
	return run(ctx)
}
