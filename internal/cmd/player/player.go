// Package player parses player command flags and launches the player
// surface runtime.
package player

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/ehallam/gmassist/internal/platform/cmd"
	"github.com/ehallam/gmassist/internal/surface"
)

// Config holds player command configuration.
type Config struct {
	SocketPath string `env:"GMASSIST_PLAYER_SOCKET"`
}

// ParseConfig parses environment and flags into a Config. The socket flag
// is how the controller points a freshly launched surface at its session.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.SocketPath, "socket", cfg.SocketPath, "State channel socket path (required)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the command can run at all.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path is required; the player surface is launched by the controller")
	}
	return nil
}

// Run connects to the controller and renders until the session ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ProcessPlayer, func(ctx context.Context) error {
		session, err := surface.NewSession(cfg.SocketPath)
		if err != nil {
			return fmt.Errorf("connect to controller: %w", err)
		}
		app, err := surface.NewApp(ctx, session)
		if err != nil {
			_ = session.Close()
			return err
		}
		return app.Run()
	})
}
