// Package controller parses controller command flags and launches the GM
// controller runtime: the display state coordinator, the player surface
// supervisor, and the localhost control API.
package controller

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ehallam/gmassist/internal/controller"
	"github.com/ehallam/gmassist/internal/display"
	"github.com/ehallam/gmassist/internal/library"
	librarysqlite "github.com/ehallam/gmassist/internal/library/sqlite"
	entrypoint "github.com/ehallam/gmassist/internal/platform/cmd"
	"github.com/ehallam/gmassist/internal/platform/notify"
	"github.com/ehallam/gmassist/internal/storage"
	"github.com/ehallam/gmassist/internal/storage/bbolt"
)

// Config holds controller command configuration.
type Config struct {
	DataDir       string        `env:"GMASSIST_DATA_DIR" envDefault:"data"`
	Profile       string        `env:"GMASSIST_PROFILE" envDefault:"default"`
	SnapshotDB    string        `env:"GMASSIST_SNAPSHOT_DB"`
	LibraryDB     string        `env:"GMASSIST_LIBRARY_DB"`
	APIAddr       string        `env:"GMASSIST_API_ADDR" envDefault:"127.0.0.1:7373"`
	PlayerBin     string        `env:"GMASSIST_PLAYER_BIN"`
	SocketDir     string        `env:"GMASSIST_SOCKET_DIR"`
	LaunchTimeout time.Duration `env:"GMASSIST_LAUNCH_TIMEOUT" envDefault:"10s"`
	SaveInterval  time.Duration `env:"GMASSIST_SAVE_INTERVAL" envDefault:"250ms"`
	AutoOpen      bool          `env:"GMASSIST_AUTO_OPEN" envDefault:"true"`
	Headless      bool          `env:"GMASSIST_HEADLESS"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory holding snapshot and library databases")
	fs.StringVar(&cfg.Profile, "profile", cfg.Profile, "Display snapshot profile name")
	fs.StringVar(&cfg.APIAddr, "api-addr", cfg.APIAddr, "Localhost control API listen address")
	fs.StringVar(&cfg.PlayerBin, "player-bin", cfg.PlayerBin, "Player surface binary path")
	fs.DurationVar(&cfg.LaunchTimeout, "launch-timeout", cfg.LaunchTimeout, "Bounded wait for the player surface ready signal")
	fs.BoolVar(&cfg.AutoOpen, "auto-open", cfg.AutoOpen, "Launch the player surface on startup")
	fs.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Log warnings instead of desktop notifications")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.SnapshotDB == "" {
		cfg.SnapshotDB = filepath.Join(cfg.DataDir, "display.db")
	}
	if cfg.LibraryDB == "" {
		cfg.LibraryDB = filepath.Join(cfg.DataDir, "library.db")
	}
	return cfg, nil
}

// Run starts the controller runtime and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ProcessController, func(ctx context.Context) error {
		return run(ctx, cfg)
	})
}

func run(ctx context.Context, cfg Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	var notifier notify.Notifier = notify.Desktop{}
	if cfg.Headless {
		notifier = notify.Log{}
	}

	store, err := bbolt.Open(cfg.SnapshotDB)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer store.Close()

	state, lastSeq, err := store.LoadSnapshot(ctx, cfg.Profile)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		state = display.DefaultState()
	case err != nil:
		// A broken snapshot must not keep the session from starting.
		notifier.Warn(fmt.Sprintf("Could not load saved display state: %v", err))
		state = display.DefaultState()
	}

	saves := storage.NewSaveQueue(store, cfg.Profile,
		storage.WithLastSeq(lastSeq),
		storage.WithSaveInterval(cfg.SaveInterval),
		storage.WithWarn(func(err error) {
			notifier.Warn(fmt.Sprintf("Could not save display state: %v", err))
		}),
	)

	co := controller.NewCoordinator(state, saves, notifier)
	sup := controller.NewSupervisor(
		controller.ExecLauncher{BinPath: cfg.PlayerBin},
		controller.Events{
			Ready:        co.HandleSurfaceReady,
			Disconnected: co.HandleSurfaceDisconnected,
			LaunchFailed: co.HandleLaunchFailed,
		},
		controller.WithSocketDir(cfg.SocketDir),
		controller.WithLaunchTimeout(cfg.LaunchTimeout),
	)
	co.SetSurface(sup)

	var lib library.Store
	if libStore, err := librarysqlite.Open(cfg.LibraryDB); err != nil {
		// The library is a convenience; the session works from raw paths.
		notifier.Warn(fmt.Sprintf("Could not open image library: %v", err))
	} else {
		lib = libStore
		defer libStore.Close()
	}

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           controller.NewAPI(co, lib),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("control api listening on %s", cfg.APIAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	if cfg.AutoOpen {
		if err := co.OpenPlayer(ctx); err != nil {
			notifier.Warn(fmt.Sprintf("Player window failed to start: %v", err))
		}
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if err := co.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	return serveErr
}
