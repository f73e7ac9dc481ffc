// Package main starts the player surface process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	playercmd "github.com/ehallam/gmassist/internal/cmd/player"
)

func main() {
	cfg, err := playercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("invalid invocation: %v", err)
		os.Exit(2)
	}
	log.SetPrefix("[PLAYER] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := playercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to run: %v", err)
	}
}
