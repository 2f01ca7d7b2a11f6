// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/slate-server/main.go
// Summary: Entry point for the slate whiteboard server.
// Usage: DATABASE_URL=postgres://... slate-server [-verbose-logs]
// Notes: Configuration is environment-first; flags only toggle diagnostics.

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"slate/config"
	"slate/internal/runtime/server"
	"slate/internal/store"
)

const shutdownGrace = 5 * time.Second

func main() {
	verbose := flag.Bool("verbose-logs", false, "enable verbose server logging")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("slate-server: %v", err)
	}
	if *verbose || cfg.VerboseLogs {
		server.SetVerboseLogging(true)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("slate-server: %v", err)
	}
	defer st.Close()

	srv := server.NewServer(cfg, st)
	srv.SetObservers(
		server.NewSequenceLogger(log.Default()),
		server.NewCompactionLogger(log.Default()),
	)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	g, _ := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		select {
		case sig := <-signals:
			log.Printf("slate-server: received %s, shutting down", sig)
		case <-ctx.Done():
		}
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer stopCancel()
		return srv.Stop(stopCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("slate-server: %v", err)
	}
	log.Println("slate-server: stopped")
}
