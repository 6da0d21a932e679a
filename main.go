// daybook - a terminal companion for planning days, tracking tasks, and
// chatting with a local model about your notes.
//
// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/daybookhq/daybook-tui/internal/backend"
	"github.com/daybookhq/daybook-tui/internal/cli"
	"github.com/daybookhq/daybook-tui/internal/config"
	"github.com/daybookhq/daybook-tui/internal/server"
	"github.com/daybookhq/daybook-tui/internal/transport"
	"github.com/daybookhq/daybook-tui/internal/ui"
)

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	case cli.CmdServe:
		fatalOn(runServe())
	case cli.CmdAsk:
		fatalOn(runAsk(args))
	case cli.CmdChat:
		fatalOn(runChat())
	default:
		fatalOn(runTUI())
	}
}

func fatalOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newBackend builds the backend for the configured mode: in-process SQLite
// plus provider for "local", HTTP client to a daemon for "remote".
func newBackend(cfg *config.Config) (transport.Backend, func(), error) {
	if strings.EqualFold(cfg.Mode, "remote") {
		client := transport.NewClientWithConfig(&transport.ClientConfig{
			BaseURL: cfg.Daemon.URL,
			Timeout: cfg.DaemonTimeout(),
		})
		return client, func() {}, nil
	}

	local, store, err := newLocal(cfg)
	if err != nil {
		return nil, nil, err
	}
	return local, func() { store.Close() }, nil
}

func newLocal(cfg *config.Config) (*backend.Local, *backend.Store, error) {
	if err := config.EnsureDir(); err != nil {
		return nil, nil, err
	}
	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, nil, err
	}
	store, err := backend.OpenStore(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	provider := backend.NewProvider(&backend.ProviderConfig{
		Name:    cfg.Provider.Name,
		BaseURL: cfg.Provider.URL,
		Timeout: cfg.ProviderTimeout(),
	})
	return backend.NewLocal(store, provider), store, nil
}

func runTUI() error {
	b, closeBackend, err := newBackend(config.Global())
	if err != nil {
		return err
	}
	defer closeBackend()
	return ui.Run(b)
}

func runAsk(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: daybook ask <question>")
	}
	b, closeBackend, err := newBackend(config.Global())
	if err != nil {
		return err
	}
	defer closeBackend()
	return cli.HandleAsk(context.Background(), b, strings.Join(args, " "))
}

func runChat() error {
	b, closeBackend, err := newBackend(config.Global())
	if err != nil {
		return err
	}
	defer closeBackend()
	return cli.RunChat(context.Background(), b)
}

// runServe runs the daemon until interrupted, reloading limits from the
// config file as it changes.
func runServe() error {
	cfg := config.Global()
	local, store, err := newLocal(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	limiter := server.NewRateLimiter(cfg.Daemon.RequestsPerSecond, int(cfg.Daemon.RequestsPerSecond)*2)
	srv := server.New(local, &server.Config{
		Host:        cfg.Daemon.Host,
		Port:        cfg.Daemon.Port,
		RateLimiter: limiter,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config edits take effect on the next daemon restart, but surface a
	// note so operators aren't surprised.
	if path, err := config.Path(); err == nil {
		if watcher, err := config.Watch(path, func(next *config.Config) {
			config.SetGlobal(next)
			fmt.Fprintln(os.Stderr, "config reloaded; listen address changes apply on restart")
		}); err == nil {
			defer watcher.Close()
		}
	}

	return srv.ListenAndServe(ctx)
}
