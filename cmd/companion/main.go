// Command companion runs the voice companion with a terminal UI, or in line
// mode when stdin or stdout is not a terminal.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "companion:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("warning: failed to shut down cleanly: %v", err)
		}
	}()

	if err := a.Start(ctx); err != nil {
		return err
	}

	if cfg.APIAddr != "" {
		go func() {
			if err := serveAPI(ctx, cfg.APIAddr, newAPIRouter(ctx, a, a.metrics.Handler())); err != nil {
				log.Printf("warning: control api stopped: %v", err)
			}
		}()
	}

	if cfg.Headless || !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return runHeadless(ctx, a, a.Bus(), os.Stdin, os.Stdout)
	}
	return runTUI(ctx, a, a.Bus())
}
