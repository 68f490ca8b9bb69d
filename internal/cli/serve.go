package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"

	"otto/internal/api"
)

// listenAndServe is a test seam for running the HTTP server.
var listenAndServe = func(srv *http.Server) error { return srv.ListenAndServe() }

func runServe(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}
		fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		configPath := fs.String("config", defaultConfigPath, "Path to otto.yml")
		addr := fs.String("addr", "127.0.0.1:7700", "Address to listen on")
		plansPath := fs.String("plans", "", "Planner transcript, one response per line")
		noColor := fs.Bool("no-color", false, "Disable color output")
		if err := fs.Parse(args); err != nil {
			return ExitUsage
		}
		if *addr == "" {
			fmt.Fprintln(stderr, "Missing --addr")
			return ExitUsage
		}

		logger := newLogger(stderr, *noColor)
		cfg, err := loadConfig(*configPath)
		if err != nil {
			logger.Error("load config", "err", err)
			return ExitError
		}
		provider, err := loadPlans(*plansPath)
		if err != nil {
			logger.Error("load plans", "err", err)
			return ExitError
		}
		eng, cleanup, err := buildEngine(cfg, provider)
		if err != nil {
			logger.Error("wire engine", "err", err)
			return ExitError
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if removed, err := eng.CleanupOrphans(ctx); err == nil && len(removed) > 0 {
			logger.Info("removed orphan sessions", "count", len(removed))
		}

		srv := &http.Server{
			Addr:    *addr,
			Handler: api.NewHandler(api.Config{Controller: eng, Background: func() context.Context { return ctx }}),
		}
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()

		logger.Info("serving run API", "addr", *addr)
		if err := listenAndServe(srv); err != nil && err != http.ErrServerClosed {
			logger.Error("server", "err", err)
			return ExitError
		}
		return ExitOK
	}
}
