// Command taskmasterd is the supervisor daemon (spec §1, §4): it loads a
// YAML policy file, autostarts the programs it names, serves a read-only
// status dashboard, and offers an interactive control shell on stdin.
// Grounded on the teacher's cmd/provisr main.go (cobra root command,
// --config flag, PersistentPreRun metrics wiring), reworked from a
// one-shot CLI around a shared manager into a single long-running daemon
// command, since the supervision core itself is the long-running process
// here rather than a library driven by repeated CLI invocations.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/arcbound/taskmaster/internal/config"
	"github.com/arcbound/taskmaster/internal/logging"
	"github.com/arcbound/taskmaster/internal/metrics"
	"github.com/arcbound/taskmaster/internal/policy"
	"github.com/arcbound/taskmaster/internal/shell"
	"github.com/arcbound/taskmaster/internal/statusapi"
	"github.com/arcbound/taskmaster/internal/supervisor"
)

// runtimeError marks an error as having occurred after startup completed,
// so main can report exit code 2 rather than 1 (spec §6).
type runtimeError struct{ err error }

func (r runtimeError) Error() string { return r.err.Error() }
func (r runtimeError) Unwrap() error { return r.err }

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "taskmasterd",
		Short: "taskmasterd supervises a set of programs defined in a YAML config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Flags().StringVar(&configPath, "config", "", "path to the YAML policy file (required)")
	_ = root.MarkFlagRequired("config")

	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		var rerr runtimeError
		if errors.As(err, &rerr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := logging.New(logging.Config{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
		Level:      cfg.Log.LogLevel(),
		Color:      cfg.Log.Color,
	})

	programs := make([]policy.Program, 0, len(cfg.Programs))
	for _, in := range cfg.Programs {
		p, err := policy.Build(in)
		if err != nil {
			return fmt.Errorf("policy: %w", err)
		}
		programs = append(programs, p)
	}

	mgr := supervisor.NewManager(programs, logger)
	mon := supervisor.NewMonitor(mgr, supervisor.DefaultTick)
	go mon.Run()

	mgr.AutostartAll()

	if cfg.Server.Listen != "" {
		srv := statusapi.NewServer(cfg.Server.Listen, mgr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("status api exited", "err", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			logger.Error("metrics registration failed", "err", err)
		} else {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			msrv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := msrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("metrics server exited", "err", err)
				}
			}()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = msrv.Shutdown(ctx)
			}()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	shellDone := make(chan struct{})
	go func() {
		shell.New(mgr, os.Stdin, os.Stdout).Run()
		close(shellDone)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-shellDone:
		logger.Info("shell exited, shutting down")
	}

	// The Monitor must still be running for Shutdown to observe: it owns the
	// STOPPING->STOPPED reap and the SIGKILL escalation at the stop deadline
	// (monitor.go's tick loop). Stopping it first would leave Shutdown
	// spinning on allTerminal until its own timeout fires.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	shutdownErr := mgr.Shutdown(ctx)

	mon.Stop()
	mon.Wait()

	if shutdownErr != nil {
		logger.Error("shutdown incomplete", "err", shutdownErr)
		return runtimeError{shutdownErr}
	}
	return nil
}
