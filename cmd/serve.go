package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/iamgilwell/procguard/internal/api"
	"github.com/iamgilwell/procguard/internal/config"
	"github.com/iamgilwell/procguard/internal/metrics"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor and the HTTP control API",
	Long: `Runs the process monitor in the foreground and serves the JSON control
API and Prometheus metrics on api.addr. Respawns are watched after every
successful termination.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: api.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Global
	addr := cfg.API.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := newStack(ctx, cfg, stackOptions{watchRespawns: true})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := writePIDFile(cfg.API.PIDFile, os.Getpid()); err != nil {
		return err
	}
	defer os.Remove(cfg.API.PIDFile)

	metrics.EmitBuildInfo()

	router := api.NewRouter(api.Deps{
		Snapshots:  s.monitor,
		Terminator: s.controller,
		Suppressor: s.engine,
		History:    s.historyReader(),
		Logger:     s.notifier,
		Consent:    s.consent,
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.monitor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.notifier.Error(fmt.Sprintf("monitor stopped: %v", err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		s.notifier.Info(fmt.Sprintf("ProcGuard API listening on %s", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.notifier.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func writePIDFile(path string, pid int) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating pid file directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	return nil
}
