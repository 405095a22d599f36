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

	"github.com/spf13/cobra"

	"github.com/giygas/prescriptions-web/apiclient"
	"github.com/giygas/prescriptions-web/config"
	"github.com/giygas/prescriptions-web/handlers"
	"github.com/giygas/prescriptions-web/health"
	"github.com/giygas/prescriptions-web/logging"
	"github.com/giygas/prescriptions-web/scheduler"
	"github.com/giygas/prescriptions-web/server"
	"github.com/giygas/prescriptions-web/session"
	"github.com/giygas/prescriptions-web/views"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "prescriptions-web",
		Short: "Web front end for managing medical prescriptions",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnvFile(envFile)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to an optional .env file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log at info level in the test environment")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that the prescriptions API answers, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			client, err := apiclient.New(cfg.APIURL)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), health.ProbeTimeout)
			defer cancel()
			if err := client.Ping(ctx); err != nil {
				return fmt.Errorf("%s unreachable: %w", cfg.APIURL, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is reachable\n", cfg.APIURL)
			return nil
		},
	}
}

func runServe(verbose bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logSvc := logging.Init(logging.Options{
		Dir:            cfg.LogDir,
		Env:            cfg.Env,
		Level:          cfg.LogLevel,
		Verbose:        verbose,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})
	defer func() {
		if err := logSvc.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "closing log file:", err)
		}
	}()

	client, err := apiclient.New(cfg.APIURL)
	if err != nil {
		return fmt.Errorf("creating API client: %w", err)
	}
	backend := views.Backend{
		Patients:      client.Patients,
		Medications:   client.Medications,
		Prescriptions: client.Prescriptions,
	}

	intervals := scheduler.DefaultIntervals()
	checker := health.NewHealthChecker(client, 3*intervals.Probe)

	h, err := handlers.New(backend, checker)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}
	sessions := session.NewStore(backend, time.Duration(cfg.SessionIdleMinutes)*time.Minute)
	limiter := server.NewRateLimiter(cfg.RateLimitRate, cfg.RateLimitCapacity)

	sched := scheduler.NewScheduler(checker, sessions, limiter, intervals)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	srv := server.NewServer(cfg, h, sessions, limiter)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		logging.Error("Server failed", "error", err)
		return err
	case sig := <-quit:
		logging.Info("Received shutdown signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
