package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/cadence/internal/daemon"
	"github.com/zulandar/cadence/internal/executor"
	"github.com/zulandar/cadence/internal/intake"
	"github.com/zulandar/cadence/internal/server"
)

func newSweepCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweep pass and exit",
		Long: `Releases stale claims, sends every due message (up to the batch size), and
marks overdue bookings as no-shows. Safe to run from an external cron while
other sweeps are in flight.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runSweep(cmd *cobra.Command, configPath string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	a, err := buildApp(cfg, gormDB)
	if err != nil {
		return err
	}
	defer a.Close()

	report, marked, err := a.executor.Tick(context.Background())
	if err != nil {
		return err
	}
	printReport(cmd, report, marked)
	return nil
}

func printReport(cmd *cobra.Command, report *executor.Report, marked int) {
	out := cmd.OutOrStdout()
	if report.Released > 0 {
		fmt.Fprintf(out, "Released %d stale claim(s)\n", report.Released)
	}
	if len(report.Results) == 0 {
		fmt.Fprintln(out, "No jobs due.")
	} else {
		summary := report.Summary()
		statuses := make([]string, 0, len(summary))
		for s := range summary {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		fmt.Fprintf(out, "Processed %d job(s):\n", len(report.Results))
		for _, s := range statuses {
			fmt.Fprintf(out, "  %-26s %d\n", s, summary[s])
		}
		for _, r := range report.Results {
			if r.Err != nil {
				fmt.Fprintf(out, "  job %d (%s): %v\n", r.JobID, r.Kind, r.Err)
			}
		}
	}
	if marked > 0 {
		fmt.Fprintf(out, "Marked %d booking(s) as no-show\n", marked)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func newRunCmd() *cobra.Command {
	var (
		configPath string
		noServer   bool
		noIntake   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sweep daemon with the HTTP server and broker intake",
		Long: `Runs sweeps on the configured cron schedule until interrupted. Also serves
the webhooks and metrics endpoint, and consumes booking events from AMQP when
intake.amqp.url is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, configPath, !noServer, !noIntake)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&noServer, "no-server", false, "do not start the HTTP server")
	cmd.Flags().BoolVar(&noIntake, "no-intake", false, "do not consume AMQP booking events")
	return cmd
}

func runRun(cmd *cobra.Command, configPath string, withServer, withIntake bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	a, err := buildApp(cfg, gormDB)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	spawn := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", name, err)
				}
				mu.Unlock()
				cancel()
			}
		}()
	}

	spawn("daemon", func() error {
		return daemon.Run(ctx, daemon.Opts{
			Ticker:     a.executor,
			Schedule:   cfg.Sweep.Schedule,
			RunAtStart: true,
			Out:        out,
		})
	})
	if withServer {
		spawn("server", func() error {
			return server.Start(ctx, serverOpts(a, out))
		})
	}
	if withIntake && cfg.Intake.AMQP.URL != "" {
		consumer := intake.NewConsumer(cfg.Intake.AMQP, a.intake)
		if err := consumer.Connect(); err != nil {
			cancel()
			wg.Wait()
			return err
		}
		defer consumer.Close()
		fmt.Fprintf(out, "Consuming booking events from %s\n", cfg.Intake.AMQP.Queue)
		spawn("intake", func() error { return consumer.Run(ctx) })
	}

	wg.Wait()
	return firstErr
}

func serverOpts(a *app, out io.Writer) server.Opts {
	return server.Opts{
		Addr:       a.cfg.Server.Addr,
		Intake:     a.intake,
		Replies:    a.replies,
		Executor:   a.executor,
		Metrics:    a.metrics,
		SweepToken: a.cfg.Server.SweepToken,
		Out:        out,
	}
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve webhooks, metrics, and the sweep trigger",
		Long: `Runs the HTTP server only. Sweeps happen when POST /sweep is called with
the configured bearer token, so an external scheduler can drive delivery.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	a, err := buildApp(cfg, gormDB)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()
	return server.Start(ctx, serverOpts(a, cmd.OutOrStdout()))
}
