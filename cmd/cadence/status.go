package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/cadence/internal/booking"
	"github.com/zulandar/cadence/internal/jobs"
	"github.com/zulandar/cadence/internal/messaging"
)

// statusOrder is the display order of booking statuses.
var statusOrder = []string{
	booking.StatusPending,
	booking.StatusConfirmed,
	booking.StatusCompleted,
	booking.StatusNoShow,
	booking.StatusRescheduled,
	booking.StatusCancelled,
}

func newStatusCmd() *cobra.Command {
	var (
		configPath string
		since      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show booking, job and message counts",
		Long:  "Summarises bookings by status, the pending job queue, and messages sent over the --since window.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath, since)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "window for the sent message count")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath string, since time.Duration) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	counts, err := booking.CountByStatus(gormDB)
	if err != nil {
		return err
	}
	var open, closed int64
	for status, n := range counts {
		if booking.IsTerminal(status) {
			closed += n
		} else {
			open += n
		}
	}
	pending, due, err := jobs.CountPending(gormDB, now)
	if err != nil {
		return err
	}
	sent, err := messaging.Count(gormDB, now.Add(-since))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Bookings:  %d open, %d closed\n", open, closed)
	for _, status := range statusOrder {
		if n := counts[status]; n > 0 {
			fmt.Fprintf(out, "  %-12s %d\n", status, n)
		}
	}
	fmt.Fprintf(out, "Jobs:      %d pending, %d due\n", pending, due)
	fmt.Fprintf(out, "Sent:      %d in the last %s\n", sent, since)
	return nil
}
