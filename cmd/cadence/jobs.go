package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/cadence/internal/jobs"
	"github.com/zulandar/cadence/internal/models"
)

func newJobsCmd() *cobra.Command {
	var (
		configPath string
		bookingRef string
		opts       jobs.ListOpts
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List scheduled jobs",
		Long:  "Lists jobs in send order, optionally for one booking or only those still pending.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobs(cmd, configPath, bookingRef, opts)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&bookingRef, "booking", "", "booking id or external id")
	cmd.Flags().BoolVar(&opts.PendingOnly, "pending", false, "only jobs not yet executed or cancelled")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum rows")
	return cmd
}

func runJobs(cmd *cobra.Command, configPath, bookingRef string, opts jobs.ListOpts) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	var list []models.Job
	tz := "UTC"
	if bookingRef != "" {
		b, err := lookupBooking(gormDB, bookingRef)
		if err != nil {
			return err
		}
		tz = b.Timezone
		list, err = jobs.ForBooking(gormDB, b.ID)
		if err != nil {
			return err
		}
	} else {
		list, err = jobs.List(gormDB, opts)
		if err != nil {
			return err
		}
	}

	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No jobs found.")
		return nil
	}
	printJobs(cmd, list, tz)
	return nil
}

func printJobs(cmd *cobra.Command, list []models.Job, tz string) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBOOKING\tKIND\tCHANNEL\tTARGET\tSTATE\tOUTCOME\tTRIES")
	for _, j := range list {
		outcome := j.Outcome
		if outcome == "" {
			outcome = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			j.ID, truncate(j.BookingID, 8), j.Kind, j.Channel, formatTime(j.TargetAt, tz),
			jobs.State(&j), outcome, j.RetryCount)
	}
	w.Flush()
}
