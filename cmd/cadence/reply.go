package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/cadence/internal/reply"
)

func newReplyCmd() *cobra.Command {
	var (
		configPath string
		channel    string
		from       string
	)

	cmd := &cobra.Command{
		Use:   "reply <text>",
		Short: "Apply an inbound reply as if a provider had delivered it",
		Long: `Classifies the reply, records it against the sender's open booking, and
applies its intent (confirm, reschedule, or opt out).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReply(cmd, configPath, reply.Inbound{
				Channel: channel,
				Sender:  from,
				Body:    strings.Join(args, " "),
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&from, "from", "", "sender email or phone (required)")
	cmd.Flags().StringVar(&channel, "channel", "email", "channel the reply arrived on (email or sms)")
	cmd.MarkFlagRequired("from")
	cmd.AddCommand(newReplyListCmd())
	cmd.AddCommand(newReplyClassifyCmd())
	return cmd
}

func runReply(cmd *cobra.Command, configPath string, in reply.Inbound) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	a, err := buildApp(cfg, gormDB)
	if err != nil {
		return err
	}
	defer a.Close()

	outcome, err := a.replies.Handle(context.Background(), in)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Intent: %s\n", outcome.Intent)
	if outcome.Booking == nil {
		fmt.Fprintln(out, "No open booking matched the sender.")
		return nil
	}
	fmt.Fprintf(out, "Booking %s is %s", outcome.Booking.ID, outcome.Booking.Status)
	if outcome.StatusChanged {
		fmt.Fprint(out, " (changed)")
	}
	fmt.Fprintln(out)
	if outcome.JobsCancelled > 0 {
		fmt.Fprintf(out, "Cancelled %d pending job(s)\n", outcome.JobsCancelled)
	}
	if reply.NeedsReview(outcome.Intent) {
		fmt.Fprintln(out, "Flagged for manual follow-up.")
	}
	return nil
}

func newReplyListCmd() *cobra.Command {
	var (
		configPath string
		opts       reply.ListOpts
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded replies, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			list, err := reply.List(gormDB, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No replies found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tRECEIVED\tFROM\tINTENT\tBOOKING\tBODY")
			for _, r := range list {
				bookingID := "-"
				if r.BookingID != nil {
					bookingID = truncate(*r.BookingID, 8)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, formatTime(r.ReceivedAt, "UTC"), r.Sender, r.Intent, bookingID, truncate(r.Body, 40))
			}
			w.Flush()
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&opts.Intent, "intent", "", "filter by intent")
	cmd.Flags().BoolVar(&opts.UnprocessedOnly, "unprocessed", false, "only replies whose intent was not applied")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum rows")
	return cmd
}

func newReplyClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Print the intent a reply would be classified as",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), reply.Classify(strings.Join(args, " ")))
			return nil
		},
	}
}
