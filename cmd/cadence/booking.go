package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/cadence/internal/booking"
	"github.com/zulandar/cadence/internal/intake"
	"github.com/zulandar/cadence/internal/jobs"
	"github.com/zulandar/cadence/internal/messaging"
	"github.com/zulandar/cadence/internal/models"
	"github.com/zulandar/cadence/internal/reply"
	"github.com/zulandar/cadence/internal/timeline"
	"gorm.io/gorm"
)

func newBookingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "booking",
		Short: "Booking management commands",
	}

	cmd.AddCommand(newBookingAddCmd())
	cmd.AddCommand(newBookingShowCmd())
	cmd.AddCommand(newBookingListCmd())
	cmd.AddCommand(newBookingCancelCmd())
	cmd.AddCommand(newBookingCompleteCmd())
	return cmd
}

// parseWhen accepts RFC 3339 or "YYYY-MM-DD HH:MM" in tz.
func parseWhen(s, tz string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	loc, err := timeline.LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339 or \"YYYY-MM-DD HH:MM\"", s)
	}
	return t, nil
}

func newIntakeFromConfig(configPath string) (*intake.Service, *gorm.DB, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	gen, err := newGenerator(cfg)
	if err != nil {
		return nil, nil, err
	}
	svc, err := intake.New(intake.Opts{DB: gormDB, Generator: gen})
	if err != nil {
		return nil, nil, err
	}
	return svc, gormDB, nil
}

func newBookingAddCmd() *cobra.Command {
	var (
		configPath string
		ev         intake.Created
		at         string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add (or move) a booking and schedule its messages",
		Long: `Records a booking as if the booking source had sent it. Re-running with the
same external id and a new --at moves the booking and re-syncs its messages.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := parseWhen(at, ev.Timezone)
			if err != nil {
				return err
			}
			ev.ScheduledAt = when
			return runBookingAdd(cmd, configPath, ev)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&ev.ExternalID, "external-id", "", "booking source id (required)")
	cmd.Flags().StringVar(&ev.Email, "email", "", "contact email (required)")
	cmd.Flags().StringVar(&ev.Phone, "phone", "", "contact phone for SMS steps")
	cmd.Flags().StringVar(&ev.Name, "name", "", "contact name")
	cmd.Flags().StringVar(&at, "at", "", "meeting start, RFC 3339 or \"YYYY-MM-DD HH:MM\" in --tz (required)")
	cmd.Flags().StringVar(&ev.Timezone, "tz", "UTC", "IANA timezone of the contact")
	cmd.Flags().StringVar(&ev.JoinURL, "join-url", "", "meeting join link")
	cmd.MarkFlagRequired("external-id")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("at")
	return cmd
}

func runBookingAdd(cmd *cobra.Command, configPath string, ev intake.Created) error {
	svc, _, err := newIntakeFromConfig(configPath)
	if err != nil {
		return err
	}
	res, err := svc.BookingCreated(context.Background(), ev)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	b := res.Booking
	switch {
	case res.Created:
		fmt.Fprintf(out, "Created booking %s (%s)\n", b.ID, b.Sequence)
	case res.Rescheduled:
		fmt.Fprintf(out, "Moved booking %s to %s (%s)\n", b.ID, formatTime(b.ScheduledAt, b.Timezone), b.Sequence)
	default:
		fmt.Fprintf(out, "Booking %s already recorded (%s)\n", b.ID, b.Status)
	}
	if len(res.Timeline) > 0 {
		fmt.Fprintf(out, "Scheduled %d message(s):\n", len(res.Timeline))
		printTimeline(cmd, res.Timeline, b.Timezone)
	}
	return nil
}

func printTimeline(cmd *cobra.Command, entries []timeline.Entry, tz string) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  KIND\tCHANNEL\tSEND AT")
	for _, e := range entries {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", e.Kind, e.Channel, formatTime(e.At, tz))
	}
	w.Flush()
}

func newBookingShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id|external-id>",
		Short: "Show a booking with its jobs, messages, and replies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBookingShow(cmd, configPath, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

// lookupBooking resolves an internal id first, then an external id.
func lookupBooking(gormDB *gorm.DB, ref string) (*models.Booking, error) {
	b, err := booking.Get(gormDB, ref)
	if errors.Is(err, booking.ErrNotFound) {
		return booking.GetByExternalID(gormDB, ref)
	}
	return b, err
}

func runBookingShow(cmd *cobra.Command, configPath, ref string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	b, err := lookupBooking(gormDB, ref)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:          %s\n", b.ID)
	fmt.Fprintf(out, "External ID: %s\n", b.ExternalID)
	fmt.Fprintf(out, "Status:      %s\n", b.Status)
	fmt.Fprintf(out, "Sequence:    %s\n", b.Sequence)
	fmt.Fprintf(out, "Scheduled:   %s\n", formatTime(b.ScheduledAt, b.Timezone))
	fmt.Fprintf(out, "Email:       %s\n", b.Email)
	if b.Phone != "" {
		fmt.Fprintf(out, "Phone:       %s\n", b.Phone)
	}
	if b.Name != "" {
		fmt.Fprintf(out, "Name:        %s\n", b.Name)
	}
	if b.JoinURL != "" {
		fmt.Fprintf(out, "Join URL:    %s\n", b.JoinURL)
	}
	fmt.Fprintf(out, "Confirmed:   %s\n", formatOptionalTime(b.ConfirmedAt, b.Timezone))
	fmt.Fprintf(out, "Joined:      %s\n", formatOptionalTime(b.JoinedAt, b.Timezone))

	list, err := jobs.ForBooking(gormDB, b.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nJobs (%d):\n", len(list))
	printJobs(cmd, list, b.Timezone)

	msgs, err := messaging.ForBooking(gormDB, b.ID)
	if err != nil {
		return err
	}
	if len(msgs) > 0 {
		fmt.Fprintf(out, "\nMessages (%d):\n", len(msgs))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  KIND\tCHANNEL\tTO\tSENT AT\tTRANSPORT ID")
		for _, m := range msgs {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
				m.Kind, m.Channel, m.Recipient, formatTime(m.SentAt, b.Timezone), m.TransportID)
		}
		w.Flush()
	}

	replies, err := reply.List(gormDB, reply.ListOpts{BookingID: b.ID})
	if err != nil {
		return err
	}
	if len(replies) > 0 {
		fmt.Fprintf(out, "\nReplies (%d):\n", len(replies))
		for _, r := range replies {
			fmt.Fprintf(out, "  %s  %-16s %q\n", formatTime(r.ReceivedAt, b.Timezone), r.Intent, truncate(r.Body, 60))
		}
	}
	return nil
}

func newBookingListCmd() *cobra.Command {
	var (
		configPath string
		opts       booking.ListOpts
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBookingList(cmd, configPath, opts)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum rows")
	return cmd
}

func runBookingList(cmd *cobra.Command, configPath string, opts booking.ListOpts) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	list, err := booking.List(gormDB, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No bookings found.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEXTERNAL\tSTATUS\tSEQUENCE\tSCHEDULED\tEMAIL")
	for _, b := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, truncate(b.ExternalID, 24), b.Status, b.Sequence, formatTime(b.ScheduledAt, b.Timezone), b.Email)
	}
	w.Flush()
	return nil
}

func newBookingCancelCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cancel <external-id>",
		Short: "Cancel a booking and all of its pending messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := newIntakeFromConfig(configPath)
			if err != nil {
				return err
			}
			b, n, err := svc.BookingCancelled(context.Background(), intake.Cancelled{ExternalID: args[0]})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Booking %s is %s (%d pending job(s) cancelled)\n", b.ID, b.Status, n)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newBookingCompleteCmd() *cobra.Command {
	var (
		configPath string
		joinedAt   string
	)

	cmd := &cobra.Command{
		Use:   "complete <external-id>",
		Short: "Record that the contact joined the call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev := intake.Completed{ExternalID: args[0]}
			if joinedAt != "" {
				t, err := parseWhen(joinedAt, "UTC")
				if err != nil {
					return err
				}
				ev.JoinedAt = t
			}
			svc, _, err := newIntakeFromConfig(configPath)
			if err != nil {
				return err
			}
			b, err := svc.BookingCompleted(context.Background(), ev)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Booking %s is %s (joined %s)\n",
				b.ID, b.Status, formatOptionalTime(b.JoinedAt, b.Timezone))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&joinedAt, "joined-at", "", "when the contact joined (default now)")
	return cmd
}
