package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/cadence/internal/config"
	"github.com/zulandar/cadence/internal/models"
)

func newTimelineCmd() *cobra.Command {
	var (
		configPath string
		at         string
		tz         string
		phone      string
		from       string
	)

	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Preview the messages a booking would get",
		Long: `Classifies a hypothetical booking and prints its timeline without writing
anything. Uses the sequences from the config file when it exists.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTimeline(cmd, configPath, at, tz, phone, from)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&at, "at", "", "meeting start, RFC 3339 or \"YYYY-MM-DD HH:MM\" in --tz (required)")
	cmd.Flags().StringVar(&tz, "tz", "UTC", "IANA timezone of the contact")
	cmd.Flags().StringVar(&phone, "phone", "+10000000000", "contact phone; empty previews the email fallback")
	cmd.Flags().StringVar(&from, "now", "", "generate as of this time instead of now")
	cmd.MarkFlagRequired("at")
	return cmd
}

func runTimeline(cmd *cobra.Command, configPath, at, tz, phone, from string) error {
	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return err
	}
	gen, err := newGenerator(cfg)
	if err != nil {
		return err
	}

	scheduledAt, err := parseWhen(at, tz)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if from != "" {
		if now, err = parseWhen(from, tz); err != nil {
			return err
		}
	}

	b := &models.Booking{ScheduledAt: scheduledAt.UTC(), Timezone: tz, Phone: phone}
	seq := gen.Classify(b.ScheduledAt, now)
	b.Sequence = string(seq)
	entries, err := gen.Generate(b, now)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sequence: %s (lead time %s)\n", seq, b.ScheduledAt.Sub(now).Round(time.Minute))
	fmt.Fprintf(out, "Meeting:  %s\n", formatTime(b.ScheduledAt, tz))
	if len(entries) == 0 {
		fmt.Fprintln(out, "No messages would be sent.")
		return nil
	}
	printTimeline(cmd, entries, tz)
	return nil
}
