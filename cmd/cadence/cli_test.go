package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTestConfig writes a sqlite-backed config into a temp dir.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cadence.yaml")
	yaml := fmt.Sprintf(`database:
  driver: sqlite
  path: %s
content:
  company: Acme
transport:
  from_email: demos@acme.test
  email:
    type: log
`, filepath.Join(dir, "cadence.db"))
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("cadence %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestCLI_BookingLifecycle(t *testing.T) {
	cfg := writeTestConfig(t)

	out := mustRun(t, "db", "migrate", "-c", cfg)
	if !strings.Contains(out, "Migrated 4 tables") {
		t.Errorf("migrate output = %s", out)
	}

	at := time.Now().UTC().Add(6 * time.Hour).Format(time.RFC3339)
	out = mustRun(t, "booking", "add", "-c", cfg,
		"--external-id", "cal-1", "--email", "Pat@Example.com", "--name", "Pat", "--at", at)
	if !strings.Contains(out, "Created booking") || !strings.Contains(out, "SAME_DAY") {
		t.Errorf("add output = %s", out)
	}

	out = mustRun(t, "booking", "add", "-c", cfg,
		"--external-id", "cal-1", "--email", "pat@example.com", "--at", at)
	if !strings.Contains(out, "already recorded") {
		t.Errorf("re-add output = %s", out)
	}

	out = mustRun(t, "jobs", "-c", cfg, "--booking", "cal-1")
	if !strings.Contains(out, "welcome") || !strings.Contains(out, "rebook_offer") {
		t.Errorf("jobs output = %s", out)
	}

	out = mustRun(t, "sweep", "-c", cfg)
	if !strings.Contains(out, "sent") {
		t.Errorf("sweep output = %s", out)
	}
	out = mustRun(t, "sweep", "-c", cfg)
	if !strings.Contains(out, "No jobs due.") {
		t.Errorf("second sweep output = %s", out)
	}

	out = mustRun(t, "status", "-c", cfg)
	for _, want := range []string{"1 open, 0 closed", "PENDING", "0 due", "Sent:      1 in the last 24h0m0s"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}

	out = mustRun(t, "reply", "-c", cfg, "--from", "pat@example.com", "Yep,", "see", "you", "then!")
	if !strings.Contains(out, "Intent: affirmative") || !strings.Contains(out, "CONFIRMED (changed)") {
		t.Errorf("reply output = %s", out)
	}

	out = mustRun(t, "booking", "show", "cal-1", "-c", cfg)
	for _, want := range []string{"Status:      CONFIRMED", "Messages (1)", "Replies (1)"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	out = mustRun(t, "booking", "cancel", "cal-1", "-c", cfg)
	if !strings.Contains(out, "CANCELLED") {
		t.Errorf("cancel output = %s", out)
	}

	out = mustRun(t, "jobs", "-c", cfg, "--pending")
	if !strings.Contains(out, "No jobs found.") {
		t.Errorf("pending jobs after cancel = %s", out)
	}

	out = mustRun(t, "status", "-c", cfg)
	for _, want := range []string{"0 open, 1 closed", "CANCELLED", "Jobs:      0 pending"} {
		if !strings.Contains(out, want) {
			t.Errorf("status after cancel missing %q:\n%s", want, out)
		}
	}

	out = mustRun(t, "reply", "list", "-c", cfg)
	if !strings.Contains(out, "affirmative") {
		t.Errorf("reply list output = %s", out)
	}

	out = mustRun(t, "booking", "list", "-c", cfg, "--status", "CANCELLED")
	if !strings.Contains(out, "cal-1") {
		t.Errorf("booking list output = %s", out)
	}
}

func TestCLI_UnmatchedReply(t *testing.T) {
	cfg := writeTestConfig(t)
	mustRun(t, "db", "migrate", "-c", cfg)

	out := mustRun(t, "reply", "-c", cfg, "--from", "nobody@example.com", "yes")
	if !strings.Contains(out, "Intent: unmatched") || !strings.Contains(out, "No open booking") {
		t.Errorf("output = %s", out)
	}
}

func TestCLI_CompleteBooking(t *testing.T) {
	cfg := writeTestConfig(t)
	mustRun(t, "db", "migrate", "-c", cfg)
	at := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	mustRun(t, "booking", "add", "-c", cfg, "--external-id", "cal-9", "--email", "sam@example.com", "--at", at)

	out := mustRun(t, "booking", "complete", "cal-9", "-c", cfg)
	if !strings.Contains(out, "COMPLETED") {
		t.Errorf("complete output = %s", out)
	}
	if _, err := runCLI(t, "booking", "cancel", "cal-9", "-c", cfg); err == nil {
		t.Error("expected error cancelling a completed booking")
	}
}

func TestCLI_BookingAddValidation(t *testing.T) {
	cfg := writeTestConfig(t)
	mustRun(t, "db", "migrate", "-c", cfg)

	if _, err := runCLI(t, "booking", "add", "-c", cfg, "--external-id", "x", "--email", "a@b.c", "--at", "soon"); err == nil {
		t.Error("expected error for bad --at")
	}
	if _, err := runCLI(t, "booking", "add", "-c", cfg, "--email", "a@b.c", "--at", "2026-06-01 10:00"); err == nil {
		t.Error("expected error for missing --external-id")
	}
}

func TestCLI_ShowUnknownBooking(t *testing.T) {
	cfg := writeTestConfig(t)
	mustRun(t, "db", "migrate", "-c", cfg)
	if _, err := runCLI(t, "booking", "show", "missing", "-c", cfg); err == nil {
		t.Error("expected error for unknown booking")
	}
}

func TestCLI_ReplyClassify(t *testing.T) {
	out := mustRun(t, "reply", "classify", "can't", "make", "it,", "need", "another", "time")
	if strings.TrimSpace(out) != "reschedule" {
		t.Errorf("classify = %q", out)
	}
}

func TestCLI_TimelinePreview(t *testing.T) {
	out := mustRun(t, "timeline", "-c", "/nonexistent/cadence.yaml",
		"--at", "2026-06-02 18:00", "--tz", "America/New_York", "--now", "2026-06-01T12:00:00Z")
	if !strings.Contains(out, "Sequence: NEXT_DAY") {
		t.Errorf("output = %s", out)
	}
	for _, kind := range []string{"welcome", "confirm_request", "day_before", "morning_of", "rebook_offer"} {
		if !strings.Contains(out, kind) {
			t.Errorf("timeline missing %s:\n%s", kind, out)
		}
	}
	if strings.Contains(out, "value_nudge") {
		t.Errorf("NEXT_DAY timeline should not include value_nudge:\n%s", out)
	}
}

func TestCLI_DBReset(t *testing.T) {
	cfg := writeTestConfig(t)
	mustRun(t, "db", "migrate", "-c", cfg)
	at := time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339)
	mustRun(t, "booking", "add", "-c", cfg, "--external-id", "cal-1", "--email", "pat@example.com", "--at", at)

	out := mustRun(t, "db", "reset", "-c", cfg)
	if !strings.Contains(out, "Aborted.") {
		t.Errorf("reset without confirmation = %s", out)
	}

	out = mustRun(t, "db", "reset", "-c", cfg, "--yes")
	if !strings.Contains(out, "reset successfully") {
		t.Errorf("reset output = %s", out)
	}
	out = mustRun(t, "booking", "list", "-c", cfg)
	if !strings.Contains(out, "No bookings found.") {
		t.Errorf("bookings survived reset: %s", out)
	}
}

func TestCLI_MissingConfig(t *testing.T) {
	for _, args := range [][]string{
		{"db", "migrate", "-c", "/nonexistent/cadence.yaml"},
		{"sweep", "-c", "/nonexistent/cadence.yaml"},
		{"jobs", "-c", "/nonexistent/cadence.yaml"},
	} {
		if _, err := runCLI(t, args...); err == nil {
			t.Errorf("cadence %s: expected error", strings.Join(args, " "))
		}
	}
}
