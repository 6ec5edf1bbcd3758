package booking

import (
	"errors"
	"testing"
	"time"

	"github.com/zulandar/cadence/internal/db"
	"github.com/zulandar/cadence/internal/models"
	"gorm.io/gorm"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func openBookingTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return gdb
}

func createBooking(t *testing.T, gdb *gorm.DB, ext string, at time.Time) *models.Booking {
	t.Helper()
	b, created, err := Upsert(gdb, UpsertOpts{
		ExternalID:  ext,
		Email:       "  Pat@Example.COM ",
		Phone:       "+1 (555) 010-2000",
		Name:        "Pat",
		ScheduledAt: at,
		Timezone:    "America/Chicago",
		Sequence:    "FUTURE",
		JoinURL:     "https://meet.test/" + ext,
	}, now)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !created {
		t.Fatalf("Upsert(%s) created = false, want true", ext)
	}
	return b
}

func TestUpsert_CreatesPending(t *testing.T) {
	gdb := openBookingTestDB(t)
	b := createBooking(t, gdb, "cal-1", now.Add(72*time.Hour))

	if b.ID == "" {
		t.Fatal("expected internal id")
	}
	if b.Status != StatusPending {
		t.Errorf("Status = %q, want PENDING", b.Status)
	}
	if b.Email != "pat@example.com" {
		t.Errorf("Email = %q, want normalized", b.Email)
	}
	if b.Phone != "+15550102000" {
		t.Errorf("Phone = %q, want +15550102000", b.Phone)
	}
}

func TestUpsert_IdempotentByExternalID(t *testing.T) {
	gdb := openBookingTestDB(t)
	first := createBooking(t, gdb, "cal-1", now.Add(72*time.Hour))

	again, created, err := Upsert(gdb, UpsertOpts{
		ExternalID:  "cal-1",
		Email:       "someone-else@example.com",
		ScheduledAt: now.Add(96 * time.Hour),
		Sequence:    "FUTURE",
	}, now)
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if created {
		t.Error("second Upsert created = true, want false")
	}
	if again.ID != first.ID {
		t.Errorf("ID = %s, want existing %s", again.ID, first.ID)
	}
	if again.Email != "pat@example.com" {
		t.Errorf("existing record modified: Email = %q", again.Email)
	}

	var count int64
	gdb.Model(&models.Booking{}).Count(&count)
	if count != 1 {
		t.Errorf("booking rows = %d, want 1", count)
	}
}

func TestUpsert_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts UpsertOpts
	}{
		{"missing external id", UpsertOpts{Email: "a@b.test", ScheduledAt: now, Sequence: "FUTURE"}},
		{"missing email", UpsertOpts{ExternalID: "x", ScheduledAt: now, Sequence: "FUTURE"}},
		{"missing time", UpsertOpts{ExternalID: "x", Email: "a@b.test", Sequence: "FUTURE"}},
		{"missing sequence", UpsertOpts{ExternalID: "x", Email: "a@b.test", ScheduledAt: now}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Upsert(nil, tt.opts, now); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestTransition_ConfirmSetsConfirmedAtOnce(t *testing.T) {
	gdb := openBookingTestDB(t)
	b := createBooking(t, gdb, "cal-1", now.Add(72*time.Hour))

	changed, err := Transition(gdb, b.ID, StatusConfirmed, now)
	if err != nil || !changed {
		t.Fatalf("Transition = (%v, %v), want (true, nil)", changed, err)
	}

	changed, err = Transition(gdb, b.ID, StatusConfirmed, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("repeat confirm: %v", err)
	}
	if changed {
		t.Error("repeat confirm changed = true, want false")
	}

	got, err := Get(gdb, b.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusConfirmed {
		t.Errorf("Status = %q, want CONFIRMED", got.Status)
	}
	if got.ConfirmedAt == nil || !got.ConfirmedAt.Equal(now) {
		t.Errorf("ConfirmedAt = %v, want %v", got.ConfirmedAt, now)
	}
}

func TestTransition_TerminalStatesRejectMoves(t *testing.T) {
	gdb := openBookingTestDB(t)
	b := createBooking(t, gdb, "cal-1", now.Add(72*time.Hour))

	if _, err := Transition(gdb, b.ID, StatusRescheduled, now); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	for _, to := range []string{StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow} {
		_, err := Transition(gdb, b.ID, to, now)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("RESCHEDULED -> %s err = %v, want ErrInvalidTransition", to, err)
		}
	}
}

func TestTransition_CompleteSetsJoinedAt(t *testing.T) {
	gdb := openBookingTestDB(t)
	b := createBooking(t, gdb, "cal-1", now.Add(time.Hour))

	if _, err := Transition(gdb, b.ID, StatusCompleted, now.Add(2*time.Hour)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ := Get(gdb, b.ID)
	if got.JoinedAt == nil || !got.JoinedAt.Equal(now.Add(2*time.Hour)) {
		t.Errorf("JoinedAt = %v", got.JoinedAt)
	}
}

func TestTransition_UnknownBooking(t *testing.T) {
	gdb := openBookingTestDB(t)
	_, err := Transition(gdb, "missing", StatusConfirmed, now)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestReschedule_OnlyOpen(t *testing.T) {
	gdb := openBookingTestDB(t)
	b := createBooking(t, gdb, "cal-1", now.Add(72*time.Hour))

	newAt := now.Add(20 * time.Hour)
	if err := Reschedule(gdb, b.ID, newAt, "", "NEXT_DAY", now); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	got, _ := Get(gdb, b.ID)
	if !got.ScheduledAt.Equal(newAt) || got.Sequence != "NEXT_DAY" || got.Timezone != "America/Chicago" {
		t.Errorf("after Reschedule: %+v", got)
	}

	if _, err := Transition(gdb, b.ID, StatusCancelled, now); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := Reschedule(gdb, b.ID, newAt, "", "NEXT_DAY", now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Reschedule on cancelled err = %v, want ErrInvalidTransition", err)
	}
}

func TestFindOpenByContact(t *testing.T) {
	gdb := openBookingTestDB(t)
	past := createBooking(t, gdb, "cal-past", now.Add(-2*time.Hour))
	soon := createBooking(t, gdb, "cal-soon", now.Add(3*time.Hour))
	createBooking(t, gdb, "cal-later", now.Add(72*time.Hour))

	got, err := FindOpenByContact(gdb, models.ChannelEmail, "PAT@example.com", now)
	if err != nil {
		t.Fatalf("FindOpenByContact: %v", err)
	}
	if got == nil || got.ID != soon.ID {
		t.Fatalf("match = %v, want nearest upcoming %s", got, soon.ID)
	}

	got, err = FindOpenByContact(gdb, models.ChannelSMS, "+1 555 010 2000", now)
	if err != nil || got == nil || got.ID != soon.ID {
		t.Fatalf("sms match = %v, %v", got, err)
	}

	// Only the past booking left open: it is returned.
	for _, ext := range []string{"cal-soon", "cal-later"} {
		b, _ := GetByExternalID(gdb, ext)
		if _, err := Transition(gdb, b.ID, StatusCancelled, now); err != nil {
			t.Fatal(err)
		}
	}
	got, _ = FindOpenByContact(gdb, models.ChannelEmail, "pat@example.com", now)
	if got == nil || got.ID != past.ID {
		t.Errorf("match = %v, want past booking %s", got, past.ID)
	}

	got, err = FindOpenByContact(gdb, models.ChannelEmail, "stranger@example.com", now)
	if err != nil || got != nil {
		t.Errorf("stranger match = %v, %v, want nil, nil", got, err)
	}
}

func TestOverdue(t *testing.T) {
	gdb := openBookingTestDB(t)
	old := createBooking(t, gdb, "cal-old", now.Add(-30*time.Minute))
	createBooking(t, gdb, "cal-new", now.Add(-2*time.Minute))
	done := createBooking(t, gdb, "cal-done", now.Add(-time.Hour))
	if _, err := Transition(gdb, done.ID, StatusCompleted, now); err != nil {
		t.Fatal(err)
	}

	got, err := Overdue(gdb, now.Add(-5*time.Minute), 10)
	if err != nil {
		t.Fatalf("Overdue: %v", err)
	}
	if len(got) != 1 || got[0].ID != old.ID {
		t.Errorf("Overdue = %v, want only %s", got, old.ID)
	}
}

func TestStatusHelpers(t *testing.T) {
	if !CanTransition(StatusPending, StatusConfirmed) || CanTransition(StatusConfirmed, StatusPending) {
		t.Error("CanTransition PENDING/CONFIRMED wrong")
	}
	if CanTransition(StatusNoShow, StatusCompleted) {
		t.Error("NO_SHOW must be terminal")
	}
	for _, s := range []string{StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled} {
		if !IsTerminal(s) || IsOpen(s) {
			t.Errorf("%s should be terminal and not open", s)
		}
	}
	if !BlocksDelivery(StatusCancelled) || !BlocksDelivery(StatusRescheduled) || BlocksDelivery(StatusNoShow) {
		t.Error("BlocksDelivery wrong")
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"+1 (555) 010-2000": "+15550102000",
		"555.010.2000":      "5550102000",
		"  ":                "",
		"+":                 "",
	}
	for in, want := range tests {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCountByStatus(t *testing.T) {
	gdb := openBookingTestDB(t)
	createBooking(t, gdb, "cal-1", now.Add(48*time.Hour))
	createBooking(t, gdb, "cal-2", now.Add(72*time.Hour))
	b := createBooking(t, gdb, "cal-3", now.Add(96*time.Hour))
	if _, err := Transition(gdb, b.ID, StatusCancelled, now); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	counts, err := CountByStatus(gdb)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[StatusPending] != 2 || counts[StatusCancelled] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if _, ok := counts[StatusConfirmed]; ok {
		t.Errorf("counts has empty status: %v", counts)
	}
}
