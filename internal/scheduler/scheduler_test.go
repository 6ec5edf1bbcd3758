package scheduler

import (
	"testing"
	"time"

	"github.com/zulandar/cadence/internal/booking"
	"github.com/zulandar/cadence/internal/db"
	"github.com/zulandar/cadence/internal/jobs"
	"github.com/zulandar/cadence/internal/models"
	"github.com/zulandar/cadence/internal/timeline"
	"gorm.io/gorm"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func openSchedulerTestDB(t *testing.T) *gorm.DB {
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

func createBooking(t *testing.T, gdb *gorm.DB, at time.Time) *models.Booking {
	t.Helper()
	b, _, err := booking.Upsert(gdb, booking.UpsertOpts{
		ExternalID:  "cal-1",
		Email:       "pat@example.com",
		Phone:       "+15550102000",
		ScheduledAt: at,
		Timezone:    "UTC",
		Sequence:    string(timeline.Classify(at, now)),
	}, now)
	if err != nil {
		t.Fatalf("booking.Upsert: %v", err)
	}
	return b
}

func jobsByKind(t *testing.T, gdb *gorm.DB, bookingID string) map[string]models.Job {
	t.Helper()
	list, err := jobs.ForBooking(gdb, bookingID)
	if err != nil {
		t.Fatalf("ForBooking: %v", err)
	}
	out := make(map[string]models.Job, len(list))
	for _, j := range list {
		out[j.Kind] = j
	}
	return out
}

func TestScheduleTimeline_WritesOneJobPerEntry(t *testing.T) {
	gdb := openSchedulerTestDB(t)
	b := createBooking(t, gdb, now.Add(96*time.Hour))

	entries, err := ScheduleTimeline(gdb, timeline.Default(), b, now)
	if err != nil {
		t.Fatalf("ScheduleTimeline: %v", err)
	}
	got := jobsByKind(t, gdb, b.ID)
	if len(got) != len(entries) {
		t.Fatalf("jobs = %d, entries = %d", len(got), len(entries))
	}
	for _, e := range entries {
		j, ok := got[string(e.Kind)]
		if !ok {
			t.Errorf("missing job for %s", e.Kind)
			continue
		}
		if !j.TargetAt.Equal(e.At) {
			t.Errorf("%s TargetAt = %v, want %v", e.Kind, j.TargetAt, e.At)
		}
		if j.Channel != e.Channel {
			t.Errorf("%s Channel = %q, want %q", e.Kind, j.Channel, e.Channel)
		}
	}
}

func TestScheduleTimeline_TwiceNoDuplicates(t *testing.T) {
	gdb := openSchedulerTestDB(t)
	b := createBooking(t, gdb, now.Add(96*time.Hour))

	first, err := ScheduleTimeline(gdb, nil, b, now)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := ScheduleTimeline(gdb, nil, b, now); err != nil {
		t.Fatalf("second: %v", err)
	}
	var n int64
	gdb.Model(&models.Job{}).Where("booking_id = ?", b.ID).Count(&n)
	if int(n) != len(first) {
		t.Errorf("jobs = %d, want %d", n, len(first))
	}
}

func TestScheduleTimeline_ResyncCancelsDroppedKinds(t *testing.T) {
	gdb := openSchedulerTestDB(t)
	b := createBooking(t, gdb, now.Add(96*time.Hour))
	if _, err := ScheduleTimeline(gdb, nil, b, now); err != nil {
		t.Fatalf("ScheduleTimeline: %v", err)
	}

	welcome := jobsByKind(t, gdb, b.ID)["welcome"]
	if ok, _ := jobs.Claim(gdb, welcome.ID, now); !ok {
		t.Fatal("claim welcome")
	}
	if err := jobs.MarkExecuted(gdb, welcome.ID, jobs.OutcomeSent, now); err != nil {
		t.Fatalf("MarkExecuted: %v", err)
	}

	later := now.Add(2 * time.Hour)
	newAt := later.Add(10 * time.Hour)
	seq := timeline.Classify(newAt, later)
	if err := booking.Reschedule(gdb, b.ID, newAt, "UTC", string(seq), later); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	b, _ = booking.Get(gdb, b.ID)

	if _, err := ScheduleTimeline(gdb, nil, b, later); err != nil {
		t.Fatalf("resync: %v", err)
	}
	got := jobsByKind(t, gdb, b.ID)
	for _, k := range []string{"confirm_request", "value_nudge", "day_before", "morning_of"} {
		if !got[k].Cancelled {
			t.Errorf("%s not cancelled after resync", k)
		}
	}
	for _, k := range []string{"reminder_1h", "join_link", "missed_call", "rebook_offer"} {
		j := got[k]
		if j.Cancelled {
			t.Errorf("%s cancelled", k)
		}
	}
	if !got["reminder_1h"].TargetAt.Equal(newAt.Add(-time.Hour)) {
		t.Errorf("reminder_1h TargetAt = %v, want moved", got["reminder_1h"].TargetAt)
	}
	if w := got["welcome"]; !w.Executed || !w.TargetAt.Equal(now) {
		t.Errorf("executed welcome changed: %+v", w)
	}
}

func TestScheduleTimeline_UnknownSequenceFailsLoudly(t *testing.T) {
	gdb := openSchedulerTestDB(t)
	b := createBooking(t, gdb, now.Add(96*time.Hour))
	b.Sequence = "WEEKLY"

	if _, err := ScheduleTimeline(gdb, nil, b, now); err == nil {
		t.Fatal("expected error for unknown sequence")
	}
	var n int64
	gdb.Model(&models.Job{}).Count(&n)
	if n != 0 {
		t.Errorf("jobs = %d, want 0", n)
	}
}

func TestCancelAllAndKinds(t *testing.T) {
	gdb := openSchedulerTestDB(t)
	b := createBooking(t, gdb, now.Add(96*time.Hour))
	entries, _ := ScheduleTimeline(gdb, nil, b, now)

	n, err := CancelKinds(gdb, b.ID, []timeline.Kind{timeline.KindValueNudge}, now)
	if err != nil {
		t.Fatalf("CancelKinds: %v", err)
	}
	if n != 1 {
		t.Errorf("CancelKinds = %d, want 1", n)
	}
	n, err = CancelAll(gdb, b.ID, now)
	if err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
	if int(n) != len(entries)-1 {
		t.Errorf("CancelAll = %d, want %d", n, len(entries)-1)
	}
	if n, _ := CancelAll(gdb, b.ID, now); n != 0 {
		t.Errorf("second CancelAll = %d, want 0", n)
	}
}

func TestScheduleTimeline_NilBooking(t *testing.T) {
	if _, err := ScheduleTimeline(nil, nil, nil, now); err == nil {
		t.Fatal("expected error for nil booking")
	}
}
