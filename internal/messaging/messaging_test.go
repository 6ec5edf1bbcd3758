package messaging

import (
	"testing"
	"time"

	"github.com/zulandar/cadence/internal/db"
	"gorm.io/gorm"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func openMessagingTestDB(t *testing.T) *gorm.DB {
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

// --- Record validation tests ---

func TestRecord_MissingBookingID(t *testing.T) {
	_, _, err := Record(nil, RecordOpts{Kind: "welcome", Recipient: "a@b.c"}, now)
	if err == nil {
		t.Fatal("expected error for missing bookingID")
	}
	if got := err.Error(); got != "messaging: bookingID is required" {
		t.Errorf("error = %q", got)
	}
}

func TestRecord_MissingKind(t *testing.T) {
	_, _, err := Record(nil, RecordOpts{BookingID: "b1", Recipient: "a@b.c"}, now)
	if err == nil {
		t.Fatal("expected error for missing kind")
	}
	if got := err.Error(); got != "messaging: kind is required" {
		t.Errorf("error = %q", got)
	}
}

func TestRecord_MissingRecipient(t *testing.T) {
	_, _, err := Record(nil, RecordOpts{BookingID: "b1", Kind: "welcome"}, now)
	if err == nil {
		t.Fatal("expected error for missing recipient")
	}
	if got := err.Error(); got != "messaging: recipient is required" {
		t.Errorf("error = %q", got)
	}
}

// --- Persistence tests ---

func TestRecord_OncePerKind(t *testing.T) {
	gdb := openMessagingTestDB(t)
	opts := RecordOpts{BookingID: "b1", Kind: "welcome", Recipient: "pat@example.com", Subject: "hi"}

	msg, recorded, err := Record(gdb, opts, now)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !recorded || msg == nil || msg.ID == 0 {
		t.Fatalf("first Record = %+v, %v", msg, recorded)
	}
	if msg.Channel != "email" {
		t.Errorf("Channel = %q, want email default", msg.Channel)
	}

	msg, recorded, err = Record(gdb, opts, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second Record: %v", err)
	}
	if recorded || msg != nil {
		t.Errorf("second Record = %+v, %v, want nil, false", msg, recorded)
	}

	other := opts
	other.Kind = "day_before"
	if _, recorded, _ := Record(gdb, other, now); !recorded {
		t.Error("different kind not recorded")
	}
}

func TestExists(t *testing.T) {
	gdb := openMessagingTestDB(t)
	ok, err := Exists(gdb, "b1", "welcome")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("Exists = true before record")
	}
	Record(gdb, RecordOpts{BookingID: "b1", Kind: "welcome", Recipient: "pat@example.com"}, now)
	if ok, _ := Exists(gdb, "b1", "welcome"); !ok {
		t.Error("Exists = false after record")
	}
	if ok, _ := Exists(gdb, "b2", "welcome"); ok {
		t.Error("Exists leaked across bookings")
	}
}

func TestForBookingAndCount(t *testing.T) {
	gdb := openMessagingTestDB(t)
	Record(gdb, RecordOpts{BookingID: "b1", Kind: "day_before", Recipient: "p"}, now.Add(time.Hour))
	Record(gdb, RecordOpts{BookingID: "b1", Kind: "welcome", Recipient: "p"}, now)
	Record(gdb, RecordOpts{BookingID: "b2", Kind: "welcome", Recipient: "q"}, now)

	msgs, err := ForBooking(gdb, "b1")
	if err != nil {
		t.Fatalf("ForBooking: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Kind != "welcome" {
		t.Errorf("msgs = %+v", msgs)
	}
	if _, err := ForBooking(gdb, ""); err == nil {
		t.Error("expected error for empty bookingID")
	}

	n, err := Count(gdb, now.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}
