// Package booking stores demo bookings and enforces their status machine.
package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/zulandar/cadence/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound means no booking matched.
	ErrNotFound = errors.New("booking: not found")
	// ErrInvalidTransition means the booking's current status does not allow
	// the requested move.
	ErrInvalidTransition = errors.New("booking: invalid status transition")
)

// UpsertOpts holds the fields a booking-source event supplies.
type UpsertOpts struct {
	ExternalID  string
	Email       string
	Phone       string
	Name        string
	ScheduledAt time.Time
	Timezone    string
	Sequence    string
	JoinURL     string
}

// Upsert creates a booking keyed by its external id. Re-delivery of the same
// external id returns the stored record untouched with created=false.
func Upsert(db *gorm.DB, opts UpsertOpts, now time.Time) (*models.Booking, bool, error) {
	if opts.ExternalID == "" {
		return nil, false, fmt.Errorf("booking: external id is required")
	}
	if opts.Email == "" {
		return nil, false, fmt.Errorf("booking: email is required")
	}
	if opts.ScheduledAt.IsZero() {
		return nil, false, fmt.Errorf("booking: scheduled time is required")
	}
	if opts.Sequence == "" {
		return nil, false, fmt.Errorf("booking: sequence is required")
	}
	tz := opts.Timezone
	if tz == "" {
		tz = "UTC"
	}

	b := models.Booking{
		ID:          uuid.NewString(),
		ExternalID:  opts.ExternalID,
		Email:       NormalizeEmail(opts.Email),
		Phone:       NormalizePhone(opts.Phone),
		Name:        strings.TrimSpace(opts.Name),
		ScheduledAt: opts.ScheduledAt.UTC(),
		Timezone:    tz,
		Sequence:    opts.Sequence,
		JoinURL:     opts.JoinURL,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(&b)
	if result.Error != nil {
		return nil, false, fmt.Errorf("booking: upsert %s: %w", opts.ExternalID, result.Error)
	}
	// MySQL reports a swallowed conflict as one affected row when
	// clientFoundRows is on, so compare ids instead of trusting the count.
	stored, err := GetByExternalID(db, opts.ExternalID)
	if err != nil {
		return nil, false, err
	}
	return stored, stored.ID == b.ID, nil
}

// Get retrieves a booking by internal id.
func Get(db *gorm.DB, id string) (*models.Booking, error) {
	var b models.Booking
	if err := db.Where("id = ?", id).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("booking: get %s: %w", id, err)
	}
	return &b, nil
}

// GetByExternalID retrieves a booking by its source identifier.
func GetByExternalID(db *gorm.DB, externalID string) (*models.Booking, error) {
	var b models.Booking
	if err := db.Where("external_id = ?", externalID).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: external id %s", ErrNotFound, externalID)
		}
		return nil, fmt.Errorf("booking: get external %s: %w", externalID, err)
	}
	return &b, nil
}

// ListOpts filters List.
type ListOpts struct {
	Status string
	Limit  int
}

// List returns bookings ordered by scheduled time.
func List(db *gorm.DB, opts ListOpts) ([]models.Booking, error) {
	q := db.Model(&models.Booking{})
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	var out []models.Booking
	if err := q.Order("scheduled_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("booking: list: %w", err)
	}
	return out, nil
}

// CountByStatus returns the number of bookings in each status. Statuses
// with no bookings are absent.
func CountByStatus(db *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	if err := db.Model(&models.Booking{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("booking: count by status: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

// Reschedule moves an open booking to a new instant and classification.
func Reschedule(db *gorm.DB, id string, scheduledAt time.Time, timezone, sequence string, now time.Time) error {
	updates := map[string]interface{}{
		"scheduled_at": scheduledAt.UTC(),
		"sequence":     sequence,
		"updated_at":   now,
	}
	if timezone != "" {
		updates["timezone"] = timezone
	}
	result := db.Model(&models.Booking{}).
		Where("id = ? AND status IN ?", id, OpenStatuses).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("booking: reschedule %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return rejectTransition(db, id, "reschedule")
	}
	return nil
}

// Transition moves a booking to status to, guarded by the status machine in
// a single conditional update. Entering CONFIRMED sets confirmed_at once;
// entering COMPLETED sets joined_at. A booking already in the target status
// is reported as changed=false with no error.
func Transition(db *gorm.DB, id, to string, now time.Time) (bool, error) {
	from, ok := validTransitions[to]
	if !ok {
		return false, fmt.Errorf("%w: unknown target status %q", ErrInvalidTransition, to)
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": now,
	}
	switch to {
	case StatusConfirmed:
		updates["confirmed_at"] = gorm.Expr("COALESCE(confirmed_at, ?)", now)
	case StatusCompleted:
		updates["joined_at"] = gorm.Expr("COALESCE(joined_at, ?)", now)
	}

	result := db.Model(&models.Booking{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("booking: transition %s to %s: %w", id, to, result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	current, err := Get(db, id)
	if err != nil {
		return false, err
	}
	if current.Status == to {
		return false, nil
	}
	return false, fmt.Errorf("%w: %s is %s, cannot move to %s", ErrInvalidTransition, id, current.Status, to)
}

func rejectTransition(db *gorm.DB, id, action string) error {
	current, err := Get(db, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: cannot %s %s booking %s", ErrInvalidTransition, action, current.Status, id)
}

// FindOpenByContact returns the open booking for a reply sender, nearest
// upcoming first, then most recently past. channel selects whether address
// is an email or a phone number. A nil booking with nil error means no match.
func FindOpenByContact(db *gorm.DB, channel, address string, now time.Time) (*models.Booking, error) {
	q := db.Model(&models.Booking{}).Where("status IN ?", OpenStatuses)
	switch channel {
	case models.ChannelSMS:
		phone := NormalizePhone(address)
		if phone == "" {
			return nil, nil
		}
		q = q.Where("phone = ?", phone)
	default:
		email := NormalizeEmail(address)
		if email == "" {
			return nil, nil
		}
		q = q.Where("email = ?", email)
	}

	var candidates []models.Booking
	if err := q.Order("scheduled_at ASC").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("booking: find open for %s: %w", address, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	for i := range candidates {
		if !candidates[i].ScheduledAt.Before(now) {
			return &candidates[i], nil
		}
	}
	return &candidates[len(candidates)-1], nil
}

// Overdue returns open bookings whose scheduled time is before cutoff.
func Overdue(db *gorm.DB, cutoff time.Time, limit int) ([]models.Booking, error) {
	q := db.Where("status IN ? AND scheduled_at < ?", OpenStatuses, cutoff).Order("scheduled_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.Booking
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("booking: overdue before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return out, nil
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone keeps digits only, preserving a leading '+'.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if out := b.String(); out != "+" {
		return out
	}
	return ""
}
