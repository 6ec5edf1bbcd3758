// Package messaging keeps the log of messages that actually went out. The
// (booking, kind) unique index makes it the last fence against a second send.
package messaging

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/cadence/internal/models"
	"gorm.io/gorm"
)

// RecordOpts describes a delivered message.
type RecordOpts struct {
	BookingID   string
	Kind        string
	Channel     string
	Recipient   string
	Subject     string
	Body        string
	TransportID string
}

// Record writes the sent-message row. When a row for the same booking and
// kind already exists it returns recorded=false and no error.
func Record(db *gorm.DB, opts RecordOpts, sentAt time.Time) (*models.Message, bool, error) {
	if opts.BookingID == "" {
		return nil, false, fmt.Errorf("messaging: bookingID is required")
	}
	if opts.Kind == "" {
		return nil, false, fmt.Errorf("messaging: kind is required")
	}
	if opts.Recipient == "" {
		return nil, false, fmt.Errorf("messaging: recipient is required")
	}
	if opts.Channel == "" {
		opts.Channel = models.ChannelEmail
	}

	msg := models.Message{
		BookingID:   opts.BookingID,
		Kind:        opts.Kind,
		Channel:     opts.Channel,
		Recipient:   opts.Recipient,
		Subject:     opts.Subject,
		Body:        opts.Body,
		TransportID: opts.TransportID,
		SentAt:      sentAt,
	}
	if err := db.Create(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("messaging: record %s/%s: %w", opts.BookingID, opts.Kind, err)
	}
	return &msg, true, nil
}

// Exists reports whether a message of this kind was already sent for the
// booking.
func Exists(db *gorm.DB, bookingID, kind string) (bool, error) {
	var n int64
	if err := db.Model(&models.Message{}).
		Where("booking_id = ? AND kind = ?", bookingID, kind).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("messaging: lookup %s/%s: %w", bookingID, kind, err)
	}
	return n > 0, nil
}

// ForBooking returns the messages sent for a booking, oldest first.
func ForBooking(db *gorm.DB, bookingID string) ([]models.Message, error) {
	if bookingID == "" {
		return nil, fmt.Errorf("messaging: bookingID is required")
	}
	var msgs []models.Message
	if err := db.Where("booking_id = ?", bookingID).
		Order("sent_at ASC, id ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("messaging: list for %s: %w", bookingID, err)
	}
	return msgs, nil
}

// Count returns the number of messages sent since the given time.
func Count(db *gorm.DB, since time.Time) (int64, error) {
	var n int64
	if err := db.Model(&models.Message{}).Where("sent_at >= ?", since).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("messaging: count: %w", err)
	}
	return n, nil
}
