package reply

import (
	"fmt"

	"github.com/zulandar/cadence/internal/models"
	"gorm.io/gorm"
)

// Record writes the audit row for a reply. b may be nil for an unmatched
// sender.
func Record(db *gorm.DB, in Inbound, b *models.Booking, intent Intent) (*models.Reply, error) {
	r := models.Reply{
		Channel:    in.Channel,
		Sender:     in.Sender,
		Body:       in.Body,
		Intent:     string(intent),
		ReceivedAt: in.ReceivedAt.UTC(),
	}
	if b != nil {
		id := b.ID
		r.BookingID = &id
	}
	if err := db.Create(&r).Error; err != nil {
		return nil, fmt.Errorf("reply: record from %s: %w", in.Sender, err)
	}
	return &r, nil
}

// MarkProcessed flags a reply whose intent has been applied.
func MarkProcessed(db *gorm.DB, id uint) error {
	result := db.Model(&models.Reply{}).Where("id = ?", id).Update("processed", true)
	if result.Error != nil {
		return fmt.Errorf("reply: mark %d processed: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("reply: reply not found: %d", id)
	}
	return nil
}

// ListOpts filters List.
type ListOpts struct {
	BookingID       string
	Intent          string
	UnprocessedOnly bool
	Limit           int
}

// List returns replies newest first.
func List(db *gorm.DB, opts ListOpts) ([]models.Reply, error) {
	q := db.Model(&models.Reply{})
	if opts.BookingID != "" {
		q = q.Where("booking_id = ?", opts.BookingID)
	}
	if opts.Intent != "" {
		q = q.Where("intent = ?", opts.Intent)
	}
	if opts.UnprocessedOnly {
		q = q.Where("processed = ?", false)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	var out []models.Reply
	if err := q.Order("received_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("reply: list: %w", err)
	}
	return out, nil
}
