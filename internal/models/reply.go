package models

import "time"

// Reply is the audit row for one inbound response. BookingID is nil when the
// sender could not be matched to an open booking.
type Reply struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	BookingID  *string   `gorm:"size:36;index"`
	Channel    string    `gorm:"size:8;not null"`
	Sender     string    `gorm:"size:255;not null"`
	Body       string    `gorm:"type:text"`
	Intent     string    `gorm:"size:32;not null;index"`
	Processed  bool      `gorm:"not null;default:false"`
	ReceivedAt time.Time `gorm:"not null;index"`
}
