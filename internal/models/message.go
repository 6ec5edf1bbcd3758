package models

import "time"

// Message is the immutable audit row written once a send succeeds. The
// (booking, kind) unique index is the durable idempotency fence.
type Message struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	BookingID   string    `gorm:"size:36;not null;uniqueIndex:idx_message_booking_kind"`
	Kind        string    `gorm:"size:32;not null;uniqueIndex:idx_message_booking_kind"`
	Channel     string    `gorm:"size:8;not null"`
	Recipient   string    `gorm:"size:255;not null"`
	Subject     string    `gorm:"size:256"`
	Body        string    `gorm:"type:text"`
	TransportID string    `gorm:"size:128"`
	SentAt      time.Time `gorm:"not null;index"`
}
