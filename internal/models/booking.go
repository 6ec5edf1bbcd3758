package models

import "time"

// Booking is one scheduled demo call and the contact it belongs to.
type Booking struct {
	ID          string    `gorm:"primaryKey;size:36"`
	ExternalID  string    `gorm:"size:128;not null;uniqueIndex"`
	Email       string    `gorm:"size:255;not null;index"`
	Phone       string    `gorm:"size:32;index"`
	Name        string    `gorm:"size:128"`
	ScheduledAt time.Time `gorm:"not null;index"`
	Timezone    string    `gorm:"size:64;not null;default:UTC"`
	Sequence    string    `gorm:"size:16;not null"`
	JoinURL     string    `gorm:"size:512"`
	Status      string    `gorm:"size:16;not null;default:PENDING;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
	JoinedAt    *time.Time

	Jobs []Job `gorm:"foreignKey:BookingID"`
}
