package models

import "time"

// Job is one scheduled message delivery for one booking. At most one row
// exists per (booking, kind).
type Job struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	BookingID  string    `gorm:"size:36;not null;uniqueIndex:idx_job_booking_kind"`
	Kind       string    `gorm:"size:32;not null;uniqueIndex:idx_job_booking_kind"`
	Channel    string    `gorm:"size:8;not null;default:email"`
	TargetAt   time.Time `gorm:"not null;index:idx_job_due,priority:2"`
	Executed   bool      `gorm:"not null;default:false;index:idx_job_due,priority:1"`
	ExecutedAt *time.Time
	Outcome    string `gorm:"size:32"`
	Cancelled  bool   `gorm:"not null;default:false"`
	Claimed    bool   `gorm:"not null;default:false;index"`
	ClaimedAt  *time.Time
	RetryCount int    `gorm:"not null;default:0"`
	LastError  string `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
