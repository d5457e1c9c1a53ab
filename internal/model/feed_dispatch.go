package model

import "time"

// Feed dispatch statuses.
const (
	DispatchPending        = "pending"
	DispatchConfirmed      = "confirmed"
	DispatchFailed         = "failed"
	DispatchUnacknowledged = "unacknowledged"
)

// Feed dispatch sources.
const (
	SourceManual   = "manual"
	SourceSchedule = "schedule"
)

// FeedDispatch records a feed command that was sent to a device and the
// amount taken from its food patch, so a failure report can give it back.
type FeedDispatch struct {
	ID           int64      `gorm:"primaryKey"`
	DeviceID     int64      `gorm:"index:idx_feed_dispatch_device_status,priority:1;not null"`
	Status       string     `gorm:"index:idx_feed_dispatch_device_status,priority:2;size:16;not null"`
	FoodPatchID  int64      `gorm:"not null"`
	FoodType     string     `gorm:"size:64;not null"`
	Quantity     float64    `gorm:"not null"`
	Source       string     `gorm:"size:16;not null"`
	DispatchedAt time.Time  `gorm:"not null"`
	ResolvedAt   *time.Time
}
