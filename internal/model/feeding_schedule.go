package model

import "time"

// FeedingSchedule triggers an automatic feed every day at ScheduledTime.
type FeedingSchedule struct {
	ID         int64  `gorm:"primaryKey" json:"id"`
	AquariumID int64  `gorm:"index;not null" json:"aquarium_id"`
	FoodType   string `gorm:"size:64;not null" json:"food_type"`
	// ScheduledTime is a time of day formatted as HH:MM:SS.
	ScheduledTime string     `gorm:"size:8;not null" json:"scheduled_time"`
	LastRunAt     *time.Time `json:"last_run_at"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
