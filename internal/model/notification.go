package model

import "time"

// Notification types.
const (
	NotificationFeeding      = "feeding"
	NotificationWaterQuality = "water_quality"
	NotificationMaintenance  = "maintenance"
)

// Notification is a message about an aquarium delivered to its push subscribers.
type Notification struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	AquariumID int64     `gorm:"index;not null" json:"aquarium_id"`
	Type       string    `gorm:"size:32;not null" json:"type"`
	Message    string    `gorm:"not null" json:"message"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}
