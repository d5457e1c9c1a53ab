package model

import "time"

// Device is a physical feeder attached to exactly one aquarium.
type Device struct {
	ID            int64  `gorm:"primaryKey" json:"id"`
	UniqueAddress string `gorm:"uniqueIndex;size:128;not null" json:"unique_address"`
	AquariumID    int64  `gorm:"uniqueIndex;not null" json:"aquarium_id"`
	IsActive      bool   `gorm:"not null" json:"is_active"`
	// LastSeenAt is stamped every time the device state is reconciled.
	LastSeenAt *time.Time `json:"last_seen_at"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null" json:"updated_at"`
}
