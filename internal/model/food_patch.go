package model

import "time"

// FoodPatch is the food loaded into a device.
type FoodPatch struct {
	ID       int64   `gorm:"primaryKey" json:"id"`
	Name     string  `gorm:"size:128;not null" json:"name"`
	FoodType string  `gorm:"size:64;not null" json:"food_type"`
	Quantity float64 `gorm:"not null" json:"quantity"` // never negative
	DeviceID int64   `gorm:"index;not null" json:"device_id"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
