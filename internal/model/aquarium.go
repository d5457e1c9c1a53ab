package model

import "time"

// Aquarium is a tank owned by a company. Companies, users and roles live
// outside this service and are referenced by ID only.
type Aquarium struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	Capacity    float64   `gorm:"not null" json:"capacity"` // litres
	Description string    `json:"description"`
	CompanyID   int64     `gorm:"index;not null" json:"company_id"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Aquarium) TableName() string { return "aquariums" }
