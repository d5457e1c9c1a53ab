package model

import "time"

// WaterParameter is one telemetry reading reported by a device.
type WaterParameter struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	AquariumID  int64     `gorm:"index:idx_water_aquarium_measured,priority:1;not null" json:"aquarium_id"`
	MeasuredAt  time.Time `gorm:"index:idx_water_aquarium_measured,priority:2,sort:desc;not null" json:"measured_at"`
	PH          float64   `gorm:"column:ph;not null" json:"ph"`
	Temperature float64   `gorm:"not null" json:"temperature"`
	Salinity    float64   `gorm:"not null" json:"salinity"`
	OxygenLevel float64   `gorm:"not null" json:"oxygen_level"`
}
