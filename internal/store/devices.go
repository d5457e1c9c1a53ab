package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"finfare-backend/internal/model"
)

// CreateDevice provisions a device. The aquarium must exist, and neither the
// address nor the aquarium may already be taken.
func (s *gormStore) CreateDevice(ctx context.Context, d *model.Device) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkAquariumFree(tx, d.AquariumID, 0); err != nil {
			return err
		}
		if err := checkAddressFree(tx, d.UniqueAddress, 0); err != nil {
			return err
		}
		if err := tx.Create(d).Error; err != nil {
			return fmt.Errorf("failed to create device %q: %w", d.UniqueAddress, translate(err))
		}
		return nil
	})
}

func (s *gormStore) GetDeviceByAquarium(ctx context.Context, aquariumID int64) (*model.Device, error) {
	var d model.Device
	if err := s.db.WithContext(ctx).Where("aquarium_id = ?", aquariumID).First(&d).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (s *gormStore) GetDeviceByAddress(ctx context.Context, address string) (*model.Device, error) {
	var d model.Device
	if err := s.db.WithContext(ctx).Where("unique_address = ?", address).First(&d).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (s *gormStore) UpdateDevice(ctx context.Context, deviceID int64, changes DeviceChanges) (*model.Device, error) {
	var d model.Device
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&d, deviceID).Error; err != nil {
			return translate(err)
		}
		if changes.UniqueAddress != nil && *changes.UniqueAddress != d.UniqueAddress {
			if err := checkAddressFree(tx, *changes.UniqueAddress, d.ID); err != nil {
				return err
			}
			d.UniqueAddress = *changes.UniqueAddress
		}
		if changes.AquariumID != nil && *changes.AquariumID != d.AquariumID {
			if err := checkAquariumFree(tx, *changes.AquariumID, d.ID); err != nil {
				return err
			}
			d.AquariumID = *changes.AquariumID
		}
		if err := tx.Save(&d).Error; err != nil {
			return fmt.Errorf("failed to update device %d: %w", d.ID, translate(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *gormStore) SetDeviceActive(ctx context.Context, deviceID int64, active bool) error {
	res := s.db.WithContext(ctx).Model(&model.Device{}).Where("id = ?", deviceID).Update("is_active", active)
	if res.Error != nil {
		return fmt.Errorf("failed to set device %d active=%t: %w", deviceID, active, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) TouchDevice(ctx context.Context, deviceID int64, at time.Time) error {
	return s.db.WithContext(ctx).Model(&model.Device{}).Where("id = ?", deviceID).Update("last_seen_at", at).Error
}

// checkAquariumFree verifies the aquarium exists and has no device other than exceptDeviceID.
func checkAquariumFree(tx *gorm.DB, aquariumID, exceptDeviceID int64) error {
	var count int64
	if err := tx.Model(&model.Aquarium{}).Where("id = ?", aquariumID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("aquarium %d: %w", aquariumID, ErrNotFound)
	}
	if err := tx.Model(&model.Device{}).
		Where("aquarium_id = ? AND id <> ?", aquariumID, exceptDeviceID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("aquarium %d already has a device: %w", aquariumID, ErrAlreadyExists)
	}
	return nil
}

func checkAddressFree(tx *gorm.DB, address string, exceptDeviceID int64) error {
	var count int64
	if err := tx.Model(&model.Device{}).
		Where("unique_address = ? AND id <> ?", address, exceptDeviceID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("device address %q: %w", address, ErrAlreadyExists)
	}
	return nil
}
