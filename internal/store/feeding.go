package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"finfare-backend/internal/model"
)

func (s *gormStore) ListFoodPatches(ctx context.Context, deviceID int64) ([]model.FoodPatch, error) {
	var patches []model.FoodPatch
	if err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Order("id").Find(&patches).Error; err != nil {
		return nil, err
	}
	return patches, nil
}

func (s *gormStore) GetFoodPatch(ctx context.Context, id int64) (*model.FoodPatch, error) {
	var p model.FoodPatch
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// FindFoodPatch returns the first patch of the device holding foodType, or the
// device's first patch when foodType is empty or no patch matches.
func (s *gormStore) FindFoodPatch(ctx context.Context, deviceID int64, foodType string) (*model.FoodPatch, error) {
	db := s.db.WithContext(ctx)
	var p model.FoodPatch
	if foodType != "" {
		err := db.Where("device_id = ? AND food_type = ?", deviceID, foodType).Order("id").First(&p).Error
		if err == nil {
			return &p, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if err := db.Where("device_id = ?", deviceID).Order("id").First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *gormStore) CreateFoodPatch(ctx context.Context, p *model.FoodPatch) error {
	if p.Quantity < 0 {
		return fmt.Errorf("food patch quantity %v: %w", p.Quantity, ErrInsufficientFood)
	}
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *gormStore) UpdateFoodPatch(ctx context.Context, p *model.FoodPatch) error {
	if p.Quantity < 0 {
		return fmt.Errorf("food patch quantity %v: %w", p.Quantity, ErrInsufficientFood)
	}
	res := s.db.WithContext(ctx).Model(&model.FoodPatch{}).Where("id = ?", p.ID).
		Updates(map[string]any{"name": p.Name, "food_type": p.FoodType, "quantity": p.Quantity})
	if res.Error != nil {
		return fmt.Errorf("failed to update food patch %d: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) DeleteFoodPatch(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&model.FoodPatch{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ConsumeFood takes d.Quantity from the food patch and records d as the pending
// dispatch of its device, superseding any older pending dispatch. It returns
// the quantity left on the patch.
func (s *gormStore) ConsumeFood(ctx context.Context, d *model.FeedDispatch) (float64, error) {
	var remaining float64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.FoodPatch{}).
			Where("id = ? AND quantity >= ?", d.FoodPatchID, d.Quantity).
			Update("quantity", gorm.Expr("quantity - ?", d.Quantity))
		if res.Error != nil {
			return fmt.Errorf("failed to decrement food patch %d: %w", d.FoodPatchID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientFood
		}

		if err := tx.Model(&model.FeedDispatch{}).
			Where("device_id = ? AND status = ?", d.DeviceID, model.DispatchPending).
			Updates(map[string]any{"status": model.DispatchUnacknowledged, "resolved_at": d.DispatchedAt}).Error; err != nil {
			return fmt.Errorf("failed to supersede pending dispatches: %w", err)
		}

		d.Status = model.DispatchPending
		if err := tx.Create(d).Error; err != nil {
			return fmt.Errorf("failed to record dispatch: %w", err)
		}

		var patch model.FoodPatch
		if err := tx.Select("quantity").First(&patch, d.FoodPatchID).Error; err != nil {
			return translate(err)
		}
		remaining = patch.Quantity
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (s *gormStore) PendingDispatch(ctx context.Context, deviceID int64) (*model.FeedDispatch, error) {
	var d model.FeedDispatch
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND status = ?", deviceID, model.DispatchPending).
		Order("dispatched_at DESC, id DESC").
		First(&d).Error
	if err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

// ResolveDispatch settles the latest pending dispatch of the device. On failure
// the dispatched quantity goes back to its food patch.
func (s *gormStore) ResolveDispatch(ctx context.Context, deviceID int64, success bool, at time.Time) (*model.FeedDispatch, error) {
	var d model.FeedDispatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ? AND status = ?", deviceID, model.DispatchPending).
			Order("dispatched_at DESC, id DESC").
			First(&d).Error; err != nil {
			return translate(err)
		}

		status := model.DispatchConfirmed
		if !success {
			status = model.DispatchFailed
			if err := tx.Model(&model.FoodPatch{}).Where("id = ?", d.FoodPatchID).
				Update("quantity", gorm.Expr("quantity + ?", d.Quantity)).Error; err != nil {
				return fmt.Errorf("failed to restore food patch %d: %w", d.FoodPatchID, err)
			}
		}

		res := tx.Model(&model.FeedDispatch{}).
			Where("id = ? AND status = ?", d.ID, model.DispatchPending).
			Updates(map[string]any{"status": status, "resolved_at": at})
		if res.Error != nil {
			return fmt.Errorf("failed to resolve dispatch %d: %w", d.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			// Resolved concurrently; roll back the restore.
			return ErrConflict
		}
		d.Status = status
		d.ResolvedAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}
