package store

import (
	"context"

	"finfare-backend/internal/model"
)

func (s *gormStore) SaveWaterParameter(ctx context.Context, p *model.WaterParameter) error {
	return s.db.WithContext(ctx).Create(p).Error
}

// ListWaterParameters returns the newest readings of an aquarium first.
func (s *gormStore) ListWaterParameters(ctx context.Context, aquariumID int64, limit int) ([]model.WaterParameter, error) {
	var params []model.WaterParameter
	q := s.db.WithContext(ctx).Where("aquarium_id = ?", aquariumID).Order("measured_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&params).Error; err != nil {
		return nil, err
	}
	return params, nil
}

func (s *gormStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	return s.db.WithContext(ctx).Create(n).Error
}
