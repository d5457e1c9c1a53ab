package store

import (
	"context"
	"fmt"
	"time"

	"finfare-backend/internal/model"
)

func (s *gormStore) CreateFeedingSchedule(ctx context.Context, sch *model.FeedingSchedule) error {
	if _, err := s.GetAquarium(ctx, sch.AquariumID); err != nil {
		return fmt.Errorf("aquarium %d: %w", sch.AquariumID, err)
	}
	return s.db.WithContext(ctx).Create(sch).Error
}

func (s *gormStore) GetFeedingSchedule(ctx context.Context, id int64) (*model.FeedingSchedule, error) {
	var sch model.FeedingSchedule
	if err := s.db.WithContext(ctx).First(&sch, id).Error; err != nil {
		return nil, translate(err)
	}
	return &sch, nil
}

func (s *gormStore) ListFeedingSchedules(ctx context.Context) ([]model.FeedingSchedule, error) {
	var schedules []model.FeedingSchedule
	if err := s.db.WithContext(ctx).Order("id").Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("failed to list feeding schedules: %w", err)
	}
	return schedules, nil
}

func (s *gormStore) ListAquariumSchedules(ctx context.Context, aquariumID int64) ([]model.FeedingSchedule, error) {
	var schedules []model.FeedingSchedule
	if err := s.db.WithContext(ctx).Where("aquarium_id = ?", aquariumID).Order("scheduled_time, id").Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

// UpdateFeedingSchedule changes the food type and time of day. The aquarium
// and the last run stamp are kept.
func (s *gormStore) UpdateFeedingSchedule(ctx context.Context, sch *model.FeedingSchedule) error {
	res := s.db.WithContext(ctx).Model(&model.FeedingSchedule{}).Where("id = ?", sch.ID).
		Updates(map[string]any{"food_type": sch.FoodType, "scheduled_time": sch.ScheduledTime, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to update feeding schedule %d: %w", sch.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) DeleteFeedingSchedule(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&model.FeedingSchedule{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) MarkScheduleRun(ctx context.Context, id int64, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.FeedingSchedule{ID: id}).Update("last_run_at", at)
	if res.Error != nil {
		return fmt.Errorf("failed to stamp feeding schedule %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
