package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"finfare-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	GetAquarium(ctx context.Context, id int64) (*model.Aquarium, error)

	CreateDevice(ctx context.Context, d *model.Device) error
	GetDeviceByAquarium(ctx context.Context, aquariumID int64) (*model.Device, error)
	GetDeviceByAddress(ctx context.Context, address string) (*model.Device, error)
	UpdateDevice(ctx context.Context, deviceID int64, changes DeviceChanges) (*model.Device, error)
	SetDeviceActive(ctx context.Context, deviceID int64, active bool) error
	TouchDevice(ctx context.Context, deviceID int64, at time.Time) error

	ListFoodPatches(ctx context.Context, deviceID int64) ([]model.FoodPatch, error)
	GetFoodPatch(ctx context.Context, id int64) (*model.FoodPatch, error)
	FindFoodPatch(ctx context.Context, deviceID int64, foodType string) (*model.FoodPatch, error)
	CreateFoodPatch(ctx context.Context, p *model.FoodPatch) error
	UpdateFoodPatch(ctx context.Context, p *model.FoodPatch) error
	DeleteFoodPatch(ctx context.Context, id int64) error
	ConsumeFood(ctx context.Context, d *model.FeedDispatch) (float64, error)
	PendingDispatch(ctx context.Context, deviceID int64) (*model.FeedDispatch, error)
	ResolveDispatch(ctx context.Context, deviceID int64, success bool, at time.Time) (*model.FeedDispatch, error)

	CreateFeedingSchedule(ctx context.Context, s *model.FeedingSchedule) error
	GetFeedingSchedule(ctx context.Context, id int64) (*model.FeedingSchedule, error)
	ListFeedingSchedules(ctx context.Context) ([]model.FeedingSchedule, error)
	ListAquariumSchedules(ctx context.Context, aquariumID int64) ([]model.FeedingSchedule, error)
	UpdateFeedingSchedule(ctx context.Context, s *model.FeedingSchedule) error
	DeleteFeedingSchedule(ctx context.Context, id int64) error
	MarkScheduleRun(ctx context.Context, id int64, at time.Time) error

	SaveWaterParameter(ctx context.Context, p *model.WaterParameter) error
	ListWaterParameters(ctx context.Context, aquariumID int64, limit int) ([]model.WaterParameter, error)

	CreateNotification(ctx context.Context, n *model.Notification) error
	SubscriptionsForAquarium(ctx context.Context, aquariumID int64) ([]model.PushSubscription, error)
	PutSubscription(ctx context.Context, sub *model.PushSubscription, aquariumIDs []int64) error
	GetSubscriptionAquariums(ctx context.Context, endpoint string) ([]int64, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// DeviceChanges lists the device fields an operator may change. Nil fields are left alone.
type DeviceChanges struct {
	UniqueAddress *string
	AquariumID    *int64
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) GetAquarium(ctx context.Context, id int64) (*model.Aquarium, error) {
	var a model.Aquarium
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}
