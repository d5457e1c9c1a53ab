package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"finfare-backend/internal/model"
)

func (s *gormStore) SubscriptionsForAquarium(ctx context.Context, aquariumID int64) ([]model.PushSubscription, error) {
	var subscriptions []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_aquarium_mapping sam ON sam.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sam.aquarium_id = ?", aquariumID).
		Find(&subscriptions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions for aquarium %d: %w", aquariumID, err)
	}
	return subscriptions, nil
}

// PutSubscription creates or replaces a subscription together with its aquarium list.
func (s *gormStore) PutSubscription(ctx context.Context, sub *model.PushSubscription, aquariumIDs []int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Aquariums").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(sub).Error; err != nil {
			return err
		}

		var aquariums []*model.Aquarium
		if len(aquariumIDs) > 0 {
			if err := tx.Find(&aquariums, aquariumIDs).Error; err != nil {
				return err
			}
		}

		return tx.Model(sub).Association("Aquariums").Replace(aquariums)
	})
}

func (s *gormStore) GetSubscriptionAquariums(ctx context.Context, endpoint string) ([]int64, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Preload("Aquariums", func(db *gorm.DB) *gorm.DB {
		return db.Order("aquariums.id")
	}).First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, translate(err)
	}
	ids := make([]int64, len(sub.Aquariums))
	for i, a := range sub.Aquariums {
		ids[i] = a.ID
	}
	return ids, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Select("Aquariums").Delete(&model.PushSubscription{Endpoint: endpoint}).Error
}
