// Package feeding runs feed transactions: it checks the device and its food,
// dispatches the feed and keeps the inventory in step with what the device reports.
package feeding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"finfare-backend/config"
	"finfare-backend/internal/model"
	"finfare-backend/internal/store"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrDeviceInactive = errors.New("device inactive")
	ErrNoFoodPatch    = errors.New("no food patch")
	ErrFoodDepleted   = errors.New("food depleted")
	// ErrFeedInFlight is returned while the previous feed of the device awaits its result.
	ErrFeedInFlight = errors.New("feed in progress")
)

// Store is the persistence a feed transaction needs.
type Store interface {
	GetDeviceByAquarium(ctx context.Context, aquariumID int64) (*model.Device, error)
	GetDeviceByAddress(ctx context.Context, address string) (*model.Device, error)
	FindFoodPatch(ctx context.Context, deviceID int64, foodType string) (*model.FoodPatch, error)
	ConsumeFood(ctx context.Context, d *model.FeedDispatch) (float64, error)
	PendingDispatch(ctx context.Context, deviceID int64) (*model.FeedDispatch, error)
	ResolveDispatch(ctx context.Context, deviceID int64, success bool, at time.Time) (*model.FeedDispatch, error)
}

// Commander sends feed commands to devices.
type Commander interface {
	Feed(ctx context.Context, address, foodType string, quantity int, duration float64) error
}

// Notifier queues a notification for an aquarium.
type Notifier interface {
	Notify(aquariumID int64, kind, message string)
}

// Request asks for one feed of an aquarium. An empty FoodType uses the first patch.
type Request struct {
	AquariumID int64
	FoodType   string
	Source     string
}

// Result is the outcome reported to callers.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Service executes feed transactions.
type Service struct {
	store     Store
	commander Commander
	notifier  Notifier
	cfg       config.FeedingConfig
	now       func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewService creates a feeding service.
func NewService(st Store, commander Commander, notifier Notifier, cfg config.FeedingConfig) *Service {
	return &Service{
		store:     st,
		commander: commander,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
		locks:     make(map[int64]*sync.Mutex),
	}
}

// FeedNow feeds one portion to the aquarium's device. The food patch is
// decremented only after the command was written to the device.
func (s *Service) FeedNow(ctx context.Context, req Request) (Result, error) {
	err := s.feed(ctx, req)
	if err != nil {
		log.Warn().Err(err).Int64("aquarium_id", req.AquariumID).Str("source", req.Source).Msg("feed rejected")
		return Result{Status: StatusError, Message: reason(err)}, err
	}
	return Result{Status: StatusSuccess, Message: "feeding started"}, nil
}

func (s *Service) feed(ctx context.Context, req Request) error {
	dev, err := s.store.GetDeviceByAquarium(ctx, req.AquariumID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDeviceNotFound
		}
		return fmt.Errorf("failed to load device: %w", err)
	}

	unlock := s.lockDevice(dev.ID)
	defer unlock()

	if !dev.IsActive {
		return ErrDeviceInactive
	}

	patch, err := s.store.FindFoodPatch(ctx, dev.ID, req.FoodType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoFoodPatch
		}
		return fmt.Errorf("failed to load food patch: %w", err)
	}

	portion := float64(s.cfg.Portion)
	if patch.Quantity <= 0 || patch.Quantity < portion {
		return ErrFoodDepleted
	}

	if s.cfg.AckTimeout > 0 {
		pending, err := s.store.PendingDispatch(ctx, dev.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to load pending feed: %w", err)
		}
		if pending != nil && s.now().Sub(pending.DispatchedAt) < s.cfg.AckTimeout {
			return ErrFeedInFlight
		}
	}

	if err := s.commander.Feed(ctx, dev.UniqueAddress, patch.FoodType, s.cfg.Portion, s.cfg.DurationSeconds); err != nil {
		return fmt.Errorf("failed to dispatch feed: %w", err)
	}

	source := req.Source
	if source == "" {
		source = model.SourceManual
	}
	remaining, err := s.store.ConsumeFood(ctx, &model.FeedDispatch{
		DeviceID:     dev.ID,
		FoodPatchID:  patch.ID,
		FoodType:     patch.FoodType,
		Quantity:     portion,
		Source:       source,
		DispatchedAt: s.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientFood) {
			// The device already got the command; nothing left to record.
			log.Error().Int64("patch_id", patch.ID).Msg("food patch emptied while feeding")
			return ErrFoodDepleted
		}
		// The device is feeding but the inventory was not decremented.
		log.Error().
			Err(err).
			Str("address", dev.UniqueAddress).
			Int64("patch_id", patch.ID).
			Float64("quantity", portion).
			Msg("feed dispatched but unrecorded")
		return fmt.Errorf("failed to record feed: %w", err)
	}

	log.Info().
		Str("address", dev.UniqueAddress).
		Str("food_type", patch.FoodType).
		Float64("remaining", remaining).
		Str("source", source).
		Msg("feed dispatched")

	if remaining < portion {
		s.notify(dev.AquariumID, fmt.Sprintf("Food %q is running out: %.0f left", patch.Name, remaining))
	}
	return nil
}

// HandleFeedResult settles the latest pending feed of the device at address.
// A failed feed gives its portion back to the food patch.
func (s *Service) HandleFeedResult(ctx context.Context, address string, success bool) error {
	dev, err := s.store.GetDeviceByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
		}
		return err
	}

	unlock := s.lockDevice(dev.ID)
	defer unlock()

	dispatch, err := s.store.ResolveDispatch(ctx, dev.ID, success, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn().Str("address", address).Bool("success", success).Msg("feed result without a pending feed")
			return nil
		}
		return fmt.Errorf("failed to resolve feed: %w", err)
	}

	if success {
		log.Info().Str("address", address).Int64("dispatch_id", dispatch.ID).Msg("feed confirmed")
		return nil
	}

	log.Warn().
		Str("address", address).
		Int64("dispatch_id", dispatch.ID).
		Float64("restored", dispatch.Quantity).
		Msg("feed failed on device; food restored")
	s.notify(dev.AquariumID, fmt.Sprintf("Feeding with %s failed on the device", dispatch.FoodType))
	return nil
}

func (s *Service) notify(aquariumID int64, message string) {
	if s.notifier != nil {
		s.notifier.Notify(aquariumID, model.NotificationFeeding, message)
	}
}

// lockDevice serializes feed transactions of one device.
func (s *Service) lockDevice(deviceID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[deviceID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[deviceID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// reason returns the message shown to callers for err.
func reason(err error) string {
	for _, known := range []error{ErrDeviceNotFound, ErrDeviceInactive, ErrNoFoodPatch, ErrFoodDepleted, ErrFeedInFlight} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}
