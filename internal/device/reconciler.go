package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"finfare-backend/internal/model"
	"finfare-backend/internal/protocol"
	"finfare-backend/internal/store"
)

// Sync commands.
const (
	SyncToggle       = "toggle"
	SyncStatusUpdate = protocol.ActionStatusUpdate
)

// Store is the persistence the device package needs.
type Store interface {
	GetDeviceByAddress(ctx context.Context, address string) (*model.Device, error)
	GetDeviceByAquarium(ctx context.Context, aquariumID int64) (*model.Device, error)
	SetDeviceActive(ctx context.Context, deviceID int64, active bool) error
	TouchDevice(ctx context.Context, deviceID int64, at time.Time) error
	SaveWaterParameter(ctx context.Context, p *model.WaterParameter) error
}

// Reconciler pushes the stored active flag to a device so that the device
// agrees with the server after every (re)connect.
type Reconciler struct {
	store       Store
	dispatcher  *Dispatcher
	syncCommand string
	now         func() time.Time
}

// NewReconciler creates a reconciler. syncCommand selects activate/deactivate
// ("toggle") or status_update frames.
func NewReconciler(st Store, dispatcher *Dispatcher, syncCommand string) *Reconciler {
	if syncCommand != SyncStatusUpdate {
		syncCommand = SyncToggle
	}
	return &Reconciler{
		store:       st,
		dispatcher:  dispatcher,
		syncCommand: syncCommand,
		now:         time.Now,
	}
}

// Reconcile looks up the device at address, pushes its desired state and
// stamps it as seen. Repeating it sends the same command again and changes nothing else.
func (r *Reconciler) Reconcile(ctx context.Context, address string) error {
	dev, err := r.store.GetDeviceByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownDevice, address)
		}
		return fmt.Errorf("failed to load device %s: %w", address, err)
	}

	if err := r.Push(ctx, dev); err != nil {
		return fmt.Errorf("failed to push state to %s: %w", address, err)
	}

	if err := r.store.TouchDevice(ctx, dev.ID, r.now()); err != nil {
		log.Warn().Err(err).Str("address", address).Msg("failed to stamp device last seen")
	}
	log.Info().Str("address", address).Bool("active", dev.IsActive).Msg("device state reconciled")
	return nil
}

// Push sends the stored active flag of dev.
func (r *Reconciler) Push(ctx context.Context, dev *model.Device) error {
	if r.syncCommand == SyncStatusUpdate {
		return r.dispatcher.StatusUpdate(ctx, dev.UniqueAddress, dev.IsActive)
	}
	if dev.IsActive {
		return r.dispatcher.Activate(ctx, dev.UniqueAddress)
	}
	return r.dispatcher.Deactivate(ctx, dev.UniqueAddress)
}
