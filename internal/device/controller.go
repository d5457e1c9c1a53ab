package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"finfare-backend/internal/store"
)

// Controller applies operator activation changes.
type Controller struct {
	store      Store
	reconciler *Reconciler
}

func NewController(st Store, reconciler *Reconciler) *Controller {
	return &Controller{store: st, reconciler: reconciler}
}

// SetActive stores the desired flag of the aquarium's device and pushes it
// when the device is online. delivered is false when the device is offline;
// it picks the flag up on its next connect.
func (c *Controller) SetActive(ctx context.Context, aquariumID int64, active bool) (delivered bool, err error) {
	dev, err := c.store.GetDeviceByAquarium(ctx, aquariumID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, fmt.Errorf("%w: aquarium %d", ErrUnknownDevice, aquariumID)
		}
		return false, err
	}

	if dev.IsActive == active {
		if active {
			return false, ErrAlreadyActive
		}
		return false, ErrAlreadyInactive
	}

	if err := c.store.SetDeviceActive(ctx, dev.ID, active); err != nil {
		return false, fmt.Errorf("failed to store active flag: %w", err)
	}
	dev.IsActive = active

	if !c.reconciler.dispatcher.IsConnected(dev.UniqueAddress) {
		log.Info().Str("address", dev.UniqueAddress).Bool("active", active).Msg("device offline; state will sync on reconnect")
		return false, nil
	}
	if err := c.reconciler.Push(ctx, dev); err != nil {
		log.Warn().Err(err).Str("address", dev.UniqueAddress).Msg("failed to push state; will sync on reconnect")
		return false, nil
	}
	return true, nil
}
