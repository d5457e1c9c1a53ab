package device

import "errors"

var (
	// ErrUnknownDevice is returned when no device is provisioned for an address or aquarium.
	ErrUnknownDevice = errors.New("device: unknown device")

	// ErrAlreadyActive is returned when activating a device that is already active.
	ErrAlreadyActive = errors.New("device: already active")

	// ErrAlreadyInactive is returned when deactivating a device that is already inactive.
	ErrAlreadyInactive = errors.New("device: already inactive")
)
