package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Domain errors for the store package. Check them with errors.Is.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned when a device address or an aquarium is already provisioned.
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict is returned when the database rejects a write because of a unique constraint.
	ErrConflict = errors.New("store: conflict")

	// ErrInsufficientFood is returned when a food patch holds less than the requested quantity.
	ErrInsufficientFood = errors.New("store: insufficient food")
)

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
