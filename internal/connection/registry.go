// Package connection keeps track of the live channel of every connected device.
package connection

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	// ErrDeviceNotConnected is returned when no channel is registered for an address.
	ErrDeviceNotConnected = errors.New("connection: device not connected")

	// ErrChannelClosed is returned when writing to a channel that was already closed.
	ErrChannelClosed = errors.New("connection: channel closed")
)

// Channel is a bidirectional link to one device.
type Channel interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

// Registry maps device addresses to their live channel. At most one channel
// is registered per address.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// Connect registers ch for address, replacing and closing any previous channel.
func (r *Registry) Connect(address string, ch Channel) {
	r.mu.Lock()
	old, existed := r.channels[address]
	r.channels[address] = ch
	r.mu.Unlock()

	if existed && old != ch {
		log.Info().Str("address", address).Str("channel", old.ID()).Msg("replacing device connection")
		if err := old.Close(); err != nil {
			log.Debug().Err(err).Str("address", address).Msg("closing replaced channel")
		}
	}
	log.Info().Str("address", address).Str("channel", ch.ID()).Msg("device connected")
}

// Disconnect removes the channel registered for address and closes it, so the
// session reading from it ends. It reports whether a channel was registered.
func (r *Registry) Disconnect(address string) bool {
	r.mu.Lock()
	ch, existed := r.channels[address]
	delete(r.channels, address)
	r.mu.Unlock()

	if !existed {
		return false
	}
	if err := ch.Close(); err != nil {
		log.Debug().Err(err).Str("address", address).Msg("closing disconnected channel")
	}
	log.Info().Str("address", address).Str("channel", ch.ID()).Msg("device disconnected")
	return true
}

// Release removes address only while ch is still its registered channel, so a
// superseded connection tearing down does not evict its replacement.
func (r *Registry) Release(address string, ch Channel) bool {
	r.mu.Lock()
	current, ok := r.channels[address]
	removed := ok && current == ch
	if removed {
		delete(r.channels, address)
	}
	r.mu.Unlock()

	if removed {
		log.Info().Str("address", address).Str("channel", ch.ID()).Msg("device disconnected")
	}
	return removed
}

// IsConnected reports whether a channel is registered for address.
func (r *Registry) IsConnected(address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[address]
	return ok
}

// Send writes payload to the channel of address. A channel that fails to
// write is evicted and closed.
func (r *Registry) Send(address string, payload []byte) error {
	r.mu.RLock()
	ch, ok := r.channels[address]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotConnected, address)
	}

	if err := ch.Send(payload); err != nil {
		if r.Release(address, ch) {
			ch.Close()
		}
		return fmt.Errorf("send to %s: %w", address, err)
	}
	return nil
}

// Count returns the number of connected devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// CloseAll closes and removes every channel.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	channels := r.channels
	r.channels = make(map[string]Channel)
	r.mu.Unlock()

	for address, ch := range channels {
		if err := ch.Close(); err != nil {
			log.Debug().Err(err).Str("address", address).Msg("closing channel")
		}
	}
}
