// Package device drives feeder devices: it sends commands, keeps their
// active flag in sync and routes what they report back.
package device

import (
	"context"

	"github.com/rs/zerolog/log"

	"finfare-backend/internal/protocol"
)

// Sender delivers raw frames to connected devices.
type Sender interface {
	Send(address string, payload []byte) error
	IsConnected(address string) bool
}

// Dispatcher sends typed commands to devices. Delivery is fire-and-forget:
// success means the frame was written to a live channel.
type Dispatcher struct {
	sender Sender
}

// NewDispatcher creates a dispatcher on top of sender.
func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// Dispatch validates and sends cmd to the device at address.
func (d *Dispatcher) Dispatch(ctx context.Context, address string, cmd protocol.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := cmd.Encode()
	if err != nil {
		return err
	}
	if err := d.sender.Send(address, payload); err != nil {
		return err
	}
	log.Debug().Str("address", address).Str("action", cmd.Action).Msg("command sent")
	return nil
}

func (d *Dispatcher) Activate(ctx context.Context, address string) error {
	return d.Dispatch(ctx, address, protocol.Activate())
}

func (d *Dispatcher) Deactivate(ctx context.Context, address string) error {
	return d.Dispatch(ctx, address, protocol.Deactivate())
}

// Feed asks the device to release quantity portions of foodType over duration seconds.
func (d *Dispatcher) Feed(ctx context.Context, address, foodType string, quantity int, duration float64) error {
	return d.Dispatch(ctx, address, protocol.Feed(foodType, quantity, duration))
}

func (d *Dispatcher) StatusUpdate(ctx context.Context, address string, active bool) error {
	return d.Dispatch(ctx, address, protocol.StatusUpdate(active))
}

// IsConnected reports whether the device at address has a live channel.
func (d *Dispatcher) IsConnected(address string) bool {
	return d.sender.IsConnected(address)
}
