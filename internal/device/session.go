package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"finfare-backend/internal/connection"
	"finfare-backend/internal/protocol"
)

// FeedResultHandler settles the outcome of a feed reported by a device.
type FeedResultHandler interface {
	HandleFeedResult(ctx context.Context, address string, success bool) error
}

// Sessions runs the read loop of every device connection.
type Sessions struct {
	registry   *connection.Registry
	reconciler *Reconciler
	feeds      FeedResultHandler
	telemetry  *Telemetry
}

func NewSessions(registry *connection.Registry, reconciler *Reconciler, feeds FeedResultHandler, telemetry *Telemetry) *Sessions {
	return &Sessions{
		registry:   registry,
		reconciler: reconciler,
		feeds:      feeds,
		telemetry:  telemetry,
	}
}

// Serve registers stream as the channel of address, reconciles the device and
// handles its messages one at a time until the stream ends or ctx is done.
// The registry entry is released on return unless a newer connection replaced it.
func (s *Sessions) Serve(ctx context.Context, address string, stream connection.Stream) error {
	s.registry.Connect(address, stream)
	defer func() {
		s.registry.Release(address, stream)
		stream.Close()
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-stop:
		}
	}()

	if err := s.reconciler.Reconcile(ctx, address); err != nil {
		log.Warn().Err(err).Str("address", address).Msg("initial reconcile failed")
	}

	for {
		data, err := stream.Read()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, connection.ErrChannelClosed) {
				return nil
			}
			return fmt.Errorf("read from %s: %w", address, err)
		}
		s.handle(ctx, address, data)
	}
}

// handle routes one inbound frame. Errors and panics stay within the message.
func (s *Sessions) handle(ctx context.Context, address string, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("address", address).Msg("device message handler panicked")
		}
	}()

	msg, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("address", address).Msg("dropping device message")
		return
	}

	switch msg.Action {
	case protocol.ActionIdentify:
		err = s.reconciler.Reconcile(ctx, address)
	case protocol.ActionFeedResult:
		err = s.feeds.HandleFeedResult(ctx, address, *msg.Success)
	case protocol.ActionWaterParameters:
		err = s.telemetry.Record(ctx, address, *msg.Parameters)
	default:
		log.Warn().Str("address", address).Str("action", msg.Action).Msg("unknown device action")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("address", address).Str("action", msg.Action).Msg("failed to handle device message")
	}
}
