package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"finfare-backend/config"
	"finfare-backend/internal/model"
	"finfare-backend/internal/protocol"
	"finfare-backend/internal/store"
)

// Notifier queues a notification for an aquarium.
type Notifier interface {
	Notify(aquariumID int64, kind, message string)
}

// Telemetry stores water readings and raises an alert for out-of-range ones.
type Telemetry struct {
	store    Store
	notifier Notifier
	limits   config.WaterQualityConfig
	now      func() time.Time
}

func NewTelemetry(st Store, notifier Notifier, limits config.WaterQualityConfig) *Telemetry {
	return &Telemetry{store: st, notifier: notifier, limits: limits, now: time.Now}
}

// Record saves a reading reported by the device at address. The server clock
// sets the measurement time.
func (t *Telemetry) Record(ctx context.Context, address string, p protocol.WaterParameters) error {
	dev, err := t.store.GetDeviceByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownDevice, address)
		}
		return err
	}

	reading := &model.WaterParameter{
		AquariumID:  dev.AquariumID,
		MeasuredAt:  t.now(),
		PH:          p.PH,
		Temperature: p.Temperature,
		Salinity:    p.Salinity,
		OxygenLevel: p.OxygenLevel,
	}
	if err := t.store.SaveWaterParameter(ctx, reading); err != nil {
		return fmt.Errorf("failed to save water parameters: %w", err)
	}

	if problems := t.check(p); len(problems) > 0 && t.notifier != nil {
		msg := "Water quality alert: " + strings.Join(problems, "; ")
		log.Warn().Int64("aquarium_id", dev.AquariumID).Msg(msg)
		t.notifier.Notify(dev.AquariumID, model.NotificationWaterQuality, msg)
	}
	return nil
}

// check lists the readings outside the configured bounds. Zero bounds are skipped.
func (t *Telemetry) check(p protocol.WaterParameters) []string {
	var problems []string
	low := func(name string, v, bound float64) {
		if bound != 0 && v < bound {
			problems = append(problems, fmt.Sprintf("%s %.2f below %.2f", name, v, bound))
		}
	}
	high := func(name string, v, bound float64) {
		if bound != 0 && v > bound {
			problems = append(problems, fmt.Sprintf("%s %.2f above %.2f", name, v, bound))
		}
	}

	low("pH", p.PH, t.limits.PHMin)
	high("pH", p.PH, t.limits.PHMax)
	low("temperature", p.Temperature, t.limits.TemperatureMin)
	high("temperature", p.Temperature, t.limits.TemperatureMax)
	low("oxygen", p.OxygenLevel, t.limits.OxygenMin)
	return problems
}
