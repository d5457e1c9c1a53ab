// Package protocol defines the JSON messages exchanged with feeder devices.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Outbound actions.
const (
	ActionActivate     = "activate"
	ActionDeactivate   = "deactivate"
	ActionFeed         = "feed"
	ActionStatusUpdate = "status_update"
)

// Inbound actions.
const (
	ActionIdentify        = "identify"
	ActionFeedResult      = "feed_result"
	ActionWaterParameters = "water_parameters"
)

var (
	// ErrMalformedMessage is returned when an inbound frame is not a JSON object with an action.
	ErrMalformedMessage = errors.New("protocol: malformed message")

	// ErrInvalidCommand is returned when an outbound command is missing required fields.
	ErrInvalidCommand = errors.New("protocol: invalid command")
)

// Command is a server-to-device message.
type Command struct {
	Action   string  `json:"action"`
	FoodType string  `json:"food_type,omitempty"`
	Quantity int     `json:"quantity,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// Activate builds an activate command.
func Activate() Command { return Command{Action: ActionActivate} }

// Deactivate builds a deactivate command.
func Deactivate() Command { return Command{Action: ActionDeactivate} }

// Feed builds a feed command. duration is in seconds.
func Feed(foodType string, quantity int, duration float64) Command {
	return Command{Action: ActionFeed, FoodType: foodType, Quantity: quantity, Duration: duration}
}

// StatusUpdate builds a command carrying the desired active flag.
func StatusUpdate(active bool) Command {
	return Command{Action: ActionStatusUpdate, IsActive: &active}
}

// Validate checks that the command is complete for its action.
func (c Command) Validate() error {
	switch c.Action {
	case ActionActivate, ActionDeactivate:
		return nil
	case ActionFeed:
		if c.Quantity <= 0 {
			return fmt.Errorf("%w: feed quantity must be positive, got %d", ErrInvalidCommand, c.Quantity)
		}
		if c.Duration < 0 {
			return fmt.Errorf("%w: feed duration must not be negative", ErrInvalidCommand)
		}
		return nil
	case ActionStatusUpdate:
		if c.IsActive == nil {
			return fmt.Errorf("%w: status_update needs is_active", ErrInvalidCommand)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, c.Action)
	}
}

// Encode validates the command and returns its wire form.
func (c Command) Encode() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

// WaterParameters is the telemetry payload of a water_parameters message.
type WaterParameters struct {
	PH          float64 `json:"ph"`
	Temperature float64 `json:"temperature"`
	Salinity    float64 `json:"salinity"`
	OxygenLevel float64 `json:"oxygen_level"`
}

// Message is a device-to-server message. Only the fields of its action are set.
type Message struct {
	Action     string           `json:"action"`
	Success    *bool            `json:"success,omitempty"`
	Parameters *WaterParameters `json:"parameters,omitempty"`
}

// Decode parses an inbound frame. Unknown actions decode fine and are left to the caller.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Action == "" {
		return nil, fmt.Errorf("%w: missing action", ErrMalformedMessage)
	}

	switch msg.Action {
	case ActionFeedResult:
		if msg.Success == nil {
			return nil, fmt.Errorf("%w: feed_result without success", ErrMalformedMessage)
		}
	case ActionWaterParameters:
		if msg.Parameters == nil {
			return nil, fmt.Errorf("%w: water_parameters without parameters", ErrMalformedMessage)
		}
	}
	return &msg, nil
}
