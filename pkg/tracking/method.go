// Package tracking exposes capture backends as selectable methods.
//
// A Method turns user actions (start a color, depth or infrared stream,
// stop) into capture sessions. The Manager keeps the registered methods
// and guarantees that at most one of them is capturing at any time.
package tracking

import (
	"context"
	"errors"
	"fmt"

	"github.com/teslashibe/go-depthcam/pkg/capture"
	"github.com/teslashibe/go-depthcam/pkg/device"
)

var (
	// ErrUnknownAction is returned for actions a method does not offer.
	ErrUnknownAction = errors.New("tracking: unknown action")

	// ErrUnknownMethod is returned when selecting an unregistered method.
	ErrUnknownMethod = errors.New("tracking: unknown method")

	// ErrNoMethodSelected is returned when invoking with nothing selected.
	ErrNoMethodSelected = errors.New("tracking: no method selected")

	// ErrDuplicateMethod is returned when registering a name twice.
	ErrDuplicateMethod = errors.New("tracking: method already registered")
)

// Action is a user command offered by a method.
type Action string

const (
	ActionStartColor    Action = "start_color"
	ActionStartDepth    Action = "start_depth"
	ActionStartInfrared Action = "start_infrared"
	ActionStop          Action = "stop"
)

// StreamActions are the actions every capture method offers, in display order.
var StreamActions = []Action{
	ActionStartColor,
	ActionStartDepth,
	ActionStartInfrared,
	ActionStop,
}

// StreamKind returns the stream started by a, if any.
func (a Action) StreamKind() (device.StreamKind, bool) {
	switch a {
	case ActionStartColor:
		return device.StreamColor, true
	case ActionStartDepth:
		return device.StreamDepth, true
	case ActionStartInfrared:
		return device.StreamInfrared, true
	default:
		return "", false
	}
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	switch a {
	case ActionStartColor, ActionStartDepth, ActionStartInfrared, ActionStop:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// Status is a snapshot of a method's capture state.
type Status struct {
	Method     string            `json:"method"`
	Backend    string            `json:"backend"`
	State      capture.State     `json:"state"`
	Session    string            `json:"session,omitempty"`
	Kind       device.StreamKind `json:"kind,omitempty"`
	Resolution device.Resolution `json:"resolution"`
	Stats      capture.Stats     `json:"stats"`
	LastError  string            `json:"last_error,omitempty"`
}

// Method is a selectable capture backend.
type Method interface {
	// Name is the unique display name, e.g. "OpenNI".
	Name() string

	// AvailableActions lists the actions Invoke accepts.
	AvailableActions() []Action

	// Invoke performs an action. Start actions replace any running stream.
	Invoke(ctx context.Context, action Action) error

	// Status reports the current capture state.
	Status() Status

	// Close stops any running stream and waits for it to finish.
	Close() error
}
