// Package service starts and stops the control units of OpenStack services.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Action is a lifecycle verb.
type Action string

const (
	Start Action = "start"
	Stop  Action = "stop"
)

// ParseAction validates a lifecycle verb.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case Start, Stop:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown service action %q (want start or stop)", s)
}

// ControlError reports a unit the service manager failed to control.
type ControlError struct {
	Unit   string
	Action Action
	Err    error
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Action, e.Unit, e.Err)
}

func (e *ControlError) Unwrap() error { return e.Err }

// Backend performs a single unit transition.
type Backend interface {
	Control(ctx context.Context, action Action, unit string) error
	Name() string
}

// UnitResolver expands a service name into its control units.
type UnitResolver interface {
	Units(name string) []string
}

// Controller drives units through a Backend.
type Controller struct {
	Backend Backend
	Units   UnitResolver
	Log     *zap.Logger
}

// NewController returns a Controller. A nil resolver treats every name as a
// unit name.
func NewController(b Backend, units UnitResolver, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{Backend: b, Units: units, Log: log}
}

// SetState applies action to every unit of names, in order. A service name
// expands to its units in stop order, reversed for Start. Every unit is
// attempted. With ignoreErrors, failures are only logged; otherwise the
// first one is returned as *ControlError.
func (c *Controller) SetState(ctx context.Context, action Action, names []string, ignoreErrors bool) error {
	if _, err := ParseAction(string(action)); err != nil {
		return err
	}
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	var first error
	for _, name := range names {
		units := []string{name}
		if c.Units != nil {
			units = c.Units.Units(name)
		}
		if action == Start {
			units = reverse(units)
		}
		for _, unit := range units {
			if err := ctx.Err(); err != nil {
				return err
			}
			log.Info("service control", zap.String("unit", unit), zap.String("action", string(action)), zap.String("backend", c.Backend.Name()))
			err := c.Backend.Control(ctx, action, unit)
			if err == nil {
				continue
			}
			if ignoreErrors {
				log.Warn("service control failed, ignoring", zap.String("unit", unit), zap.String("action", string(action)), zap.Error(err))
				continue
			}
			log.Error("service control failed", zap.String("unit", unit), zap.String("action", string(action)), zap.Error(err))
			if first == nil {
				first = &ControlError{Unit: unit, Action: action, Err: err}
			}
		}
	}
	return first
}

func reverse(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[len(in)-1-i] = s
	}
	return out
}
