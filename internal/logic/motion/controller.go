package motion

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/cjeanneret/pansweep/internal/debug"
	"github.com/cjeanneret/pansweep/internal/hw/stepper"
	"github.com/cjeanneret/pansweep/internal/logic/geometry"
)

// Controller drives the motorized pan head during a sweep.
// It sits between the session logic and the stepper, and tracks the
// current pan angle so a camera can read it concurrently.
type Controller struct {
	pan   *stepper.Stepper
	steps *geometry.StepsCalculator

	position atomic.Int64 // signed microsteps from home
	running  atomic.Bool
}

func NewController(pan *stepper.Stepper, steps *geometry.StepsCalculator) *Controller {
	return &Controller{
		pan:   pan,
		steps: steps,
	}
}

// PanAngle returns the current pan angle in degrees relative to home.
func (c *Controller) PanAngle() float64 {
	return c.steps.AngleFromPanSteps(int(c.position.Load()))
}

// Running reports whether a sweep or return move is in progress.
func (c *Controller) Running() bool {
	return c.running.Load()
}

// Sweep rotates the head by angleDeg (sign gives the direction), holding
// torque only while moving. It returns early with ctx's error when cancelled.
func (c *Controller) Sweep(ctx context.Context, angleDeg float64) error {
	return c.move(ctx, c.steps.PanStepsFromAngle(angleDeg))
}

// Return moves the head back to the home position.
func (c *Controller) Return(ctx context.Context) error {
	return c.move(ctx, -int(c.position.Load()))
}

func (c *Controller) move(ctx context.Context, steps int) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("rig already moving")
	}
	defer c.running.Store(false)

	if err := c.EnableMotors(); err != nil {
		return fmt.Errorf("enable pan motor: %w", err)
	}
	defer func() {
		if err := c.DisableMotors(); err != nil {
			debug.Error(fmt.Errorf("disable pan motor: %w", err))
		}
	}()

	debug.Live("Rig: moving %d steps from %.1f°", steps, c.PanAngle())
	_, err := c.pan.MoveSteps(ctx, steps, func(d int) { c.position.Add(int64(d)) })
	return err
}

// EnableMotors turns on the pan driver.
func (c *Controller) EnableMotors() error {
	return c.pan.Enable()
}

// DisableMotors lets the pan axis freewheel.
func (c *Controller) DisableMotors() error {
	return c.pan.Disable()
}
