package stepper

import (
	"context"
	"time"

	"github.com/cjeanneret/pansweep/internal/config"
	"github.com/cjeanneret/pansweep/internal/debug"
	"github.com/cjeanneret/pansweep/internal/hw/gpio"
)

// Config holds the hardware configuration for a stepper motor.
type Config struct {
	StepPin       int
	DirPin        int
	EnablePin     int // A4988 ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	StepsPerRev   int
	Microstepping int
	StepDelay     time.Duration // delay per half-cycle of STEP pulse. Total step = 2*StepDelay.
}

// ConfigFrom builds the pan stepper configuration of the rig.
func ConfigFrom(cfg *config.Config) Config {
	sc := cfg.Rig.PanStepper
	return Config{
		StepPin:       sc.StepPin,
		DirPin:        sc.DirPin,
		EnablePin:     sc.EnablePin,
		StepsPerRev:   sc.StepsPerRev,
		Microstepping: sc.Microstepping,
		StepDelay:     cfg.RigStepDelay(),
	}
}

// Stepper drives an A4988-style STEP/DIR motor driver.
type Stepper struct {
	gpio  gpio.Driver
	cfg   Config
	delay time.Duration // delay between STEP pulse half-cycles
}

// NewStepper creates a new stepper motor controller.
// cfg.StepDelay: if 0, defaults to 1ms.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.SetupPin(cfg.DirPin, gpio.Output)

	delay := cfg.StepDelay
	if delay <= 0 {
		delay = 1 * time.Millisecond
	}

	s := &Stepper{
		gpio:  g,
		cfg:   cfg,
		delay: delay,
	}

	// A4988 ENABLE: active LOW. Start disabled, the rig only holds during a sweep.
	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin, gpio.Output)
		_ = g.WritePin(cfg.EnablePin, gpio.High)
	}

	return s
}

// StepPeriod returns the duration of one full STEP pulse.
func (s *Stepper) StepPeriod() time.Duration {
	return 2 * s.delay
}

// MoveSteps moves the motor by a number of steps (positive or negative).
// onStep, if non-nil, is called after each pulse with +1 or -1.
// It stops early when ctx is done and returns the signed number of steps made.
func (s *Stepper) MoveSteps(ctx context.Context, steps int, onStep func(delta int)) (int, error) {
	if steps == 0 {
		return 0, nil
	}

	dirLevel := gpio.High
	delta := 1
	direction := "forward"
	if steps < 0 {
		dirLevel = gpio.Low
		delta = -1
		direction = "backward"
		steps = -steps
	}

	debug.Printf("Stepper: moving %d steps (%s) on pin %d", steps, direction, s.cfg.StepPin)

	if err := s.gpio.WritePin(s.cfg.DirPin, dirLevel); err != nil {
		return 0, err
	}

	moved := 0
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		if err := s.stepPulse(); err != nil {
			return moved, err
		}
		moved += delta
		if onStep != nil {
			onStep(delta)
		}
	}
	return moved, nil
}

func (s *Stepper) stepPulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.delay)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(s.delay)
	return nil
}

// Enable turns on the motor driver (A4988 ENABLE=LOW). Motors hold position.
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (A4988 ENABLE=HIGH). Motors freewheel, no holding torque.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
