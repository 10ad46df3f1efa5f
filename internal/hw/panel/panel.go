// Package panel reads the physical shutter and cancel buttons and drives
// the capture LED.
package panel

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/pansweep/internal/config"
	"github.com/cjeanneret/pansweep/internal/debug"
	"github.com/cjeanneret/pansweep/internal/hw/gpio"
)

// Button identifies a physical control.
type Button int

const (
	Shutter Button = iota
	Cancel
)

func (b Button) String() string {
	if b == Shutter {
		return "shutter"
	}
	return "cancel"
}

// Panel polls button pins. Pins set to 0 are not wired.
type Panel struct {
	gpio gpio.Driver
	cfg  config.PanelConfig
	poll time.Duration
}

// New configures the pins. Buttons use the internal pull-up when they are
// active low.
func New(g gpio.Driver, cfg config.PanelConfig, poll time.Duration) (*Panel, error) {
	mode := gpio.Input
	if cfg.ActiveLow {
		mode = gpio.InputPullUp
	}
	for _, pin := range []int{cfg.ShutterPin, cfg.CancelPin} {
		if pin == 0 {
			continue
		}
		if err := g.SetupPin(pin, mode); err != nil {
			return nil, fmt.Errorf("setup button pin %d: %w", pin, err)
		}
	}
	if cfg.LEDPin != 0 {
		if err := g.SetupPin(cfg.LEDPin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup led pin %d: %w", cfg.LEDPin, err)
		}
		_ = g.WritePin(cfg.LEDPin, gpio.Low)
	}
	if poll <= 0 {
		poll = 20 * time.Millisecond
	}
	return &Panel{gpio: g, cfg: cfg, poll: poll}, nil
}

func (p *Panel) pressed(level gpio.Level) bool {
	if p.cfg.ActiveLow {
		return level == gpio.Low
	}
	return level == gpio.High
}

// Run calls onPress on every released-to-pressed transition until ctx is
// done. A button held down at start only fires after it is released.
func (p *Panel) Run(ctx context.Context, onPress func(Button)) error {
	pins := map[Button]int{}
	if p.cfg.ShutterPin != 0 {
		pins[Shutter] = p.cfg.ShutterPin
	}
	if p.cfg.CancelPin != 0 {
		pins[Cancel] = p.cfg.CancelPin
	}
	if len(pins) == 0 {
		debug.Verbose("Panel: no buttons wired")
		<-ctx.Done()
		return nil
	}

	down := make(map[Button]bool, len(pins))
	for b, pin := range pins {
		level, err := p.gpio.ReadPin(pin)
		if err != nil {
			return fmt.Errorf("read %s pin %d: %w", b, pin, err)
		}
		down[b] = p.pressed(level)
	}

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for b, pin := range pins {
			level, err := p.gpio.ReadPin(pin)
			if err != nil {
				debug.Errorf("Panel: read %s pin %d: %v", b, pin, err)
				continue
			}
			now := p.pressed(level)
			if now && !down[b] {
				debug.Live("Panel: %s pressed", b)
				onPress(b)
			}
			down[b] = now
		}
	}
}

// SetCapturing lights the LED while a sweep is recorded.
func (p *Panel) SetCapturing(on bool) {
	if p.cfg.LEDPin == 0 {
		return
	}
	_ = p.gpio.WritePin(p.cfg.LEDPin, gpio.Level(on))
}
