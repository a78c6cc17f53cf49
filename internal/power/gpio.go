package power

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// gpioLine is the subset of *gpiocdev.Line this package depends on, so
// tests can substitute a fake without opening a real gpiochip.
type gpioLine interface {
	SetValue(value int) error
	Close() error
}

// GPIOAgent drives two GPIO output lines, one for the T30 (always-on)
// rail relay and one for T15 (ignition). Both lines are active-high:
// driving a line to 1 closes the relay and applies that rail.
type GPIOAgent struct {
	t30 gpioLine
	t15 gpioLine
}

// NewGPIOAgent requests chip/t30Offset and chip/t15Offset as outputs,
// initially low (power off).
func NewGPIOAgent(chip string, t30Offset, t15Offset int) (*GPIOAgent, error) {
	t30, err := gpiocdev.RequestLine(chip, t30Offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("power: requesting T30 line %s:%d: %w", chip, t30Offset, err)
	}
	t15, err := gpiocdev.RequestLine(chip, t15Offset, gpiocdev.AsOutput(0))
	if err != nil {
		t30.Close()
		return nil, fmt.Errorf("power: requesting T15 line %s:%d: %w", chip, t15Offset, err)
	}
	return &GPIOAgent{t30: t30, t15: t15}, nil
}

func (g *GPIOAgent) Off() error {
	if err := g.t15.SetValue(0); err != nil {
		return fmt.Errorf("power: dropping T15: %w", err)
	}
	if err := g.t30.SetValue(0); err != nil {
		return fmt.Errorf("power: dropping T30: %w", err)
	}
	return nil
}

func (g *GPIOAgent) T30() error {
	if err := g.t15.SetValue(0); err != nil {
		return fmt.Errorf("power: dropping T15: %w", err)
	}
	if err := g.t30.SetValue(1); err != nil {
		return fmt.Errorf("power: raising T30: %w", err)
	}
	return nil
}

func (g *GPIOAgent) T30T15() error {
	if err := g.t30.SetValue(1); err != nil {
		return fmt.Errorf("power: raising T30: %w", err)
	}
	if err := g.t15.SetValue(1); err != nil {
		return fmt.Errorf("power: raising T15: %w", err)
	}
	return nil
}

// Close releases both GPIO lines.
func (g *GPIOAgent) Close() error {
	err15 := g.t15.Close()
	err30 := g.t30.Close()
	if err15 != nil {
		return err15
	}
	return err30
}
