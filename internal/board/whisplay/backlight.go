package whisplay

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/whisplay/whisplayd/internal/board"
)

const backlightPWMFreq = 1 * physic.KiloHertz

type backlight interface {
	set(percent int) error
}

// pwmBacklight dims the panel by PWM on the backlight enable pin.
// The Whisplay backlight is active low.
type pwmBacklight struct {
	pin gpio.PinOut
}

func (b pwmBacklight) set(percent int) error {
	switch percent {
	case 0:
		return b.pin.Out(gpio.High)
	case 100:
		return b.pin.Out(gpio.Low)
	}
	return b.pin.PWM(invertDuty(percent), backlightPWMFreq)
}

// sysfsBacklight writes to a /sys/class/backlight/*/brightness file,
// scaled to the device's max_brightness.
type sysfsBacklight struct {
	path string
	max  int
}

func newSysfsBacklight(path string) *sysfsBacklight {
	b := &sysfsBacklight{path: path, max: 100}
	maxPath := strings.TrimSuffix(path, "brightness") + "max_brightness"
	if data, err := os.ReadFile(maxPath); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && v > 0 {
			b.max = v
		}
	}
	return b
}

func (b *sysfsBacklight) set(percent int) error {
	v := percent * b.max / 100
	if err := os.WriteFile(b.path, []byte(strconv.Itoa(v)), 0o644); err != nil {
		return fmt.Errorf("backlight write: %w", err)
	}
	return nil
}

// dimmer clamps requests and skips writes that would not change the level.
type dimmer struct {
	mu   sync.Mutex
	out  backlight
	last int
}

func newDimmer(out backlight) *dimmer {
	return &dimmer{out: out, last: -1}
}

func (d *dimmer) set(percent int) error {
	percent = board.ClampPercent(percent)
	d.mu.Lock()
	defer d.mu.Unlock()
	if percent == d.last {
		return nil
	}
	if err := d.out.set(percent); err != nil {
		return err
	}
	d.last = percent
	return nil
}
