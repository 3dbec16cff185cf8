// Package whisplay drives the PiSugar Whisplay HAT through periph.io: an
// ST7789 SPI LCD, its backlight, a common-anode RGB LED and one push button.
package whisplay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/whisplay/whisplayd/internal/board"
	"github.com/whisplay/whisplayd/internal/config"
)

// Board implements board.Board on real hardware.
type Board struct {
	log *log.Logger

	port    spi.PortCloser
	lcd     *lcd
	light   *dimmer
	led     *led
	buttons buttonHandlers

	stop       context.CancelFunc
	closeInput func() error

	mu     sync.Mutex // serializes SPI transfers
	closed bool
}

var _ board.Board = (*Board)(nil)

func pinByName(role, name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%s pin %q not found", role, name)
	}
	return p, nil
}

// Open initialises the host drivers and every peripheral named in cfg.
// Pins left empty in the configuration are skipped.
func Open(cfg config.Config, logger *log.Logger) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	dc, err := pinByName("dc", cfg.Display.DCPin)
	if err != nil {
		return nil, err
	}
	rst, err := pinByName("rst", cfg.Display.RSTPin)
	if err != nil {
		return nil, err
	}

	port, err := spireg.Open(cfg.Display.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", cfg.Display.SPIPort, err)
	}

	d := cfg.Display
	panel, err := newLCD(port, d.SPIHz, dc, rst, d.Width, d.Height, d.XOffset, d.YOffset, d.Rotated)
	if err != nil {
		port.Close()
		return nil, err
	}

	b := &Board{log: logger, port: port, lcd: panel}

	switch {
	case cfg.Backlight.SysfsPath != "":
		b.light = newDimmer(newSysfsBacklight(cfg.Backlight.SysfsPath))
	case cfg.Backlight.Pin != "":
		p, err := pinByName("backlight", cfg.Backlight.Pin)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.light = newDimmer(pwmBacklight{pin: p})
	}

	b.led = &led{commonAnode: cfg.LED.CommonAnode}
	for i, name := range []string{cfg.LED.RedPin, cfg.LED.GreenPin, cfg.LED.BluePin} {
		p, err := pinByName("led", name)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.led.pins[i] = p
	}
	if err := b.led.off(); err != nil {
		logger.Warn("failed to reset LED", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.stop = cancel
	if err := b.startInput(ctx, cfg.Input); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Board) startInput(ctx context.Context, in config.InputConfig) error {
	if in.EvdevDevice != "" {
		closeFn, err := watchEvdev(ctx, in.EvdevDevice, in.EvdevKey, &b.buttons, b.log)
		if err != nil {
			return err
		}
		b.closeInput = closeFn
		return nil
	}
	p, err := pinByName("button", in.ButtonPin)
	if err != nil || p == nil {
		return err
	}
	return watchGPIO(ctx, p, in.Debounce, &b.buttons, b.log)
}

func (b *Board) DrawRegion(x, y, w, h int, pix []byte) error {
	if err := board.CheckRegion(b.lcd.w, b.lcd.h, x, y, w, h, pix); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return board.ErrClosed
	}
	return b.lcd.drawRegion(x, y, w, h, pix)
}

func (b *Board) SetBacklight(percent int) error {
	if b.light == nil {
		return nil
	}
	return b.light.set(percent)
}

func (b *Board) SetLEDColor(r, g, bl uint8, fade time.Duration) error {
	return b.led.set(r, g, bl, fade)
}

func (b *Board) OnButtonPress(fn func())   { b.buttons.setPress(fn) }
func (b *Board) OnButtonRelease(fn func()) { b.buttons.setRelease(fn) }

func (b *Board) Size() (int, int) { return b.lcd.w, b.lcd.h }

// Close switches the backlight and LED off and releases the pins and bus.
func (b *Board) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	var errs []error
	if b.stop != nil {
		b.stop()
	}
	if b.closeInput != nil {
		errs = append(errs, b.closeInput())
	}
	if b.light != nil {
		errs = append(errs, b.light.set(0))
	}
	if b.led != nil {
		errs = append(errs, b.led.off())
		for _, p := range b.led.pins {
			if p != nil {
				errs = append(errs, p.Halt())
			}
		}
	}
	errs = append(errs, b.port.Close())
	return errors.Join(errs...)
}
