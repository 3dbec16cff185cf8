package whisplay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	evdev "github.com/holoplot/go-evdev"
	"periph.io/x/conn/v3/gpio"
)

// buttonHandlers holds the press and release callbacks. Sources call fire
// from their own goroutine.
type buttonHandlers struct {
	mu        sync.Mutex
	onPress   func()
	onRelease func()
}

func (h *buttonHandlers) setPress(fn func()) {
	h.mu.Lock()
	h.onPress = fn
	h.mu.Unlock()
}

func (h *buttonHandlers) setRelease(fn func()) {
	h.mu.Lock()
	h.onRelease = fn
	h.mu.Unlock()
}

func (h *buttonHandlers) fire(pressed bool) {
	h.mu.Lock()
	fn := h.onRelease
	if pressed {
		fn = h.onPress
	}
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// watchGPIO reports edges of an active-low button wired to a pulled-up pin.
func watchGPIO(ctx context.Context, pin gpio.PinIn, debounce time.Duration, h *buttonHandlers, logger *log.Logger) error {
	if err := pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return fmt.Errorf("button %s: %w", pin, err)
	}
	go func() {
		pressed := pin.Read() == gpio.Low
		for ctx.Err() == nil {
			if !pin.WaitForEdge(250 * time.Millisecond) {
				continue
			}
			if debounce > 0 {
				time.Sleep(debounce)
			}
			now := pin.Read() == gpio.Low
			if now == pressed {
				continue
			}
			pressed = now
			logger.Debug("button", "pressed", pressed)
			h.fire(pressed)
		}
	}()
	return nil
}

// findEvdev returns the path of the input device called name.
func findEvdev(name string) (string, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return "", fmt.Errorf("list input devices: %w", err)
	}
	for _, ip := range paths {
		if ip.Name == name {
			return ip.Path, nil
		}
	}
	return "", fmt.Errorf("no input device named %q", name)
}

// watchEvdev reports press (value 1) and release (value 0) of one key on
// a Linux input device, grabbed for exclusive access when possible.
func watchEvdev(ctx context.Context, name string, key uint16, h *buttonHandlers, logger *log.Logger) (func() error, error) {
	path, err := findEvdev(name)
	if err != nil {
		return nil, err
	}
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := dev.Grab(); err != nil {
		logger.Warn("failed to grab input device", "path", path, "err", err)
	}
	devName, _ := dev.Name()
	logger.Info("using input device", "path", path, "name", devName)

	go func() {
		for {
			ev, err := dev.ReadOne()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("input read error", "err", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
			if ev.Type != evdev.EV_KEY || ev.Code != evdev.EvCode(key) {
				continue
			}
			switch ev.Value {
			case 1:
				h.fire(true)
			case 0:
				h.fire(false)
			}
		}
	}()

	return func() error {
		_ = dev.Ungrab()
		return dev.Close()
	}, nil
}
