// Package board defines the capabilities the daemon needs from the display
// hardware, plus an in-memory simulator used with -sim and in tests.
package board

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/whisplay/whisplayd/internal/colorutil"
)

// ErrClosed is returned by operations on a closed board.
var ErrClosed = errors.New("board closed")

// Board is the display, backlight, RGB LED and button of one device.
// Pixel data passed to DrawRegion is big-endian RGB565, row-major, w*h*2 bytes.
type Board interface {
	DrawRegion(x, y, w, h int, pix []byte) error
	SetBacklight(percent int) error
	SetLEDColor(r, g, b uint8, fade time.Duration) error
	OnButtonPress(fn func())
	OnButtonRelease(fn func())
	Size() (w, h int)
	Close() error
}

// ClampPercent limits a backlight level to 0..100.
func ClampPercent(p int) int {
	return min(max(p, 0), 100)
}

// CheckRegion validates a DrawRegion call against a w×h panel.
func CheckRegion(panelW, panelH, x, y, w, h int, pix []byte) error {
	if w <= 0 || h <= 0 || x < 0 || y < 0 || x+w > panelW || y+h > panelH {
		return fmt.Errorf("region %dx%d+%d+%d outside %dx%d panel", w, h, x, y, panelW, panelH)
	}
	if len(pix) != w*h*2 {
		return fmt.Errorf("region %dx%d needs %d bytes, got %d", w, h, w*h*2, len(pix))
	}
	return nil
}

// LED is the last colour requested from SetLEDColor.
type LED struct {
	R, G, B uint8
	Fade    time.Duration
}

// Sim is a Board that keeps the panel contents in memory.
type Sim struct {
	mu        sync.Mutex
	w, h      int
	panel     *image.RGBA
	backlight int
	led       LED
	draws     int
	closed    bool
	onPress   func()
	onRelease func()
}

// NewSim returns a simulated w×h board with the backlight off.
func NewSim(w, h int) *Sim {
	return &Sim{w: w, h: h, panel: image.NewRGBA(image.Rect(0, 0, w, h))}
}

func (s *Sim) DrawRegion(x, y, w, h int, pix []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := CheckRegion(s.w, s.h, x, y, w, h, pix); err != nil {
		return err
	}
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			i := (row*w + col) * 2
			v := uint16(pix[i])<<8 | uint16(pix[i+1])
			s.panel.SetRGBA(x+col, y+row, colorutil.FromRGB565(v))
		}
	}
	s.draws++
	return nil
}

func (s *Sim) SetBacklight(percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.backlight = ClampPercent(percent)
	return nil
}

func (s *Sim) SetLEDColor(r, g, b uint8, fade time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.led = LED{r, g, b, fade}
	return nil
}

func (s *Sim) OnButtonPress(fn func()) {
	s.mu.Lock()
	s.onPress = fn
	s.mu.Unlock()
}

func (s *Sim) OnButtonRelease(fn func()) {
	s.mu.Lock()
	s.onRelease = fn
	s.mu.Unlock()
}

func (s *Sim) Size() (int, int) { return s.w, s.h }

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.backlight = 0
	s.led = LED{}
	return nil
}

// Press invokes the press callback, then the release callback, as a
// physical click would.
func (s *Sim) Press() {
	s.mu.Lock()
	press, release := s.onPress, s.onRelease
	s.mu.Unlock()
	if press != nil {
		press()
	}
	if release != nil {
		release()
	}
}

// Panel returns a copy of the simulated screen.
func (s *Sim) Panel() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := image.NewRGBA(s.panel.Rect)
	copy(cp.Pix, s.panel.Pix)
	return cp
}

// Backlight returns the current backlight percentage.
func (s *Sim) Backlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backlight
}

// LED returns the last LED request.
func (s *Sim) LED() LED {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.led
}

// Draws counts successful DrawRegion calls.
func (s *Sim) Draws() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draws
}
