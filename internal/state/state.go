// Package state holds the single display record shared by the control
// plane and the renderer.
package state

import (
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/whisplay/whisplayd/internal/layout"
)

// Display is a point-in-time copy of the display record.
type Display struct {
	Status       string
	Emoji        string
	Caption      string
	ScrollOffset int
	ScrollSpeed  int
	BatteryLevel *int
	BatteryColor *color.RGBA
	ImagePath    string

	// CaptionGen changes every time the caption is replaced rather than
	// extended.
	CaptionGen uint64
}

// ImageMode reports whether the full-bleed image replaces header and caption.
func (d Display) ImageMode() bool { return d.ImagePath != "" }

// Update carries a partial change. Nil fields leave the current value alone.
type Update struct {
	Status       *string
	Emoji        *string
	Caption      *string
	ScrollSpeed  *int
	BatteryLevel *int
	BatteryColor *color.RGBA
	ImagePath    *string
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Status == nil && u.Emoji == nil && u.Caption == nil && u.ScrollSpeed == nil &&
		u.BatteryLevel == nil && u.BatteryColor == nil && u.ImagePath == nil
}

// Store guards the display record. The zero value is not usable; call New.
type Store struct {
	mu         sync.Mutex
	d          Display
	image      *image.RGBA
	invalidate func()
}

// New returns a store. onCaptionReset runs, with the store lock held, every
// time a caption replaces the previous one rather than extending it.
func New(onCaptionReset func()) *Store {
	return &Store{invalidate: onCaptionReset}
}

// Apply merges u into the record.
func (s *Store) Apply(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Status != nil {
		s.d.Status = *u.Status
	}
	if u.Emoji != nil {
		s.d.Emoji = *u.Emoji
	}
	if u.Caption != nil {
		if !strings.HasPrefix(*u.Caption, s.d.Caption) {
			s.d.ScrollOffset = 0
			s.d.CaptionGen++
			if s.invalidate != nil {
				s.invalidate()
			}
		}
		s.d.Caption = *u.Caption
	}
	if u.ScrollSpeed != nil {
		speed := *u.ScrollSpeed
		if speed < 0 {
			speed = 0
		}
		s.d.ScrollSpeed = speed
	}
	if u.BatteryLevel != nil {
		level := min(max(*u.BatteryLevel, 0), 100)
		s.d.BatteryLevel = &level
	}
	if u.BatteryColor != nil {
		c := *u.BatteryColor
		s.d.BatteryColor = &c
	}
	if u.ImagePath != nil && *u.ImagePath != s.d.ImagePath {
		s.d.ImagePath = *u.ImagePath
		s.image = nil
	}
}

// Snapshot returns a copy safe to read without the lock.
func (s *Store) Snapshot() Display {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.d
	if d.BatteryLevel != nil {
		level := *d.BatteryLevel
		d.BatteryLevel = &level
	}
	if d.BatteryColor != nil {
		c := *d.BatteryColor
		d.BatteryColor = &c
	}
	return d
}

// AdvanceScroll moves the offset one step toward limit at the current speed
// and returns the new offset. limit was computed from the caption of
// generation gen; when that caption has been replaced since, the offset is
// left alone and ok is false.
func (s *Store) AdvanceScroll(gen uint64, limit int) (offset int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.d.CaptionGen {
		return s.d.ScrollOffset, false
	}
	s.d.ScrollOffset = layout.NextOffset(s.d.ScrollOffset, s.d.ScrollSpeed, limit)
	return s.d.ScrollOffset, true
}

// Image returns the decoded image for path, or nil when none is cached or
// the path is no longer current.
func (s *Store) Image(path string) *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path != s.d.ImagePath {
		return nil
	}
	return s.image
}

// SetImage caches img for path. It reports false and drops img when the
// image path changed while it was being decoded.
func (s *Store) SetImage(path string, img *image.RGBA) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path != s.d.ImagePath {
		return false
	}
	s.image = img
	return true
}
