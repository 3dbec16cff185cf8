package board

import (
	"errors"
	"testing"
	"time"
)

func TestCheckRegion(t *testing.T) {
	tests := []struct {
		name       string
		x, y, w, h int
		n          int
		wantErr    bool
	}{
		{"full panel", 0, 0, 240, 280, 240 * 280 * 2, false},
		{"header", 0, 0, 240, 98, 240 * 98 * 2, false},
		{"caption", 0, 98, 240, 182, 240 * 182 * 2, false},
		{"past right edge", 10, 0, 240, 1, 240 * 2, true},
		{"past bottom", 0, 200, 240, 100, 240 * 100 * 2, true},
		{"negative origin", -1, 0, 1, 1, 2, true},
		{"short buffer", 0, 0, 2, 2, 7, true},
		{"empty", 0, 0, 0, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckRegion(240, 280, tt.x, tt.y, tt.w, tt.h, make([]byte, tt.n))
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckRegion() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClampPercent(t *testing.T) {
	for in, want := range map[int]int{-10: 0, 0: 0, 42: 42, 100: 100, 180: 100} {
		if got := ClampPercent(in); got != want {
			t.Errorf("ClampPercent(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSimDrawRegion(t *testing.T) {
	s := NewSim(4, 4)
	// 2x1 region: pure red then pure blue
	pix := []byte{0xF8, 0x00, 0x00, 0x1F}
	if err := s.DrawRegion(1, 2, 2, 1, pix); err != nil {
		t.Fatal(err)
	}
	p := s.Panel()
	if c := p.RGBAAt(1, 2); c.R != 255 || c.G != 0 || c.B != 0 {
		t.Errorf("pixel (1,2) = %v, want red", c)
	}
	if c := p.RGBAAt(2, 2); c.R != 0 || c.B != 255 {
		t.Errorf("pixel (2,2) = %v, want blue", c)
	}
	if s.Draws() != 1 {
		t.Errorf("Draws = %d", s.Draws())
	}
}

func TestSimButtonsAndClose(t *testing.T) {
	s := NewSim(2, 2)
	var events []string
	s.OnButtonPress(func() { events = append(events, "press") })
	s.OnButtonRelease(func() { events = append(events, "release") })
	s.Press()
	if len(events) != 2 || events[0] != "press" || events[1] != "release" {
		t.Errorf("events = %v", events)
	}

	if err := s.SetBacklight(150); err != nil {
		t.Fatal(err)
	}
	if s.Backlight() != 100 {
		t.Errorf("backlight = %d, want 100", s.Backlight())
	}
	if err := s.SetLEDColor(1, 2, 3, 500*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if got := s.LED(); got != (LED{1, 2, 3, 500 * time.Millisecond}) {
		t.Errorf("led = %+v", got)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.Backlight() != 0 || s.LED() != (LED{}) {
		t.Error("close should switch backlight and LED off")
	}
	if err := s.DrawRegion(0, 0, 1, 1, []byte{0, 0}); !errors.Is(err, ErrClosed) {
		t.Errorf("draw after close: %v", err)
	}
}
