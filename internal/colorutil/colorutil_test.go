package colorutil

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    color.RGBA
		wantErr bool
	}{
		{"hex with hash", "#55FF00", color.RGBA{0x55, 0xFF, 0x00, 255}, false},
		{"hex lower no hash", "55ff00", color.RGBA{0x55, 0xFF, 0x00, 255}, false},
		{"hex with alpha", "#11223344", color.RGBA{0x11, 0x22, 0x33, 255}, false},
		{"rgb565 white", float64(0xFFFF), color.RGBA{255, 255, 255, 255}, false},
		{"rgb565 red", float64(0xF800), color.RGBA{255, 0, 0, 255}, false},
		{"rgb565 int", 0x07E0, color.RGBA{0, 255, 0, 255}, false},
		{"short hex", "#FFF", color.RGBA{}, true},
		{"bad digits", "#GG0000", color.RGBA{}, true},
		{"bad alpha digits", "#112233ZZ", color.RGBA{}, true},
		{"out of range", float64(0x10000), color.RGBA{}, true},
		{"negative", float64(-1), color.RGBA{}, true},
		{"fraction", 1.5, color.RGBA{}, true},
		{"bool", true, color.RGBA{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidColor) {
					t.Errorf("error %v does not wrap ErrInvalidColor", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Parse(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestContrastText(t *testing.T) {
	black := color.RGBA{0, 0, 0, 255}
	white := color.RGBA{255, 255, 255, 255}

	if got := ContrastText(color.RGBA{0x55, 0xFF, 0x00, 255}); got != black {
		t.Errorf("bright green fill should get black text, got %v", got)
	}
	if got := ContrastText(color.RGBA{0x20, 0x20, 0x80, 255}); got != white {
		t.Errorf("dark blue fill should get white text, got %v", got)
	}
	// exactly 128 is not "greater than"
	if got := ContrastText(color.RGBA{128, 128, 128, 255}); got != white {
		t.Errorf("mid grey at threshold should get white text, got %v", got)
	}
}

func TestEncodeRGB565(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})
	img.SetRGBA(1, 0, color.RGBA{0, 0, 255, 255})

	got := EncodeRGB565(img)
	want := []byte{0xF8, 0x00, 0x00, 0x1F}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestEncodeRGB565SubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(2, 2, color.RGBA{255, 255, 255, 255})
	sub := img.SubImage(image.Rect(2, 2, 3, 3)).(*image.RGBA)

	got := EncodeRGB565(sub)
	if len(got) != 2 || got[0] != 0xFF || got[1] != 0xFF {
		t.Errorf("sub-image encode = %v, want [ff ff]", got)
	}
}

func TestRGB565RoundTripPrimaries(t *testing.T) {
	for _, c := range []color.RGBA{{255, 0, 0, 255}, {0, 255, 0, 255}, {0, 0, 255, 255}, {0, 0, 0, 255}} {
		if got := FromRGB565(ToRGB565(c.R, c.G, c.B)); got != c {
			t.Errorf("round trip %v = %v", c, got)
		}
	}
}
