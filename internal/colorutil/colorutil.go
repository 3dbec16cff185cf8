// Package colorutil converts the colour forms accepted on the control
// protocol and packs frames into the panel's RGB565 format.
package colorutil

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/go-playground/colors"
)

// ErrInvalidColor is wrapped by Parse when a value is neither a hex string
// nor an RGB565 integer.
var ErrInvalidColor = errors.New("invalid color")

// Parse accepts a hex string ("#55FF00", "55ff00", or an 8 digit form whose
// trailing alpha byte is ignored) or an integer holding a packed RGB565 value.
// Numbers decoded from JSON arrive as float64.
func Parse(v any) (color.RGBA, error) {
	switch c := v.(type) {
	case string:
		return parseHex(c)
	case float64:
		if c != math.Trunc(c) {
			return color.RGBA{}, fmt.Errorf("%w: %v is not an integer", ErrInvalidColor, c)
		}
		return parse565(int64(c))
	case int:
		return parse565(int64(c))
	case int64:
		return parse565(c)
	default:
		return color.RGBA{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidColor, v)
	}
}

func parseHex(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	parsed, err := colors.ParseHEX("#" + hex[:6])
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	if len(hex) == 8 && !isHex(hex[6:]) {
		return color.RGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	rgb := parsed.ToRGB()
	return color.RGBA{R: rgb.R, G: rgb.G, B: rgb.B, A: 255}, nil
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func parse565(v int64) (color.RGBA, error) {
	if v < 0 || v > 0xFFFF {
		return color.RGBA{}, fmt.Errorf("%w: %d out of RGB565 range", ErrInvalidColor, v)
	}
	return FromRGB565(uint16(v)), nil
}

// FromRGB565 expands a packed 5-6-5 value to 8 bits per channel.
func FromRGB565(v uint16) color.RGBA {
	r := (v >> 11) & 0x1F
	g := (v >> 5) & 0x3F
	b := v & 0x1F
	return color.RGBA{
		R: uint8(uint32(r) * 255 / 31),
		G: uint8(uint32(g) * 255 / 63),
		B: uint8(uint32(b) * 255 / 31),
		A: 255,
	}
}

// ToRGB565 packs 8 bit channels into 5-6-5.
func ToRGB565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// Luminance is the perceived brightness 0.299R + 0.587G + 0.114B.
func Luminance(c color.RGBA) float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}

// ContrastText returns black for fills brighter than 128, else white.
func ContrastText(fill color.RGBA) color.RGBA {
	if Luminance(fill) > 128 {
		return color.RGBA{0, 0, 0, 255}
	}
	return color.RGBA{255, 255, 255, 255}
}

// EncodeRGB565 packs img into a big-endian, row-major RGB565 buffer.
// Alpha is dropped; callers composite onto an opaque background first.
func EncodeRGB565(img *image.RGBA) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*2)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		row := img.Pix[off : off+b.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			p := ToRGB565(row[x], row[x+1], row[x+2])
			out = append(out, byte(p>>8), byte(p))
		}
	}
	return out
}
