package glyph

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

// Font is a sized face plus the identity used in cache keys.
// A Face is not safe for concurrent use; the Cache serializes access to the
// faces it is handed, and the renderer only draws from its own goroutine.
type Font struct {
	Name string
	Size float64
	Face font.Face
}

// Ascent returns the rounded ascent in pixels.
func (f *Font) Ascent() int { return f.Face.Metrics().Ascent.Round() }

// LineHeight returns ascent + descent in pixels.
func (f *Font) LineHeight() int {
	m := f.Face.Metrics()
	return m.Ascent.Round() + m.Descent.Round()
}

// FontFile is a parsed font from which faces of any size can be made.
type FontFile struct {
	name string
	font *opentype.Font
}

// LoadFontFile reads and parses a TrueType or OpenType file.
func LoadFontFile(path string) (*FontFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading font file: %w", err)
	}
	return ParseFont(filepath.Base(path), data)
}

// ParseFont parses font bytes under the given identity name.
func ParseFont(name string, data []byte) (*FontFile, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing font %s: %w", name, err)
	}
	return &FontFile{name: name, font: f}, nil
}

// Face builds a face at size points, 72 DPI, so points equal pixels.
func (ff *FontFile) Face(size float64) (*Font, error) {
	face, err := opentype.NewFace(ff.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("face %s@%v: %w", ff.name, size, err)
	}
	return &Font{Name: ff.name, Size: size, Face: face}, nil
}
