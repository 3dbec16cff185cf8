package glyph

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"
	"unicode"

	"github.com/charmbracelet/log"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// emojiThreshold is the code point above which every rune counts as emoji.
// It over-matches some symbol ranges and is kept for compatibility with
// existing emoji_svg sets, not as an exact Unicode emoji test.
const emojiThreshold = 0x1F000

// IsEmoji reports whether r is drawn from an emoji sprite rather than the font.
func IsEmoji(r rune) bool {
	return unicode.In(r, unicode.So, unicode.Sk) || r > emojiThreshold
}

// isZeroWidth covers variation selectors, combining marks and ZWJ that
// follow emoji in real text and must not draw a notdef box.
func isZeroWidth(r rune) bool {
	return r == 0x200D || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Me, r)
}

// SpriteSource rasterizes emoji sprites. Sprite returns nil when no sprite
// exists for r.
type SpriteSource interface {
	Sprite(r rune, size int) *image.RGBA
}

// SVGSprites renders emoji from a directory of SVG icons named by lowercase
// hex code point, e.g. 1f604.svg.
type SVGSprites struct {
	Dir string
	Log *log.Logger

	mu    sync.Mutex
	cache map[spriteKey]*image.RGBA
}

type spriteKey struct {
	r    rune
	size int
}

// NewSVGSprites returns a sprite source reading from dir.
func NewSVGSprites(dir string, logger *log.Logger) *SVGSprites {
	return &SVGSprites{Dir: dir, Log: logger, cache: make(map[spriteKey]*image.RGBA)}
}

// SpritePath is the file an emoji is loaded from.
func (s *SVGSprites) SpritePath(r rune) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%x.svg", r))
}

// Sprite returns the size×size rendering of r. Misses are cached too, so a
// missing icon is reported once.
func (s *SVGSprites) Sprite(r rune, size int) *image.RGBA {
	key := spriteKey{r, size}
	s.mu.Lock()
	defer s.mu.Unlock()
	if img, ok := s.cache[key]; ok {
		return img
	}
	img, err := RasterizeSVGFile(s.SpritePath(r), size, size)
	if err != nil {
		if s.Log != nil {
			s.Log.Warn("emoji sprite unavailable", "rune", fmt.Sprintf("U+%04X", r), "err", err)
		}
		img = nil
	}
	s.cache[key] = img
	return img
}

// RasterizeSVGFile renders an SVG file onto a transparent w×h canvas.
// A zero w or h uses the icon's view box size.
func RasterizeSVGFile(path string, w, h int) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := RasterizeSVG(f, w, h)
	if err != nil {
		return nil, fmt.Errorf("svg %s: %w", path, err)
	}
	return img, nil
}

// RasterizeSVG renders an SVG stream onto a transparent w×h canvas.
func RasterizeSVG(r io.Reader, w, h int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(r)
	if err != nil {
		return nil, err
	}
	if w == 0 {
		w = int(icon.ViewBox.W)
	}
	if h == 0 {
		h = int(icon.ViewBox.H)
	}
	if w <= 0 || h <= 0 {
		return nil, errors.New("empty view box")
	}
	return rasterizeIcon(icon, w, h), nil
}

func rasterizeIcon(icon *oksvg.SvgIcon, w, h int) *image.RGBA {
	icon.SetTarget(0, 0, float64(w), float64(h))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	dasher := rasterx.NewDasher(w, h, scanner)
	icon.Draw(dasher, 1.0)
	return img
}
