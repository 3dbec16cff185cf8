// Package glyph measures and composites caption lines that mix font glyphs
// with emoji sprites, memoizing both per-rune widths and whole line images.
package glyph

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

type advanceKey struct {
	font string
	size float64
	r    rune
}

type lineKey struct {
	font string
	size float64
	text string
}

// Line is a composited, transparent-background line image.
type Line struct {
	Image  *image.RGBA
	Width  int
	Height int
}

// Cache memoizes rune advances and composited lines. It is safe for
// concurrent use. Line entries are only ever dropped wholesale.
type Cache struct {
	sprites SpriteSource
	lineCap int
	textClr color.Color

	mu       sync.Mutex
	advances map[advanceKey]int
	lines    map[lineKey]*Line
}

// NewCache creates a cache. lineCap bounds the number of composited lines
// held at once; when reached the line entries are cleared. Zero means no cap.
func NewCache(sprites SpriteSource, lineCap int) *Cache {
	return &Cache{
		sprites:  sprites,
		lineCap:  lineCap,
		textClr:  color.White,
		advances: make(map[advanceKey]int),
		lines:    make(map[lineKey]*Line),
	}
}

// Advance returns the horizontal advance of r in pixels.
func (c *Cache) Advance(f *Font, r rune) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advance(f, r)
}

func (c *Cache) advance(f *Font, r rune) int {
	key := advanceKey{f.Name, f.Size, r}
	if w, ok := c.advances[key]; ok {
		return w
	}
	var w int
	if isZeroWidth(r) {
		c.advances[key] = 0
		return 0
	}
	emoji := IsEmoji(r)
	var sprite *image.RGBA
	if emoji {
		sprite = c.sprite(f, r)
	}
	if sprite != nil {
		w = sprite.Bounds().Dx()
	} else {
		// an emoji missing from both the sprite set and the font is dropped
		adv, ok := f.Face.GlyphAdvance(r)
		if ok || !emoji {
			w = adv.Round()
		}
	}
	c.advances[key] = w
	return w
}

func (c *Cache) sprite(f *Font, r rune) *image.RGBA {
	if c.sprites == nil {
		return nil
	}
	return c.sprites.Sprite(r, int(f.Size))
}

// Measurer binds the cache to one font, for use with the layout package.
func (c *Cache) Measurer(f *Font) func(rune) int {
	return func(r rune) int { return c.Advance(f, r) }
}

// Line returns the composited image of text. Emoji sprites sit on the font
// baseline; other runes, and emoji without a sprite, are drawn in white with
// the font's face.
func (c *Cache) Line(f *Font, text string) *Line {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := lineKey{f.Name, f.Size, text}
	if l, ok := c.lines[key]; ok {
		return l
	}
	if c.lineCap > 0 && len(c.lines) >= c.lineCap {
		c.lines = make(map[lineKey]*Line)
	}

	width := 0
	sprites := make(map[rune]*image.RGBA)
	for _, r := range text {
		width += c.advance(f, r)
		if IsEmoji(r) {
			if _, ok := sprites[r]; !ok {
				sprites[r] = c.sprite(f, r)
			}
		}
	}
	ascent := f.Ascent()
	height := f.LineHeight()
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	d := &font.Drawer{Dst: img, Src: image.NewUniform(c.textClr), Face: f.Face}
	x := 0
	for _, r := range text {
		w := c.advance(f, r)
		switch {
		case w == 0:
		case IsEmoji(r) && sprites[r] != nil:
			sprite := sprites[r]
			sb := sprite.Bounds()
			at := image.Pt(x, ascent-sb.Dy())
			draw.Draw(img, sb.Add(at), sprite, sb.Min, draw.Over)
		default:
			d.Dot = fixed.P(x, ascent)
			d.DrawString(string(r))
		}
		x += w
	}

	l := &Line{Image: img, Width: width, Height: height}
	c.lines[key] = l
	return l
}

// InvalidateLines drops every composited line. Advances are kept: they are
// per font, not per caption.
func (c *Cache) InvalidateLines() {
	c.mu.Lock()
	c.lines = make(map[lineKey]*Line)
	c.mu.Unlock()
}

// LineCount returns the number of cached line images.
func (c *Cache) LineCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// AdvanceCount returns the number of cached rune widths.
func (c *Cache) AdvanceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.advances)
}
