package render

import (
	"image"
	"strconv"
	"strings"

	"github.com/whisplay/whisplayd/internal/layout"
)

// captionMargin is the left inset of caption text; lines wrap at
// width-2*captionMargin.
const captionMargin = 10

// composed is the pasted set of visible caption lines, reused while the
// visible text does not change.
type composed struct {
	key   string
	first int
	img   *image.RGBA
}

// renderCaption draws the visible part of caption into the caption buffer
// and moves the scroll offset one step, unless the caption was replaced
// while the frame was drawn.
func (e *Engine) renderCaption(caption string, offset int, gen uint64) {
	img := e.caption
	fillBlack(img)
	if caption == "" {
		return
	}

	f := e.fonts.Caption
	lh := f.LineHeight()
	areaH := img.Bounds().Dy()

	lines := layout.Wrap(caption, e.cache.Measurer(f), e.width-2*captionMargin)
	first, visible := layout.VisibleWindow(lines, lh, offset, areaH)

	key := strconv.Itoa(first) + "\x00" + strings.Join(visible, "\n")
	if e.composed.img == nil || e.composed.key != key {
		c := image.NewRGBA(image.Rect(0, 0, e.width, max(len(visible), 1)*lh))
		for i, text := range visible {
			paste(c, e.cache.Line(f, text).Image, captionMargin, i*lh)
		}
		e.composed = composed{key: key, first: first, img: c}
	}
	paste(img, e.composed.img, 0, e.composed.first*lh-offset)

	e.store.AdvanceScroll(gen, layout.ScrollLimit(len(lines), lh, areaH))
}
