package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	svg "github.com/ajstarks/svgo"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/llgcode/draw2d/draw2dkit"

	"github.com/whisplay/whisplayd/internal/colorutil"
	"github.com/whisplay/whisplayd/internal/glyph"
)

// Header geometry, in pixels.
const (
	StatusFontSize  = 28
	BatteryFontSize = 13
	CaptionFontSize = 20

	cornerInset = 20 // keeps the status label clear of the panel's rounded corner

	orbFontSize  = 40 // height reserved for the orb below the status line
	orbBase      = 20.0
	orbAmplitude = 12.0
	orbSpeed     = 0.15
	orbMax       = orbBase + orbAmplitude + 3

	batteryW       = 26
	batteryH       = 15
	batteryRadius  = 3
	batteryMarginR = 20
	batteryStroke  = 2
	batteryHeadW   = 2
	batteryHeadH   = 5
)

var animatedStatuses = []string{"listening", "thinking", "processing", "speaking", "answering"}

// Animated reports whether the orb pulses for status.
func Animated(status string) bool {
	for _, s := range animatedStatuses {
		if strings.EqualFold(status, s) {
			return true
		}
	}
	return false
}

// orbRadius is the orb radius at animation frame n.
func orbRadius(n int, animate bool) float64 {
	if !animate {
		return orbBase
	}
	return orbBase + math.Sin(float64(n)*orbSpeed)*orbAmplitude
}

// ringColor is the colour of the ring at radius r around an orb of the
// given radius. The second result is false for rings that draw nothing.
func ringColor(r, radius float64) (color.NRGBA, bool) {
	if r <= radius {
		k := (radius - r) / radius
		c := color.NRGBA{R: uint8(255 * k), A: uint8(255 * k)}
		return c, c.A > 0
	}
	fadeRange := orbMax - radius
	if fadeRange <= 0 {
		return color.NRGBA{}, false
	}
	f := max(0, 1-(r-radius)/fadeRange)
	c := color.NRGBA{R: uint8(80 * f), A: uint8(100 * f)}
	return c, c.A > 0
}

// drawOrb paints the orb as filled concentric circles, outermost first.
func drawOrb(img *image.RGBA, cx, cy, radius float64) {
	gc := draw2dimg.NewGraphicContext(img)
	for r := int(orbMax); r > 0; r-- {
		c, ok := ringColor(float64(r), radius)
		if !ok {
			continue
		}
		gc.SetFillColor(c)
		gc.BeginPath()
		draw2dkit.Circle(gc, cx, cy, float64(r))
		gc.Fill()
	}
}

// batteryBadge renders the battery outline and fill as an SVG, drawn with a
// one pixel margin so the stroke is not clipped. fill may be nil.
func batteryBadge(fill *color.RGBA) (*image.RGBA, error) {
	w := batteryW + batteryHeadW + 2
	h := batteryH + 2

	fillStyle := "none"
	if fill != nil && (fill.R|fill.G|fill.B) != 0 {
		fillStyle = fmt.Sprintf("#%02X%02X%02X", fill.R, fill.G, fill.B)
	}

	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Start(w, h)
	canvas.Roundrect(1, 1, batteryW, batteryH, batteryRadius, batteryRadius,
		fmt.Sprintf("fill:%s;stroke:white;stroke-width:%d", fillStyle, batteryStroke))
	canvas.Rect(1+batteryW, 1+(batteryH-batteryHeadH)/2, batteryHeadW, batteryHeadH, "fill:white")
	canvas.End()

	return glyph.RasterizeSVG(&buf, w, h)
}

// renderHeader draws the status label, the orb and the battery badge onto
// the header buffer and advances the animation clock for active statuses.
func (e *Engine) renderHeader(status string, level *int, fill *color.RGBA) {
	img := e.header
	fillBlack(img)

	if status != "" {
		line := e.cache.Line(e.fonts.Status, status)
		paste(img, line.Image, cornerInset, 0)
	}

	animate := Animated(status)
	cy := float64(StatusFontSize + 8 + orbFontSize/2)
	drawOrb(img, float64(e.width/2), cy, orbRadius(e.frame, animate))
	if animate {
		e.frame++
	}

	if level != nil {
		e.renderBattery(img, *level, fill)
	}
}

func (e *Engine) renderBattery(img *image.RGBA, level int, fill *color.RGBA) {
	bx := e.width - batteryW - batteryMarginR
	by := StatusFontSize / 2

	key := color.RGBA{}
	if fill != nil {
		key = *fill
	}
	badge, ok := e.badges[key]
	if !ok {
		var err error
		badge, err = batteryBadge(fill)
		if err != nil {
			e.log.Error("failed to draw battery badge", "err", err)
			return
		}
		if len(e.badges) >= maxBadges {
			clear(e.badges)
		}
		e.badges[key] = badge
	}
	paste(img, badge, bx-1, by-1)

	textClr := colorutil.ContrastText(key)
	face := e.fonts.Battery.Face
	text := strconv.Itoa(level)
	ty := by + (batteryH-e.fonts.Battery.LineHeight())/2
	drawText(img, text, bx+batteryW/2, ty, face, textClr, true)
}
