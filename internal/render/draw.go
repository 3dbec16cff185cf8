package render

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// drawText draws text with its top-left corner at (posX, posY), or
// horizontally centered on posX when center is set. It returns the right
// and bottom edges of the drawn text.
func drawText(img *image.RGBA, text string, posX, posY int, face font.Face, clr color.Color, center bool) (finishX, finishY int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(clr),
		Face: face,
	}
	metrics := face.Metrics()
	textWidth := d.MeasureString(text).Round()

	x := posX
	if center {
		x = posX - textWidth/2
	}
	d.Dot = fixed.P(x, posY+metrics.Ascent.Round())
	d.DrawString(text)

	return x + textWidth, posY + metrics.Ascent.Round() + metrics.Descent.Round()
}

// paste alpha-blends src onto dst with src's top-left corner at (x0, y0).
// Parts falling outside dst are clipped, so negative offsets are allowed.
func paste(dst, src *image.RGBA, x0, y0 int) {
	if dst == nil || src == nil {
		return
	}
	sb := src.Bounds()
	for y := 0; y < sb.Dy(); y++ {
		dy := y0 + y
		if dy < dst.Rect.Min.Y || dy >= dst.Rect.Max.Y {
			continue
		}
		for x := 0; x < sb.Dx(); x++ {
			dx := x0 + x
			if dx < dst.Rect.Min.X || dx >= dst.Rect.Max.X {
				continue
			}
			sample := src.RGBAAt(sb.Min.X+x, sb.Min.Y+y)
			switch sample.A {
			case 0:
				continue
			case 255:
				dst.SetRGBA(dx, dy, sample)
				continue
			}
			// src is premultiplied, so only the destination is scaled
			out := dst.RGBAAt(dx, dy)
			inv := uint16(255 - sample.A)
			dst.SetRGBA(dx, dy, color.RGBA{
				R: uint8(uint16(sample.R) + uint16(out.R)*inv/255),
				G: uint8(uint16(sample.G) + uint16(out.G)*inv/255),
				B: uint8(uint16(sample.B) + uint16(out.B)*inv/255),
				A: uint8(uint16(sample.A) + uint16(out.A)*inv/255),
			})
		}
	}
}

// fillBlack paints img opaque black.
func fillBlack(img *image.RGBA) {
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{0, 0, 0, 255}), image.Point{}, draw.Src)
}
