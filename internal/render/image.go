package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/whisplay/whisplayd/internal/glyph"
)

// cropSize returns the largest centered region of a srcW×srcH image that
// has the aspect ratio of a dstW×dstH screen: width is cropped when the
// source is relatively wider, height otherwise.
func cropSize(srcW, srcH, dstW, dstH int) (w, h int) {
	if srcW*dstH > srcH*dstW {
		return srcH * dstW / dstH, srcH
	}
	return srcW, srcW * dstH / dstW
}

// decodeImage reads a raster image (png, jpeg, gif, bmp, tiff) or an SVG.
func decodeImage(path string) (image.Image, error) {
	if strings.EqualFold(filepath.Ext(path), ".svg") {
		return glyph.RasterizeSVGFile(path, 0, 0)
	}
	return imaging.Open(path, imaging.AutoOrientation(true))
}

// fitImage center-crops img to the screen aspect ratio, resizes it to
// exactly w×h with Lanczos and flattens it onto black.
func fitImage(img image.Image, w, h int) (*image.RGBA, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty image")
	}
	cw, ch := cropSize(b.Dx(), b.Dy(), w, h)
	cropped := imaging.CropCenter(img, max(cw, 1), max(ch, 1))
	resized := imaging.Resize(cropped, w, h, imaging.Lanczos)

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.RGBA{0, 0, 0, 255}), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), resized, image.Point{}, draw.Over)
	return out, nil
}

// loadImage decodes and fits the image at path to the screen.
func (e *Engine) loadImage(path string) (*image.RGBA, error) {
	img, err := decodeImage(path)
	if err != nil {
		return nil, err
	}
	return fitImage(img, e.width, e.height)
}

// renderImage shows the image at path full screen. It reports false when
// the image cannot be shown; the previous frame then stays on the panel.
func (e *Engine) renderImage(path string) bool {
	img := e.store.Image(path)
	if img == nil {
		if e.failed[path] {
			return false
		}
		var err error
		img, err = e.loadImage(path)
		if err != nil {
			if len(e.failed) >= maxFailedPaths {
				clear(e.failed)
			}
			e.failed[path] = true
			e.log.Error("failed to load image", "path", path, "err", err)
			return false
		}
		e.store.SetImage(path, img)
	}
	draw.Draw(e.full, e.full.Bounds(), img, image.Point{}, draw.Src)
	return true
}
