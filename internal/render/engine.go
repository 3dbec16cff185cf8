// Package render composes display frames from the shared state and pushes
// them to the board at a fixed rate.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"

	"github.com/whisplay/whisplayd/internal/board"
	"github.com/whisplay/whisplayd/internal/colorutil"
	"github.com/whisplay/whisplayd/internal/config"
	"github.com/whisplay/whisplayd/internal/glyph"
	"github.com/whisplay/whisplayd/internal/state"
)

// Fonts are the three faces the engine draws with.
type Fonts struct {
	Status  *glyph.Font
	Battery *glyph.Font
	Caption *glyph.Font
}

// LoadFonts builds the engine faces from one font file.
func LoadFonts(ff *glyph.FontFile) (Fonts, error) {
	var fonts Fonts
	var err error
	if fonts.Status, err = ff.Face(StatusFontSize); err != nil {
		return fonts, err
	}
	if fonts.Battery, err = ff.Face(BatteryFontSize); err != nil {
		return fonts, err
	}
	if fonts.Caption, err = ff.Face(CaptionFontSize); err != nil {
		return fonts, err
	}
	return fonts, nil
}

// Badges and failed image paths are keyed by client input; both maps are
// emptied once they reach these sizes.
const (
	maxBadges      = 32
	maxFailedPaths = 64
)

// Engine is the compositor. All drawing happens on the goroutine running
// Run (or calling RenderFrame); only LastFrame may be called concurrently.
type Engine struct {
	board  board.Board
	store  *state.Store
	cache  *glyph.Cache
	fonts  Fonts
	opts   config.RenderConfig
	log    *log.Logger
	width  int
	height int

	full    *image.RGBA // whole panel, composed each frame
	header  *image.RGBA
	caption *image.RGBA

	frame     int // animation clock
	composed  composed
	badges    map[color.RGBA]*image.RGBA
	failed    map[string]bool
	imagePath string
	lastErr   string

	lastMu sync.Mutex
	last   *image.RGBA
}

// New creates an engine drawing onto b.
func New(b board.Board, store *state.Store, cache *glyph.Cache, fonts Fonts, opts config.RenderConfig, logger *log.Logger) *Engine {
	w, h := b.Size()
	return &Engine{
		board:   b,
		store:   store,
		cache:   cache,
		fonts:   fonts,
		opts:    opts,
		log:     logger,
		width:   w,
		height:  h,
		full:    image.NewRGBA(image.Rect(0, 0, w, h)),
		header:  image.NewRGBA(image.Rect(0, 0, w, config.HeaderHeight)),
		caption: image.NewRGBA(image.Rect(0, 0, w, h-config.HeaderHeight)),
		badges:  make(map[color.RGBA]*image.RGBA),
		failed:  make(map[string]bool),
	}
}

// Init shows the logo, if one is configured and present, with the backlight
// fully on and holds it for the splash duration. Errors here are fatal to
// the daemon: the panel is not usable.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.board.SetBacklight(100); err != nil {
		return fmt.Errorf("backlight: %w", err)
	}
	if e.opts.LogoPath == "" {
		return nil
	}
	if _, err := os.Stat(e.opts.LogoPath); errors.Is(err, os.ErrNotExist) {
		e.log.Debug("no logo", "path", e.opts.LogoPath)
		return nil
	}

	img, err := imaging.Open(e.opts.LogoPath)
	if err != nil {
		return fmt.Errorf("load logo: %w", err)
	}
	logo := imaging.Resize(img, e.width, e.height, imaging.Lanczos)
	draw.Draw(e.full, e.full.Bounds(), logo, image.Point{}, draw.Src)
	if err := e.push(e.full, 0); err != nil {
		return fmt.Errorf("draw logo: %w", err)
	}
	e.publish()

	select {
	case <-ctx.Done():
	case <-time.After(e.opts.Splash):
	}
	return nil
}

// Run renders frames until ctx is cancelled. Each sleep is shortened by
// the time the frame took to render.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.opts.FrameInterval()
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	e.log.Info("render loop started", "fps", e.opts.FPS)
	for {
		start := time.Now()
		if err := e.safeFrame(); err != nil {
			if msg := err.Error(); msg != e.lastErr {
				e.log.Warn("frame skipped", "err", err)
				e.lastErr = msg
			}
		} else {
			e.lastErr = ""
		}

		wait := max(interval-time.Since(start), 0)
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			e.log.Info("render loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

// safeFrame runs RenderFrame and reports a panic as an error. The stack is
// logged once per distinct panic.
func (e *Engine) safeFrame() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panic: %v", r)
			if err.Error() != e.lastErr {
				e.log.Error("render panic", "panic", r, "stack", string(debug.Stack()))
			}
		}
	}()
	return e.RenderFrame()
}

// RenderFrame composes and pushes one frame from a single state snapshot.
func (e *Engine) RenderFrame() error {
	d := e.store.Snapshot()

	if d.ImageMode() {
		if d.ImagePath != e.imagePath {
			delete(e.failed, d.ImagePath)
		}
		e.imagePath = d.ImagePath
		if !e.renderImage(d.ImagePath) {
			return nil
		}
		if err := e.push(e.full, 0); err != nil {
			return err
		}
		e.publish()
		return nil
	}
	e.imagePath = ""

	e.renderHeader(d.Status, d.BatteryLevel, d.BatteryColor)
	if err := e.push(e.header, 0); err != nil {
		return err
	}
	e.renderCaption(d.Caption, d.ScrollOffset, d.CaptionGen)
	if err := e.push(e.caption, config.HeaderHeight); err != nil {
		return err
	}

	draw.Draw(e.full, e.header.Bounds(), e.header, image.Point{}, draw.Src)
	draw.Draw(e.full, e.caption.Bounds().Add(image.Pt(0, config.HeaderHeight)), e.caption, image.Point{}, draw.Src)
	e.publish()
	return nil
}

// push sends img to the board as a full-width region starting at row y.
func (e *Engine) push(img *image.RGBA, y int) error {
	b := img.Bounds()
	if err := e.board.DrawRegion(0, y, b.Dx(), b.Dy(), colorutil.EncodeRGB565(img)); err != nil {
		return fmt.Errorf("draw region at y=%d: %w", y, err)
	}
	return nil
}

func (e *Engine) publish() {
	e.lastMu.Lock()
	defer e.lastMu.Unlock()
	if e.last == nil {
		e.last = image.NewRGBA(e.full.Rect)
	}
	copy(e.last.Pix, e.full.Pix)
}

// LastFrame returns a copy of the last frame pushed to the board, or nil
// before the first one.
func (e *Engine) LastFrame() *image.RGBA {
	e.lastMu.Lock()
	defer e.lastMu.Unlock()
	if e.last == nil {
		return nil
	}
	cp := image.NewRGBA(e.last.Rect)
	copy(cp.Pix, e.last.Pix)
	return cp
}

// AnimationFrame returns the orb animation clock.
func (e *Engine) AnimationFrame() int { return e.frame }
