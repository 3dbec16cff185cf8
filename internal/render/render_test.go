package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/whisplay/whisplayd/internal/board"
	"github.com/whisplay/whisplayd/internal/config"
	"github.com/whisplay/whisplayd/internal/glyph"
	"github.com/whisplay/whisplayd/internal/logger"
	"github.com/whisplay/whisplayd/internal/state"
)

const testW, testH = 240, 280

func ptr[T any](v T) *T { return &v }

func testFonts(t *testing.T) Fonts {
	t.Helper()
	ff, err := glyph.ParseFont("goregular", goregular.TTF)
	if err != nil {
		t.Fatal(err)
	}
	fonts, err := LoadFonts(ff)
	if err != nil {
		t.Fatal(err)
	}
	return fonts
}

type fixture struct {
	sim    *board.Sim
	store  *state.Store
	engine *Engine
	logs   *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cache := glyph.NewCache(nil, 64)
	store := state.New(cache.InvalidateLines)
	sim := board.NewSim(testW, testH)
	var logs bytes.Buffer
	l := log.NewWithOptions(&logs, log.Options{Level: log.DebugLevel})
	opts := config.Default().Render
	opts.LogoPath = ""
	e := New(sim, store, cache, testFonts(t), opts, l)
	return &fixture{sim: sim, store: store, engine: e, logs: &logs}
}

func TestAnimated(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"Listening", true},
		{"THINKING", true},
		{"processing", true},
		{"Speaking", true},
		{"answering", true},
		{"sleep", false},
		{"Hello", false},
		{"", false},
		{"listening...", false},
	}
	for _, tt := range tests {
		if got := Animated(tt.status); got != tt.want {
			t.Errorf("Animated(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestAnimationClock(t *testing.T) {
	f := newFixture(t)

	f.store.Apply(state.Update{Status: ptr("listening")})
	for i := 0; i < 3; i++ {
		if err := f.engine.RenderFrame(); err != nil {
			t.Fatal(err)
		}
	}
	if got := f.engine.AnimationFrame(); got != 3 {
		t.Fatalf("animation frame = %d, want 3", got)
	}

	f.store.Apply(state.Update{Status: ptr("sleep")})
	for i := 0; i < 3; i++ {
		if err := f.engine.RenderFrame(); err != nil {
			t.Fatal(err)
		}
	}
	if got := f.engine.AnimationFrame(); got != 3 {
		t.Errorf("sleep advanced animation frame to %d", got)
	}
}

func TestOrb(t *testing.T) {
	if got := orbRadius(100, false); got != orbBase {
		t.Errorf("static radius = %v", got)
	}
	for n := 0; n < 200; n++ {
		r := orbRadius(n, true)
		if r < orbBase-orbAmplitude || r > orbBase+orbAmplitude {
			t.Fatalf("radius %v out of range at frame %d", r, n)
		}
	}

	c, ok := ringColor(0, 20)
	if !ok || c.R != 255 || c.A != 255 {
		t.Errorf("center ring = %v %v", c, ok)
	}
	if _, ok := ringColor(20, 20); ok {
		t.Error("ring at the radius should be transparent")
	}
	c, ok = ringColor(21, 20)
	if !ok || c.R == 0 || c.R > 80 || c.A > 100 {
		t.Errorf("glow ring = %v %v", c, ok)
	}
	if _, ok := ringColor(orbMax, 20); ok {
		t.Error("outermost ring should be transparent")
	}

	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	fillBlack(img)
	drawOrb(img, 50, 50, orbBase)
	if c := img.RGBAAt(50, 50); c.R < 128 || c.G != 0 {
		t.Errorf("orb center = %v, want bright red", c)
	}
	if c := img.RGBAAt(5, 5); c.R != 0 {
		t.Errorf("corner = %v, want black", c)
	}
}

func TestHeaderAndCaptionRegions(t *testing.T) {
	f := newFixture(t)
	green := color.RGBA{0x55, 0xFF, 0x00, 0xFF}
	f.store.Apply(state.Update{
		Status:       ptr("Hello"),
		Caption:      ptr("Waiting for message..."),
		BatteryLevel: ptr(87),
		BatteryColor: &green,
	})
	if err := f.engine.RenderFrame(); err != nil {
		t.Fatal(err)
	}
	if f.sim.Draws() != 2 {
		t.Fatalf("draws = %d, want header and caption", f.sim.Draws())
	}

	panel := f.sim.Panel()
	// battery fill sits inside the badge
	bx := testW - batteryW - batteryMarginR
	by := StatusFontSize / 2
	if c := panel.RGBAAt(bx+3, by+batteryH-3); c.G < 200 || c.B > 50 {
		t.Errorf("battery fill pixel = %v, want green", c)
	}
	if !hasLitPixel(panel, image.Rect(0, config.HeaderHeight, testW, testH)) {
		t.Error("caption area is blank")
	}

	last := f.engine.LastFrame()
	if last == nil || last.Bounds() != image.Rect(0, 0, testW, testH) {
		t.Fatalf("last frame = %v", last)
	}
}

func hasLitPixel(img *image.RGBA, r image.Rectangle) bool {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if c := img.RGBAAt(x, y); c.R > 100 && c.G > 100 && c.B > 100 {
				return true
			}
		}
	}
	return false
}

func TestNoBatteryWithoutLevel(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.RenderFrame(); err != nil {
		t.Fatal(err)
	}
	panel := f.sim.Panel()
	bx := testW - batteryW - batteryMarginR
	if hasLitPixel(panel, image.Rect(bx, 0, testW, config.HeaderHeight/2)) {
		t.Error("battery drawn without a level")
	}
}

func TestCaptionScrolls(t *testing.T) {
	f := newFixture(t)
	long := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)
	f.store.Apply(state.Update{Caption: ptr(long), ScrollSpeed: ptr(5)})

	prev := 0
	for i := 0; i < 400; i++ {
		if err := f.engine.RenderFrame(); err != nil {
			t.Fatal(err)
		}
		off := f.store.Snapshot().ScrollOffset
		if off < prev {
			t.Fatalf("offset went back from %d to %d", prev, off)
		}
		prev = off
	}
	if prev == 0 {
		t.Fatal("long caption did not scroll")
	}

	lh := f.engine.fonts.Caption.LineHeight()
	lines := len(wrapForTest(f.engine, long))
	limit := (lines+1)*lh - (testH - config.HeaderHeight)
	if prev != limit {
		t.Errorf("offset settled at %d, want limit %d", prev, limit)
	}
}

func wrapForTest(e *Engine, text string) []string {
	var out []string
	width, line := 0, []rune{}
	measure := e.cache.Measurer(e.fonts.Caption)
	for _, r := range text {
		w := measure(r)
		if width+w > e.width-2*captionMargin && len(line) > 0 {
			out = append(out, string(line))
			line, width = nil, 0
		}
		line = append(line, r)
		width += w
	}
	if len(line) > 0 {
		out = append(out, string(line))
	}
	return out
}

func TestShortCaptionDoesNotScroll(t *testing.T) {
	f := newFixture(t)
	f.store.Apply(state.Update{Caption: ptr("hi"), ScrollSpeed: ptr(2)})
	for i := 0; i < 10; i++ {
		if err := f.engine.RenderFrame(); err != nil {
			t.Fatal(err)
		}
	}
	if off := f.store.Snapshot().ScrollOffset; off != 0 {
		t.Errorf("offset = %d, want 0", off)
	}
}

func TestCaptionReplacedMidFrame(t *testing.T) {
	f := newFixture(t)
	long := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)
	f.store.Apply(state.Update{Caption: ptr(long), ScrollSpeed: ptr(5)})
	old := f.store.Snapshot()

	// a new caption lands between the snapshot and the scroll step
	f.store.Apply(state.Update{Caption: ptr("Bye")})
	f.engine.renderCaption(old.Caption, old.ScrollOffset, old.CaptionGen)

	for i := 0; i < 5; i++ {
		if err := f.engine.RenderFrame(); err != nil {
			t.Fatal(err)
		}
	}
	if off := f.store.Snapshot().ScrollOffset; off != 0 {
		t.Errorf("offset = %d, want 0 for a one-line caption", off)
	}
}

func TestCropSize(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		wantW      int
		wantH      int
	}{
		{"square source crops width", 1024, 1024, 877, 1024},
		{"tall source crops height", 240, 560, 240, 280},
		{"narrow source", 100, 1000, 100, 116},
		{"exact ratio", 480, 560, 480, 560},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := cropSize(tt.srcW, tt.srcH, testW, testH)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("cropSize = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func writePNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	if err := png.Encode(out, img); err != nil {
		t.Fatal(err)
	}
}

func TestImageMode(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "blue.png")
	writePNG(t, path, 400, 200, color.RGBA{0, 0, 255, 255})

	f.store.Apply(state.Update{ImagePath: &path})
	if err := f.engine.RenderFrame(); err != nil {
		t.Fatal(err)
	}
	if f.sim.Draws() != 1 {
		t.Fatalf("draws = %d, want one full-screen region", f.sim.Draws())
	}
	if c := f.sim.Panel().RGBAAt(testW/2, testH/2); c.B < 240 || c.R != 0 {
		t.Errorf("center pixel = %v, want blue", c)
	}
	if f.store.Image(path) == nil {
		t.Error("decoded image not cached in the store")
	}
}

func TestMissingImageKeepsPreviousFrame(t *testing.T) {
	f := newFixture(t)
	f.store.Apply(state.Update{Status: ptr("Hello"), Caption: ptr("before")})
	if err := f.engine.RenderFrame(); err != nil {
		t.Fatal(err)
	}
	before := f.sim.Panel()
	draws := f.sim.Draws()

	f.store.Apply(state.Update{ImagePath: ptr("/tmp/whisplayd-missing.png")})
	for i := 0; i < 3; i++ {
		if err := f.engine.RenderFrame(); err != nil {
			t.Fatal(err)
		}
	}
	if f.sim.Draws() != draws {
		t.Errorf("draws went from %d to %d", draws, f.sim.Draws())
	}
	if !bytes.Equal(before.Pix, f.sim.Panel().Pix) {
		t.Error("panel changed after a failed image load")
	}
	if n := strings.Count(f.logs.String(), "failed to load image"); n != 1 {
		t.Errorf("failure logged %d times, want 1", n)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.engine.log = logger.Discard()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	if f.sim.Draws() == 0 {
		t.Error("no frames rendered")
	}
}

func TestInitShowsLogo(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "logo.png")
	writePNG(t, path, 60, 70, color.RGBA{255, 0, 0, 255})
	f.engine.opts.LogoPath = path
	f.engine.opts.Splash = 10 * time.Millisecond

	if err := f.engine.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.sim.Backlight() != 100 {
		t.Errorf("backlight = %d", f.sim.Backlight())
	}
	if c := f.sim.Panel().RGBAAt(10, 10); c.R < 240 {
		t.Errorf("logo pixel = %v, want red", c)
	}
}

func TestInitBadLogoIsFatal(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "logo.png")
	if err := os.WriteFile(path, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	f.engine.opts.LogoPath = path
	if err := f.engine.Init(context.Background()); err == nil {
		t.Error("expected error for undecodable logo")
	}
}

func TestPaste(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	fillBlack(dst)
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	paste(dst, src, -1, 3)
	if c := dst.RGBAAt(0, 3); c.R != 255 {
		t.Errorf("clipped paste missing: %v", c)
	}
	if c := dst.RGBAAt(1, 3); c.R != 0 {
		t.Errorf("paste overflowed: %v", c)
	}
}

func TestPerValueCachesBounded(t *testing.T) {
	f := newFixture(t)
	f.engine.log = logger.Discard()
	for i := 0; i < 200; i++ {
		c := color.RGBA{uint8(i), uint8(255 - i), 0x40, 0xFF}
		f.engine.renderBattery(f.engine.header, 50, &c)
		if n := len(f.engine.badges); n > maxBadges {
			t.Fatalf("after %d colours badges = %d, want <= %d", i+1, n, maxBadges)
		}
	}

	dir := t.TempDir()
	for i := 0; i < 200; i++ {
		f.store.Apply(state.Update{ImagePath: ptr(filepath.Join(dir, fmt.Sprintf("missing-%d.png", i)))})
		if err := f.engine.RenderFrame(); err != nil {
			t.Fatal(err)
		}
		if n := len(f.engine.failed); n > maxFailedPaths {
			t.Fatalf("after %d paths failed = %d, want <= %d", i+1, n, maxFailedPaths)
		}
	}
}

// panickyBoard panics on the first n region draws.
type panickyBoard struct {
	*board.Sim
	n atomic.Int32
}

func (b *panickyBoard) DrawRegion(x, y, w, h int, pix []byte) error {
	if b.n.Add(-1) >= 0 {
		panic("spi transfer aborted")
	}
	return b.Sim.DrawRegion(x, y, w, h, pix)
}

func TestRunSurvivesRenderPanic(t *testing.T) {
	f := newFixture(t)
	pb := &panickyBoard{Sim: f.sim}
	pb.n.Store(3)
	f.engine.board = pb

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for f.sim.Draws() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}

	if f.sim.Draws() == 0 {
		t.Fatal("no frames rendered after the panics")
	}
	logs := f.logs.String()
	if !strings.Contains(logs, "spi transfer aborted") {
		t.Errorf("panic not logged:\n%s", logs)
	}
	if n := strings.Count(logs, "frame skipped"); n != 1 {
		t.Errorf("frame skipped logged %d times, want 1", n)
	}
}
