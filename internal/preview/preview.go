// Package preview serves the last rendered frame and the display state over
// HTTP, and accepts control messages as POST bodies.
package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"

	"github.com/whisplay/whisplayd/internal/state"
)

// FrameSource returns the last frame pushed to the panel, or nil.
type FrameSource interface {
	LastFrame() *image.RGBA
}

// Handler runs a control message; see control.Handler.
type Handler interface {
	Handle(line []byte) [][]byte
}

const indexHTML = `<!doctype html>
<html><head><title>whisplayd</title></head>
<body style="background:#222;margin:0;display:flex;justify-content:center;align-items:center;height:100vh">
<img id="f" src="/frame" style="image-rendering:pixelated;border:1px solid #444">
<script>setInterval(()=>{document.getElementById("f").src="/frame?t="+Date.now()},200)</script>
</body></html>`

// StateView is the JSON form of the display record.
type StateView struct {
	Status       string  `json:"status"`
	Emoji        string  `json:"emoji"`
	Text         string  `json:"text"`
	ScrollOffset int     `json:"scroll_offset"`
	ScrollSpeed  int     `json:"scroll_speed"`
	BatteryLevel *int    `json:"battery_level"`
	BatteryColor *string `json:"battery_color"`
	Image        string  `json:"image"`
}

func viewOf(d state.Display) StateView {
	v := StateView{
		Status:       d.Status,
		Emoji:        d.Emoji,
		Text:         d.Caption,
		ScrollOffset: d.ScrollOffset,
		ScrollSpeed:  d.ScrollSpeed,
		BatteryLevel: d.BatteryLevel,
		Image:        d.ImagePath,
	}
	if c := d.BatteryColor; c != nil {
		hex := fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
		v.BatteryColor = &hex
	}
	return v
}

// Server is the preview HTTP server.
type Server struct {
	app     *fiber.App
	frames  FrameSource
	store   *state.Store
	handler Handler
	log     *log.Logger
}

// New builds the routes.
func New(frames FrameSource, store *state.Store, h Handler, logger *log.Logger) *Server {
	s := &Server{
		app:     fiber.New(fiber.Config{DisableStartupMessage: true}),
		frames:  frames,
		store:   store,
		handler: h,
		log:     logger,
	}
	s.app.Get("/", s.index)
	s.app.Get("/frame", s.serveFrame)
	s.app.Get("/state", s.serveState)
	s.app.Post("/data", s.updateData)
	return s
}

// App exposes the fiber app, for tests.
func (s *Server) App() *fiber.App { return s.app }

// Run listens on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() { errc <- s.app.Listen(addr) }()
	s.log.Info("preview server listening", "addr", addr)

	select {
	case err := <-errc:
		return fmt.Errorf("preview server: %w", err)
	case <-ctx.Done():
	}
	if err := s.app.Shutdown(); err != nil {
		return fmt.Errorf("preview shutdown: %w", err)
	}
	<-errc
	s.log.Info("preview server stopped")
	return nil
}

func (s *Server) index(c *fiber.Ctx) error {
	c.Type("html")
	return c.SendString(indexHTML)
}

func (s *Server) serveFrame(c *fiber.Ctx) error {
	frame := s.frames.LastFrame()
	if frame == nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("No frame available")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		s.log.Warn("failed to encode frame", "err", err)
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to encode image")
	}

	c.Set("Content-Type", "image/png")
	c.Set("Content-Length", strconv.Itoa(buf.Len()))
	c.Set("Cache-Control", "no-store")
	return c.Send(buf.Bytes())
}

func (s *Server) serveState(c *fiber.Ctx) error {
	return c.JSON(viewOf(s.store.Snapshot()))
}

// updateData runs the body as one control message. The reply lines are
// returned as text; errors answer 400.
func (s *Server) updateData(c *fiber.Ctx) error {
	body := bytes.TrimSpace(c.Body())
	replies := s.handler.Handle(body)

	status := fiber.StatusOK
	if len(replies) > 0 && bytes.HasPrefix(replies[0], []byte("ERROR")) {
		status = fiber.StatusBadRequest
	}
	c.Type("txt")
	return c.Status(status).Send(append(bytes.Join(replies, []byte("\n")), '\n'))
}
