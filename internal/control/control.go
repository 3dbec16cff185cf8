// Package control decodes display commands and applies them to the
// display state and the board. It knows nothing about transports: the TCP
// server, the MQTT bridge and the preview server all feed it raw JSON.
package control

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/charmbracelet/log"

	"github.com/whisplay/whisplayd/internal/board"
	"github.com/whisplay/whisplayd/internal/colorutil"
	"github.com/whisplay/whisplayd/internal/state"
)

// ErrInvalidJSON is returned for input that is not JSON at all.
var ErrInvalidJSON = errors.New("invalid JSON")

const (
	// DefaultScrollSpeed applies when a message sets text without a speed.
	DefaultScrollSpeed = 2
	// LEDFade is the duration of an RGB colour change.
	LEDFade = 500 * time.Millisecond
)

// Button event names broadcast to clients.
const (
	EventButtonPressed  = "button_pressed"
	EventButtonReleased = "button_released"
)

// Message is one command. Absent fields are left untouched. Colour fields
// hold either a hex string or an RGB565 integer, so they stay untyped until
// Apply.
type Message struct {
	Status        *string         `json:"status"`
	Emoji         *string         `json:"emoji"`
	Text          *string         `json:"text"`
	ScrollSpeed   *int            `json:"scroll_speed"`
	BatteryLevel  *int            `json:"battery_level"`
	BatteryColor  any             `json:"battery_color"`
	Image         *string         `json:"image"`
	RGB           any             `json:"RGB"`
	Brightness    *int            `json:"brightness"`
	Response      json.RawMessage `json:"response"`
	TransactionID any             `json:"transaction_id"`
}

// Decode parses one line. It returns ErrInvalidJSON when the line is not
// JSON, and a decode error when it is JSON of the wrong shape.
func Decode(line []byte) (Message, error) {
	var m Message
	if !json.Valid(line) {
		return m, ErrInvalidJSON
	}
	if err := json.Unmarshal(line, &m); err != nil {
		return m, err
	}
	return m, nil
}

// HasResponse reports whether the message carries a non-null response.
func (m Message) HasResponse() bool {
	return len(m.Response) > 0 && !bytes.Equal(bytes.TrimSpace(m.Response), []byte("null"))
}

// ResponseLine is the {"response": ...} record echoed after OK.
func (m Message) ResponseLine() ([]byte, error) {
	return json.Marshal(struct {
		Response json.RawMessage `json:"response"`
	}{m.Response})
}

// Update converts the display fields to a state update, validating the
// battery colour.
func (m Message) Update() (state.Update, error) {
	u := state.Update{
		Status:       m.Status,
		Emoji:        m.Emoji,
		Caption:      m.Text,
		ScrollSpeed:  m.ScrollSpeed,
		BatteryLevel: m.BatteryLevel,
		ImagePath:    m.Image,
	}
	if u.Caption != nil && u.ScrollSpeed == nil {
		speed := DefaultScrollSpeed
		u.ScrollSpeed = &speed
	}
	if m.BatteryColor != nil {
		c, err := colorutil.Parse(m.BatteryColor)
		if err != nil {
			return u, fmt.Errorf("battery_color: %w", err)
		}
		u.BatteryColor = &c
	}
	return u, nil
}

// Handler applies messages to one store and board.
type Handler struct {
	store *state.Store
	board board.Board
	log   *log.Logger
}

// NewHandler returns a handler.
func NewHandler(store *state.Store, b board.Board, logger *log.Logger) *Handler {
	return &Handler{store: store, board: b, log: logger}
}

// Apply performs m. Every field is validated before anything changes, so a
// rejected message has no effect.
func (h *Handler) Apply(m Message) error {
	u, err := m.Update()
	if err != nil {
		return err
	}
	var led *[3]uint8
	if m.RGB != nil {
		c, err := colorutil.Parse(m.RGB)
		if err != nil {
			return fmt.Errorf("RGB: %w", err)
		}
		led = &[3]uint8{c.R, c.G, c.B}
	}

	if led != nil {
		if err := h.board.SetLEDColor(led[0], led[1], led[2], LEDFade); err != nil {
			return fmt.Errorf("set LED: %w", err)
		}
	}
	if m.Brightness != nil {
		if err := h.board.SetBacklight(board.ClampPercent(*m.Brightness)); err != nil {
			return fmt.Errorf("set backlight: %w", err)
		}
	}
	if !u.Empty() {
		h.store.Apply(u)
	}
	return nil
}

// Handle runs one line and returns the reply lines, without newlines.
func (h *Handler) Handle(line []byte) [][]byte {
	m, err := Decode(line)
	if err == nil {
		err = h.Apply(m)
	}
	if err != nil {
		return [][]byte{ErrorReply(err)}
	}

	replies := [][]byte{[]byte("OK")}
	if m.HasResponse() {
		resp, err := m.ResponseLine()
		if err != nil {
			h.log.Warn("failed to encode response", "err", err)
			return replies
		}
		replies = append(replies, resp)
	}
	return replies
}

// ErrorReply formats err as a protocol error line.
func ErrorReply(err error) []byte {
	return []byte("ERROR: " + err.Error())
}

// EventLine encodes a button event record, without the trailing newline.
func EventLine(name string) []byte {
	b, _ := json.Marshal(struct {
		Event string `json:"event"`
	}{name})
	return b
}

// Welcome is the record shown until the first client writes.
func Welcome() state.Update {
	status, emoji, text := "Hello", "😄", "Waiting for message..."
	speed, level := 6, 100
	fill := color.RGBA{R: 0x55, G: 0xFF, A: 255}
	return state.Update{
		Status:       &status,
		Emoji:        &emoji,
		Caption:      &text,
		ScrollSpeed:  &speed,
		BatteryLevel: &level,
		BatteryColor: &fill,
	}
}
