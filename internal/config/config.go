package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the whole whisplayd configuration file.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Display   DisplayConfig   `yaml:"display"`
	Input     InputConfig     `yaml:"input"`
	LED       LEDConfig       `yaml:"led"`
	Backlight BacklightConfig `yaml:"backlight"`
	Render    RenderConfig    `yaml:"render"`
	Preview   PreviewConfig   `yaml:"preview"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the control server listen address.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// DisplayConfig describes the SPI LCD panel.
type DisplayConfig struct {
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	XOffset int    `yaml:"x_offset"`
	YOffset int    `yaml:"y_offset"`
	SPIPort string `yaml:"spi_port"` // empty selects the first port
	SPIHz   int64  `yaml:"spi_hz"`
	DCPin   string `yaml:"dc_pin"`
	RSTPin  string `yaml:"rst_pin"`
	Rotated bool   `yaml:"rotated"` // 180°
}

// InputConfig selects where button events come from.
type InputConfig struct {
	ButtonPin   string        `yaml:"button_pin"`
	EvdevDevice string        `yaml:"evdev_device"` // input device name, takes precedence over ButtonPin
	EvdevKey    uint16        `yaml:"evdev_key"`
	Debounce    time.Duration `yaml:"debounce"`
}

// LEDConfig describes the RGB status LED.
type LEDConfig struct {
	RedPin      string `yaml:"red_pin"`
	GreenPin    string `yaml:"green_pin"`
	BluePin     string `yaml:"blue_pin"`
	CommonAnode bool   `yaml:"common_anode"`
}

// BacklightConfig drives the LCD backlight either by PWM pin or a sysfs brightness file.
type BacklightConfig struct {
	Pin       string `yaml:"pin"`
	SysfsPath string `yaml:"sysfs_path"`
}

// RenderConfig tunes the compositor.
type RenderConfig struct {
	FPS          int           `yaml:"fps"`
	FontPath     string        `yaml:"font_path"`
	EmojiDir     string        `yaml:"emoji_dir"`
	LogoPath     string        `yaml:"logo_path"`
	Splash       time.Duration `yaml:"splash"`
	LineCacheCap int           `yaml:"line_cache_cap"`
}

// PreviewConfig is the HTTP frame preview server. Empty Listen disables it.
type PreviewConfig struct {
	Listen string `yaml:"listen"`
}

// MQTTConfig is the optional MQTT mirror. Empty Broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	UpdateTopic string `yaml:"update_topic"`
	EventTopic  string `yaml:"event_topic"`
	QoS         byte   `yaml:"qos"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // empty or "stderr" logs to stderr
}

var (
	ErrInvalidDisplay = errors.New("invalid display geometry")
	ErrInvalidFPS     = errors.New("fps must be between 1 and 120")
)

// Default returns the configuration for a Whisplay HAT on a Raspberry Pi.
func Default() Config {
	return Config{
		Server: ServerConfig{Listen: "0.0.0.0:12345"},
		Display: DisplayConfig{
			Width:   240,
			Height:  280,
			YOffset: 20,
			SPIHz:   100_000_000,
			DCPin:   "GPIO27",
			RSTPin:  "GPIO4",
		},
		Input: InputConfig{
			ButtonPin: "GPIO17",
			EvdevKey:  116, // KEY_POWER
			Debounce:  20 * time.Millisecond,
		},
		LED: LEDConfig{
			RedPin:      "GPIO25",
			GreenPin:    "GPIO24",
			BluePin:     "GPIO23",
			CommonAnode: true,
		},
		Backlight: BacklightConfig{Pin: "GPIO22"},
		Render: RenderConfig{
			FPS:          30,
			FontPath:     "NotoSansSC-Bold.ttf",
			EmojiDir:     "emoji_svg",
			LogoPath:     "img/logo.png",
			Splash:       time.Second,
			LineCacheCap: 512,
		},
		Preview: PreviewConfig{Listen: ":8081"},
		MQTT: MQTTConfig{
			ClientID:    "whisplayd",
			UpdateTopic: "whisplay/display",
			EventTopic:  "whisplay/events",
			QoS:         1,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the config file at path on top of the defaults.
// A missing file is not an error: the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, cfg.Validate()
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the fields the daemon cannot run without.
func (c Config) Validate() error {
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDisplay, c.Display.Width, c.Display.Height)
	}
	if c.Display.Height <= HeaderHeight {
		return fmt.Errorf("%w: height %d leaves no caption area", ErrInvalidDisplay, c.Display.Height)
	}
	if c.Render.FPS < 1 || c.Render.FPS > 120 {
		return fmt.Errorf("%w: got %d", ErrInvalidFPS, c.Render.FPS)
	}
	if c.Render.FontPath == "" {
		return errors.New("render.font_path is required")
	}
	if c.Server.Listen == "" {
		return errors.New("server.listen is required")
	}
	return nil
}

// HeaderHeight is the fixed height of the status header bar (88 + 10 margin).
const HeaderHeight = 98

// FrameInterval is the nominal time between two rendered frames.
func (r RenderConfig) FrameInterval() time.Duration {
	return time.Second / time.Duration(r.FPS)
}
