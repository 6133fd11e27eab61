package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the volknobd daemon.
//
// The config file is the primary configuration surface; flags exist for
// small ad-hoc overrides (debugging, systemd drop-ins). Defaults and
// validation live here so the rest of the code can assume a well-formed
// config.
type Config struct {
	// Encoder wiring and behavior
	Encoder EncoderConfig `yaml:"encoder"`

	// Push button wiring and debounce
	Button ButtonConfig `yaml:"button"`

	// GPIO driver selection
	GPIO GPIOConfig `yaml:"gpio"`

	// Volume backend selection
	Backend BackendConfig `yaml:"backend"`

	// Volume range and step
	Volume VolumeConfig `yaml:"volume"`

	// Dispatch loop tuning
	Dispatch DispatchConfig `yaml:"dispatch"`

	// IPC socket (used by volknob-ctl and scripting)
	IPC IPCConfig `yaml:"ipc"`

	// State websocket fan-out
	StateWS StateWSConfig `yaml:"state_ws"`

	// MQTT state publishing
	MQTT MQTTConfig `yaml:"mqtt"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type EncoderConfig struct {
	ClkPin int `yaml:"clk_pin"` // channel A, BCM numbering
	DtPin  int `yaml:"dt_pin"`  // channel B, BCM numbering

	// SwapDirection flips which channel leading means "louder". The
	// mapping depends on how the encoder is wired and cannot be guessed.
	SwapDirection bool `yaml:"swap_direction"`
}

type ButtonConfig struct {
	Pin        int `yaml:"pin"` // BCM numbering
	DebounceMS int `yaml:"debounce_ms"`
}

type GPIOConfig struct {
	Driver string `yaml:"driver"`         // "periph" or "cdev"
	Chip   string `yaml:"chip,omitempty"` // cdev only, e.g. /dev/gpiochip0
}

type BackendConfig struct {
	Kind      string `yaml:"kind"`               // "cli" or "http"
	Bin       string `yaml:"bin,omitempty"`      // cli: volume tool binary
	BaseURL   string `yaml:"base_url,omitempty"` // http: player REST base URL
	TimeoutMS int    `yaml:"timeout_ms"`
}

type VolumeConfig struct {
	Min  int `yaml:"min"`
	Max  int `yaml:"max"`
	Step int `yaml:"step"`
}

type DispatchConfig struct {
	// WakeTimeoutS is the liveness safety-net timeout on the wake wait.
	WakeTimeoutS int `yaml:"wake_timeout_s"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type StateWSConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BrokerURL   string `yaml:"broker_url"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Encoder: EncoderConfig{
			ClkPin:        defaultClkPin,
			DtPin:         defaultDtPin,
			SwapDirection: false,
		},
		Button: ButtonConfig{
			Pin:        defaultSwPin,
			DebounceMS: defaultButtonDebounceMS,
		},
		GPIO: GPIOConfig{
			Driver: defaultGPIODriver,
			Chip:   defaultGPIOChip,
		},
		Backend: BackendConfig{
			Kind:      defaultBackendKind,
			Bin:       defaultBackendBin,
			BaseURL:   defaultBackendBaseURL,
			TimeoutMS: defaultBackendTimeoutMS,
		},
		Volume: VolumeConfig{
			Min:  defaultVolumeMin,
			Max:  defaultVolumeMax,
			Step: defaultVolumeStep,
		},
		Dispatch: DispatchConfig{
			WakeTimeoutS: defaultWakeTimeoutS,
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/volknobd.sock",
		},
		StateWS: StateWSConfig{
			Enabled: false,
			Port:    3002,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			BrokerURL:   "tcp://127.0.0.1:1883",
			ClientID:    "volknobd",
			TopicPrefix: "volknob",
			QoS:         1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
// Each override is only applied when its pointer is non-nil.
type FlagOverrides struct {
	ClkPin        *int
	DtPin         *int
	SwPin         *int
	SwapDirection *bool

	GPIODriver *string

	BackendKind    *string
	BackendBin     *string
	BackendBaseURL *string

	IPCSocketPath *string

	StateWSEnabled *bool
	StateWSPort    *int

	LogLevel *string
}

// Apply merges the overrides into cfg. Nil pointers are ignored.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.ClkPin != nil {
		cfg.Encoder.ClkPin = *o.ClkPin
	}
	if o.DtPin != nil {
		cfg.Encoder.DtPin = *o.DtPin
	}
	if o.SwPin != nil {
		cfg.Button.Pin = *o.SwPin
	}
	if o.SwapDirection != nil {
		cfg.Encoder.SwapDirection = *o.SwapDirection
	}

	if o.GPIODriver != nil {
		cfg.GPIO.Driver = *o.GPIODriver
	}

	if o.BackendKind != nil {
		cfg.Backend.Kind = *o.BackendKind
	}
	if o.BackendBin != nil {
		cfg.Backend.Bin = *o.BackendBin
	}
	if o.BackendBaseURL != nil {
		cfg.Backend.BaseURL = *o.BackendBaseURL
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}

	if o.StateWSEnabled != nil {
		cfg.StateWS.Enabled = *o.StateWSEnabled
	}
	if o.StateWSPort != nil {
		cfg.StateWS.Port = *o.StateWSPort
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Encoder / button wiring
	if c.Encoder.ClkPin < 0 || c.Encoder.DtPin < 0 || c.Button.Pin < 0 {
		return errors.New("pin numbers must be >= 0")
	}
	if c.Encoder.ClkPin == c.Encoder.DtPin {
		return errors.New("encoder.clk_pin and encoder.dt_pin must differ")
	}
	if c.Button.Pin == c.Encoder.ClkPin || c.Button.Pin == c.Encoder.DtPin {
		return errors.New("button.pin must differ from the encoder pins")
	}
	if c.Button.DebounceMS < 0 {
		return errors.New("button.debounce_ms must be >= 0")
	}

	// GPIO
	if c.GPIO.Driver != "periph" && c.GPIO.Driver != "cdev" {
		return fmt.Errorf("gpio.driver must be %q or %q", "periph", "cdev")
	}
	if c.GPIO.Driver == "cdev" && c.GPIO.Chip == "" {
		return errors.New("gpio.chip must not be empty for the cdev driver")
	}

	// Backend
	switch c.Backend.Kind {
	case "cli":
		if c.Backend.Bin == "" {
			return errors.New("backend.bin must not be empty for the cli backend")
		}
	case "http":
		if c.Backend.BaseURL == "" {
			return errors.New("backend.base_url must not be empty for the http backend")
		}
	default:
		return fmt.Errorf("backend.kind must be %q or %q", "cli", "http")
	}
	if c.Backend.TimeoutMS <= 0 {
		return errors.New("backend.timeout_ms must be > 0")
	}

	// Volume
	if c.Volume.Min > c.Volume.Max {
		return errors.New("volume.min must be <= volume.max")
	}
	if c.Volume.Step <= 0 {
		return errors.New("volume.step must be > 0")
	}

	// Dispatch
	if c.Dispatch.WakeTimeoutS <= 0 {
		return errors.New("dispatch.wake_timeout_s must be > 0")
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// State websocket
	if c.StateWS.Enabled && (c.StateWS.Port <= 0 || c.StateWS.Port > 65535) {
		return errors.New("state_ws.port must be a valid TCP port")
	}

	// MQTT
	if c.MQTT.Enabled {
		if c.MQTT.BrokerURL == "" {
			return errors.New("mqtt.enabled is true but mqtt.broker_url is empty")
		}
		if c.MQTT.ClientID == "" {
			return errors.New("mqtt.enabled is true but mqtt.client_id is empty")
		}
		if c.MQTT.TopicPrefix == "" {
			return errors.New("mqtt.enabled is true but mqtt.topic_prefix is empty")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return errors.New("mqtt.qos must be 0, 1 or 2")
		}
	}

	// Logging
	if _, ok := logLevels[strings.ToLower(c.Logging.Level)]; !ok {
		return fmt.Errorf("logging.level must be one of error, warn, info, debug (got %q)", c.Logging.Level)
	}

	return nil
}

// pinMap builds the channel-to-pin mapping handed to the GPIO driver.
func (c *Config) pinMap() map[Channel]int {
	return map[Channel]int{
		ChannelA:      c.Encoder.ClkPin,
		ChannelB:      c.Encoder.DtPin,
		ChannelButton: c.Button.Pin,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
