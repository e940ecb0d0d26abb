package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"zigbeed/internal/adapter/zboss"
	"zigbeed/internal/coordinator"
	"zigbeed/internal/device"
	"zigbeed/internal/gpio"
	"zigbeed/internal/mqtt"
	"zigbeed/internal/store"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Serial struct {
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"serial"`
	Network struct {
		Channel  uint8  `yaml:"channel"`
		PanID    uint16 `yaml:"pan_id"`
		ExtPanID string `yaml:"extended_pan_id"`
	} `yaml:"network"`
	MQTT struct {
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	GPIO struct {
		StatusPin   int `yaml:"status_pin"`
		ActivityPin int `yaml:"activity_pin"`
	} `yaml:"gpio"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	DevicesDir string `yaml:"devices_dir"`
}

func (c *Config) validate() error {
	if c.Serial.Port == "" {
		return fmt.Errorf("serial.port is required")
	}
	if c.Network.Channel < 11 || c.Network.Channel > 26 {
		return fmt.Errorf("network.channel must be 11-26, got %d", c.Network.Channel)
	}
	if c.Network.PanID == 0 || c.Network.PanID == 0xFFFF {
		return fmt.Errorf("network.pan_id must not be 0x0000 or 0xFFFF")
	}
	return nil
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("zigbeed starting", "version", version)

	extPanID, err := parseExtPanID(cfg.Network.ExtPanID)
	if err != nil {
		logger.Error("parse extended pan id", "err", err)
		os.Exit(1)
	}

	database, err := device.LoadDatabase(cfg.DevicesDir, logger)
	if err != nil {
		logger.Error("load device definitions", "err", err)
		os.Exit(1)
	}

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	radio := zboss.New(zboss.Config{
		Port:     cfg.Serial.Port,
		Baud:     cfg.Serial.Baud,
		Channel:  cfg.Network.Channel,
		PanID:    cfg.Network.PanID,
		ExtPanID: extPanID,
	}, logger)

	events := coordinator.NewEventBus(logger)
	coord := coordinator.New(radio, db, database, events, logger)

	leds := gpio.Open(gpio.Config{
		StatusPin:   cfg.GPIO.StatusPin,
		ActivityPin: cfg.GPIO.ActivityPin,
	}, logger)
	defer leds.Close()

	events.On(coordinator.EventPermitJoin, func(event coordinator.Event) {
		if enabled, ok := event.Data.(bool); ok {
			leds.SetPermitJoin(enabled)
		}
	})
	events.On(coordinator.EventEndpointUpdated, func(coordinator.Event) {
		leds.Activity()
	})

	if err := coord.Start(); err != nil {
		logger.Error("start coordinator", "err", err)
		os.Exit(1)
	}

	var bridge *mqtt.Bridge
	if cfg.MQTT.Broker != "" {
		bridge, err = mqtt.NewBridge(coord, mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger)
		if err != nil {
			logger.Error("connect mqtt", "err", err)
			coord.Stop()
			os.Exit(1)
		}
		bridge.Start()
	} else {
		logger.Warn("mqtt.broker not configured, running without MQTT bridge")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	if bridge != nil {
		bridge.Stop()
	}
	coord.Stop()

	logger.Info("goodbye")
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 115200
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "zigbeed.db"
	}
	if cfg.DevicesDir == "" {
		cfg.DevicesDir = "devices"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "zigbee2mqtt"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

// parseExtPanID reads a 16-hex-digit extended PAN ID, with or without
// colon/dash separators. Empty input yields the all-zero PAN ID, which
// tells the stack to pick one at formation time.
func parseExtPanID(s string) ([8]byte, error) {
	var id [8]byte
	if s == "" {
		return id, nil
	}
	clean := strings.NewReplacer(":", "", "-", "", "0x", "").Replace(strings.ToLower(s))
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return id, fmt.Errorf("extended_pan_id %q: %w", s, err)
	}
	if len(raw) != 8 {
		return id, fmt.Errorf("extended_pan_id %q: want 8 bytes, got %d", s, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
