package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for coolpanel.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Panel     PanelConfig     `yaml:"panel"`
	Render    RenderConfig    `yaml:"render"`
	Control   ControlConfig   `yaml:"control"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Media     MediaConfig     `yaml:"media"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PanelConfig describes the USB display panel and its I/O bounds.
type PanelConfig struct {
	// VendorID and ProductID identify the panel on the USB bus.
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`

	// Width and Height are the native raster size of the panel in pixels.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// Interface is the USB interface number claimed for the bulk-OUT endpoint.
	Interface int `yaml:"interface"`

	// HandshakeTimeout bounds each handshake command write.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// HeaderTimeout bounds the per-frame header write.
	HeaderTimeout time.Duration `yaml:"header_timeout"`

	// PayloadTimeout bounds the per-frame pixel payload write.
	PayloadTimeout time.Duration `yaml:"payload_timeout"`
}

// RenderConfig contains render loop pacing.
type RenderConfig struct {
	// MonitorFPS is the refresh rate used for the dashboard and still images.
	MonitorFPS float64 `yaml:"monitor_fps"`

	// DefaultVideoFPS is used when a video source reports no usable rate.
	DefaultVideoFPS float64 `yaml:"default_video_fps"`
}

// ControlConfig contains the local control socket settings.
type ControlConfig struct {
	SocketPath string `yaml:"socket_path"`

	// SocketMode is the octal permission mode applied to the socket file.
	SocketMode string `yaml:"socket_mode"`
}

// TelemetryConfig contains host telemetry and uptime persistence settings.
type TelemetryConfig struct {
	// RAPLPath is the energy counter exposed by the powercap driver (microjoules).
	RAPLPath string `yaml:"rapl_path"`

	// BootIDPath is the kernel file holding the current boot identifier.
	BootIDPath string `yaml:"boot_id_path"`

	// FlushInterval is how often cumulative uptime is persisted.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// PublishInterval rate-limits snapshots forwarded to MQTT/InfluxDB/WebSocket.
	PublishInterval time.Duration `yaml:"publish_interval"`

	Power PowerConfig `yaml:"power"`
}

// PowerConfig controls the energy counter re-probe policy.
type PowerConfig struct {
	// MaxFailures is the number of consecutive read failures after which
	// re-probing is throttled to ReprobeInterval.
	MaxFailures int `yaml:"max_failures"`

	// ReprobeInterval is the minimum gap between throttled re-probes.
	ReprobeInterval time.Duration `yaml:"reprobe_interval"`
}

// MediaConfig contains the external decoder binaries.
type MediaConfig struct {
	FFmpegBinary  string `yaml:"ffmpeg_binary"`
	FFprobeBinary string `yaml:"ffprobe_binary"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: COOLPANEL_SECTION_KEY
// For example: COOLPANEL_DATABASE_PATH, COOLPANEL_CONTROL_SOCKET
//
// Parameters:
//   - path: Path to the YAML configuration file ("" for defaults only)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config matching the DeepCool 320x240 panel.
func defaultConfig() *Config {
	return &Config{
		Panel: PanelConfig{
			VendorID:         0x3633,
			ProductID:        0x0026,
			Width:            320,
			Height:           240,
			Interface:        0,
			HandshakeTimeout: time.Second,
			HeaderTimeout:    500 * time.Millisecond,
			PayloadTimeout:   time.Second,
		},
		Render: RenderConfig{
			MonitorFPS:      5,
			DefaultVideoFPS: 30,
		},
		Control: ControlConfig{
			SocketPath: "/tmp/coolpanel.sock",
			SocketMode: "0660",
		},
		Telemetry: TelemetryConfig{
			RAPLPath:        "/sys/class/powercap/intel-rapl:0/energy_uj",
			BootIDPath:      "/proc/sys/kernel/random/boot_id",
			FlushInterval:   60 * time.Second,
			PublishInterval: 5 * time.Second,
			Power: PowerConfig{
				MaxFailures:     5,
				ReprobeInterval: 30 * time.Second,
			},
		},
		Media: MediaConfig{
			FFmpegBinary:  "ffmpeg",
			FFprobeBinary: "ffprobe",
		},
		Database: DatabaseConfig{
			Path:        "./data/coolpanel.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "coolpanel",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: COOLPANEL_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COOLPANEL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("COOLPANEL_CONTROL_SOCKET"); v != "" {
		cfg.Control.SocketPath = v
	}

	if v := os.Getenv("COOLPANEL_RAPL_PATH"); v != "" {
		cfg.Telemetry.RAPLPath = v
	}

	if v := os.Getenv("COOLPANEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// MQTT
	if v := os.Getenv("COOLPANEL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("COOLPANEL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("COOLPANEL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("COOLPANEL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Panel.Width <= 0 || c.Panel.Height <= 0 {
		errs = append(errs, "panel.width and panel.height must be positive")
	}
	if c.Panel.HandshakeTimeout <= 0 || c.Panel.HeaderTimeout <= 0 || c.Panel.PayloadTimeout <= 0 {
		errs = append(errs, "panel timeouts must be positive")
	}

	if c.Render.MonitorFPS <= 0 {
		errs = append(errs, "render.monitor_fps must be positive")
	}
	if c.Render.DefaultVideoFPS <= 0 {
		errs = append(errs, "render.default_video_fps must be positive")
	}

	if c.Control.SocketPath == "" {
		errs = append(errs, "control.socket_path is required")
	}
	if _, err := c.SocketFileMode(); err != nil {
		errs = append(errs, "control.socket_mode must be an octal permission (e.g. \"0660\")")
	}

	if c.Telemetry.FlushInterval <= 0 {
		errs = append(errs, "telemetry.flush_interval must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.ClientID == "" {
			errs = append(errs, "mqtt.broker.client_id is required when mqtt is enabled")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// SocketFileMode parses Control.SocketMode as an octal file mode.
func (c *Config) SocketFileMode() (os.FileMode, error) {
	mode, err := strconv.ParseUint(c.Control.SocketMode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing socket mode %q: %w", c.Control.SocketMode, err)
	}
	return os.FileMode(mode), nil
}

// MonitorInterval returns the frame interval used outside video mode.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.Render.MonitorFPS)
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
