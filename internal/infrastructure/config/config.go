package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic access gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	API        APIConfig        `yaml:"api"`
	Terminal   TerminalConfig   `yaml:"terminal"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Simulator  SimulatorConfig  `yaml:"simulator"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// TerminalConfig holds the default terminal endpoint and the transport
// policy. Every request may override the endpoint fields.
type TerminalConfig struct {
	// Host is the default terminal address.
	Host string `yaml:"host"`

	// Port is the default terminal port. Default: 4370
	Port int `yaml:"port"`

	// CommKey is the terminal communication password. 0 means none.
	CommKey int `yaml:"comm_key"`

	// Timeout bounds a single session in seconds. Default: 50
	Timeout int `yaml:"timeout"`

	// Transport is the primary transport, "tcp" or "udp". Default: tcp
	Transport string `yaml:"transport"`

	// FallbackTransport is tried once when the primary fails. Default: udp
	FallbackTransport string `yaml:"fallback_transport"`

	// OmitPing skips the ICMP reachability check before connecting.
	OmitPing bool `yaml:"omit_ping"`

	// Driver selects the terminal backend: "simulator" or "none".
	Driver string `yaml:"driver"`
}

// AttendanceConfig controls attendance listing.
type AttendanceConfig struct {
	// AfterYear restricts the unfiltered listing to events strictly after
	// this calendar year. 0 disables the restriction.
	AfterYear int `yaml:"after_year"`
}

// SimulatorConfig describes the terminals emulated by the simulator driver.
type SimulatorConfig struct {
	Terminals []SimulatedTerminal `yaml:"terminals"`
}

// SimulatedTerminal seeds one emulated terminal.
type SimulatedTerminal struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	CommKey         int      `yaml:"comm_key"`
	DeviceName      string   `yaml:"device_name"`
	FirmwareVersion string   `yaml:"firmware_version"`
	SerialNumber    string   `yaml:"serial_number"`
	Platform        string   `yaml:"platform"`
	MAC             string   `yaml:"mac"`
	Mask            string   `yaml:"mask"`
	Gateway         string   `yaml:"gateway"`
	Transports      []string `yaml:"transports"`
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
	MaxAttempts  int `yaml:"max_attempts"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig contains JWT token settings. An empty secret disables bearer auth.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_ACCESS_SECTION_KEY
// For example: GRAYLOGIC_ACCESS_DATABASE_PATH, GRAYLOGIC_ACCESS_TERMINAL_HOST
//
// An empty path skips the file step.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

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

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Gray Logic",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-access.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 120,
				Idle:  60,
			},
		},
		Terminal: TerminalConfig{
			Host:              "103.227.17.70",
			Port:              4370,
			CommKey:           454545,
			Timeout:           50,
			Transport:         "tcp",
			FallbackTransport: "udp",
			Driver:            "simulator",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-access",
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
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 120,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_ACCESS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_ACCESS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_ACCESS_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if n, ok := envInt("GRAYLOGIC_ACCESS_API_PORT"); ok {
		cfg.API.Port = n
	}

	// Terminal defaults
	if v := os.Getenv("GRAYLOGIC_ACCESS_TERMINAL_HOST"); v != "" {
		cfg.Terminal.Host = v
	}
	if n, ok := envInt("GRAYLOGIC_ACCESS_TERMINAL_PORT"); ok {
		cfg.Terminal.Port = n
	}
	if n, ok := envInt("GRAYLOGIC_ACCESS_TERMINAL_COMM_KEY"); ok {
		cfg.Terminal.CommKey = n
	}
	if n, ok := envInt("GRAYLOGIC_ACCESS_TERMINAL_TIMEOUT"); ok {
		cfg.Terminal.Timeout = n
	}
	if v := os.Getenv("GRAYLOGIC_ACCESS_TERMINAL_DRIVER"); v != "" {
		cfg.Terminal.Driver = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_ACCESS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_ACCESS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_ACCESS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_ACCESS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("GRAYLOGIC_ACCESS_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error { //nolint:gocognit,gocyclo // flat list of independent checks
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA zone", c.Site.Timezone))
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls.cert_file and api.tls.key_file are required when TLS is enabled")
	}

	// Terminal validation
	if c.Terminal.Port < 1 || c.Terminal.Port > 65535 {
		errs = append(errs, "terminal.port must be between 1 and 65535")
	}
	if c.Terminal.CommKey < 0 {
		errs = append(errs, "terminal.comm_key must not be negative")
	}
	if c.Terminal.Timeout < 1 {
		errs = append(errs, "terminal.timeout must be at least 1 second")
	}
	if !validTransport(c.Terminal.Transport) {
		errs = append(errs, "terminal.transport must be tcp or udp")
	}
	if !validTransport(c.Terminal.FallbackTransport) {
		errs = append(errs, "terminal.fallback_transport must be tcp or udp")
	}
	if c.Terminal.Transport == c.Terminal.FallbackTransport {
		errs = append(errs, "terminal.fallback_transport must differ from terminal.transport")
	}
	switch c.Terminal.Driver {
	case "simulator", "none":
	default:
		errs = append(errs, "terminal.driver must be simulator or none")
	}

	if c.Attendance.AfterYear < 0 {
		errs = append(errs, "attendance.after_year must not be negative")
	}

	for i, t := range c.Simulator.Terminals {
		if t.Host == "" {
			errs = append(errs, fmt.Sprintf("simulator.terminals[%d].host is required", i))
		}
		if t.Port < 1 || t.Port > 65535 {
			errs = append(errs, fmt.Sprintf("simulator.terminals[%d].port must be between 1 and 65535", i))
		}
		for _, tr := range t.Transports {
			if !validTransport(tr) {
				errs = append(errs, fmt.Sprintf("simulator.terminals[%d].transports contains %q", i, tr))
			}
		}
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// An empty secret leaves the API open, which is the supported LAN
	// deployment. A short one is rejected outright.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}
	if c.Security.RateLimit.Enabled && c.Security.RateLimit.RequestsPerMinute < 1 {
		errs = append(errs, "security.rate_limit.requests_per_minute must be positive when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validTransport(s string) bool {
	return s == "tcp" || s == "udp"
}

// Location returns the site timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
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

// TerminalTimeout returns the default terminal session timeout.
func (c *Config) TerminalTimeout() time.Duration {
	return time.Duration(c.Terminal.Timeout) * time.Second
}
