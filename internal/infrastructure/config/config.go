package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Standard configuration locations, searched in order by LoadDefault.
const (
	// EnvConfigPath names an explicit config file and wins over the search list.
	EnvConfigPath = "RADIOTHERM_CONFIG"

	// SystemConfigPath is the packaged install location.
	SystemConfigPath = "/etc/radio_thermostat/config.yaml"

	// LocalConfigPath is the fallback relative to the working directory.
	LocalConfigPath = "config.yaml"
)

// Enum policies accepted by bridge.enum_policy.
const (
	EnumPolicyLenient = "lenient"
	EnumPolicyStrict  = "strict"
)

// ErrNotFound is returned when no candidate configuration file exists.
var ErrNotFound = errors.New("config: no configuration file found")

// Config is the root configuration structure for the thermostat bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Homie      HomieConfig      `yaml:"homie"`
	Thermostat ThermostatConfig `yaml:"thermostat"`
	Update     UpdateConfig     `yaml:"update"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keepalive"` // seconds
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	Legacy LegacyMQTTConfig `yaml:",inline"`
}

// LegacyMQTTConfig holds the flat homie4-style keys used by configs written
// for the earlier Python bridge. Any key that is set overrides the
// structured equivalent; see applyLegacyMQTT.
type LegacyMQTTConfig struct {
	Broker    string `yaml:"MQTT_BROKER"`
	Port      int    `yaml:"MQTT_PORT"`
	Username  string `yaml:"MQTT_USERNAME"`
	Password  string `yaml:"MQTT_PASSWORD"`
	ClientID  string `yaml:"MQTT_CLIENT_ID"`
	KeepAlive int    `yaml:"MQTT_KEEPALIVE"`
	UseTLS    bool   `yaml:"MQTT_USE_TLS"`

	// ShareClient is accepted for compatibility; there is one device per
	// connection regardless.
	ShareClient bool `yaml:"MQTT_SHARE_CLIENT"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// HomieConfig controls how the device appears in the Homie topic tree.
type HomieConfig struct {
	// BaseTopic is the Homie root, "homie" by convention.
	BaseTopic string `yaml:"base_topic"`

	// DeviceID overrides the ID derived from the thermostat name.
	DeviceID string `yaml:"device_id"`

	// Name overrides the display name reported by the thermostat.
	Name string `yaml:"name"`
}

// ThermostatConfig contains device client settings.
type ThermostatConfig struct {
	// Host is the thermostat address. Empty means discover via SSDP.
	Host string `yaml:"host"`

	// Timeout bounds every HTTP request to the device (seconds).
	Timeout int `yaml:"timeout"`

	// DiscoveryTimeout bounds SSDP discovery (seconds).
	DiscoveryTimeout int `yaml:"discovery_timeout"`
}

// UpdateConfig controls the polling cadence.
type UpdateConfig struct {
	// Interval between refreshes, in minutes.
	Interval int `yaml:"interval"`
}

// BridgeConfig contains state-synchronisation settings.
type BridgeConfig struct {
	// EnumPolicy is "lenient" (numeric codes pass through) or "strict".
	EnumPolicy string `yaml:"enum_policy"`
}

// APIConfig contains the optional health/metrics HTTP server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
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
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RADIOTHERM_SECTION_KEY
// For example: RADIOTHERM_MQTT_HOST, RADIOTHERM_THERMOSTAT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Unknown keys are errors: a misspelt section would otherwise fall back
	// to defaults and connect to the wrong broker without a word.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	applyLegacyMQTT(&cfg.MQTT)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadDefault locates the configuration file in the standard places and loads it.
// It returns the path that was used alongside the config.
func LoadDefault() (*Config, string, error) {
	path, err := Locate(SearchPaths()...)
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// SearchPaths returns the candidate config locations in priority order.
func SearchPaths() []string {
	paths := make([]string, 0, 3)
	if v := os.Getenv(EnvConfigPath); v != "" {
		paths = append(paths, v)
	}
	return append(paths, SystemConfigPath, LocalConfigPath)
}

// Locate returns the first path that exists as a regular file.
// Errors other than "does not exist" (permissions, for example) are returned
// immediately rather than silently skipped.
func Locate(paths ...string) (string, error) {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("checking %s: %w", p, err)
		}
		if info.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w (searched: %s)", ErrNotFound, strings.Join(paths, ", "))
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:       1,
			KeepAlive: 60,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Homie: HomieConfig{
			BaseTopic: "homie",
		},
		Thermostat: ThermostatConfig{
			Timeout:          10,
			DiscoveryTimeout: 5,
		},
		Update: UpdateConfig{
			Interval: 5,
		},
		Bridge: BridgeConfig{
			EnumPolicy: EnumPolicyLenient,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 9110,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyLegacyMQTT copies any flat MQTT_* keys onto the structured fields.
func applyLegacyMQTT(m *MQTTConfig) {
	l := m.Legacy
	if l.Broker != "" {
		m.Broker.Host = l.Broker
	}
	if l.Port != 0 {
		m.Broker.Port = l.Port
	}
	if l.Username != "" {
		m.Auth.Username = l.Username
	}
	if l.Password != "" {
		m.Auth.Password = l.Password
	}
	if l.ClientID != "" {
		m.Broker.ClientID = l.ClientID
	}
	if l.KeepAlive != 0 {
		m.KeepAlive = l.KeepAlive
	}
	if l.UseTLS {
		m.Broker.TLS = true
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RADIOTHERM_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("RADIOTHERM_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RADIOTHERM_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("RADIOTHERM_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RADIOTHERM_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Thermostat
	if v := os.Getenv("RADIOTHERM_THERMOSTAT_HOST"); v != "" {
		cfg.Thermostat.Host = v
	}

	// Logging
	if v := os.Getenv("RADIOTHERM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive < 1 {
		errs = append(errs, "mqtt.keepalive must be at least 1 second")
	}

	if c.Homie.BaseTopic == "" || strings.ContainsAny(c.Homie.BaseTopic, "+#") {
		errs = append(errs, "homie.base_topic must be a non-empty topic without wildcards")
	}

	if c.Thermostat.Timeout <= 0 {
		errs = append(errs, "thermostat.timeout must be positive")
	}

	if c.Update.Interval < 1 {
		errs = append(errs, "update.interval must be at least 1 minute")
	}

	switch c.Bridge.EnumPolicy {
	case EnumPolicyLenient, EnumPolicyStrict:
	default:
		errs = append(errs, fmt.Sprintf("bridge.enum_policy must be %q or %q", EnumPolicyLenient, EnumPolicyStrict))
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetUpdateInterval returns the polling interval as a Duration.
func (c *Config) GetUpdateInterval() time.Duration {
	return time.Duration(c.Update.Interval) * time.Minute
}

// GetThermostatTimeout returns the device request timeout as a Duration.
func (c *Config) GetThermostatTimeout() time.Duration {
	return time.Duration(c.Thermostat.Timeout) * time.Second
}

// GetDiscoveryTimeout returns the SSDP discovery timeout as a Duration.
func (c *Config) GetDiscoveryTimeout() time.Duration {
	return time.Duration(c.Thermostat.DiscoveryTimeout) * time.Second
}

// Address returns the listen address for the HTTP side-server.
func (a APIConfig) Address() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}
