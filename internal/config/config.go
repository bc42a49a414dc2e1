// Package config resolves runtime configuration with precedence
// ENV > config file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the orchestrator daemon configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	ScenariosDir string `yaml:"scenarios_dir"`
	MediaDir     string `yaml:"media_dir"`
	IQLibraryDir string `yaml:"iq_library_dir"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	BrokerURL string `yaml:"broker_url"`

	DockerNetwork     string `yaml:"docker_network"`
	DashboardImage    string `yaml:"dashboard_image"`
	DashboardBasePort int    `yaml:"dashboard_base_port"`
	DashboardHost     string `yaml:"dashboard_host"`
	SDRImage          string `yaml:"sdr_image"`
	SDRPort           int    `yaml:"sdr_port"`

	TickInterval time.Duration `yaml:"tick_interval"`

	RateLimitRPS   int `yaml:"rate_limit_rps"`
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ListenAddr:        ":8001",
		LogLevel:          "info",
		ScenariosDir:      "/scenarios",
		RedisAddr:         "redis:6379",
		RedisDB:           0,
		BrokerURL:         "tcp://mqtt:1883",
		DockerNetwork:     "range-network",
		DashboardImage:    "team-dashboard:latest",
		DashboardBasePort: 3100,
		DashboardHost:     "localhost",
		SDRImage:          "sdrsim:latest",
		SDRPort:           1234,
		TickInterval:      100 * time.Millisecond,
		RateLimitRPS:      50,
		RateLimitBurst:    100,
	}
}

// Load resolves the effective configuration. When path is non-empty the YAML
// file at path overlays the defaults before environment variables apply.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.ListenAddr = ParseString("EXCON_LISTEN", cfg.ListenAddr)
	cfg.LogLevel = ParseString("EXCON_LOG_LEVEL", cfg.LogLevel)
	cfg.ScenariosDir = ParseString("EXCON_SCENARIOS", cfg.ScenariosDir)
	cfg.MediaDir = ParseString("EXCON_MEDIA", cfg.MediaDir)
	cfg.IQLibraryDir = ParseString("EXCON_IQ_LIBRARY", cfg.IQLibraryDir)
	cfg.RedisAddr = ParseString("EXCON_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = ParseString("EXCON_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = ParseInt("EXCON_REDIS_DB", cfg.RedisDB)
	cfg.BrokerURL = ParseString("EXCON_BROKER_URL", cfg.BrokerURL)
	cfg.DockerNetwork = ParseString("EXCON_DOCKER_NETWORK", cfg.DockerNetwork)
	cfg.DashboardImage = ParseString("EXCON_DASHBOARD_IMAGE", cfg.DashboardImage)
	cfg.DashboardBasePort = ParseInt("EXCON_DASHBOARD_BASE_PORT", cfg.DashboardBasePort)
	cfg.DashboardHost = ParseString("EXCON_DASHBOARD_HOST", cfg.DashboardHost)
	cfg.SDRImage = ParseString("EXCON_SDR_IMAGE", cfg.SDRImage)
	cfg.SDRPort = ParseInt("EXCON_SDR_PORT", cfg.SDRPort)
	cfg.TickInterval = ParseDuration("EXCON_TICK_INTERVAL", cfg.TickInterval)
	cfg.RateLimitRPS = ParseInt("EXCON_RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = ParseInt("EXCON_RATE_LIMIT_BURST", cfg.RateLimitBurst)

	// Library directories default to subdirectories of the scenarios root.
	if cfg.MediaDir == "" {
		cfg.MediaDir = filepath.Join(cfg.ScenariosDir, "media")
	}
	if cfg.IQLibraryDir == "" {
		cfg.IQLibraryDir = filepath.Join(cfg.ScenariosDir, "iq_library")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.ScenariosDir == "" {
		return fmt.Errorf("scenarios directory must not be empty")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	}
	if c.DashboardBasePort <= 0 || c.DashboardBasePort > 65535 {
		return fmt.Errorf("dashboard base port out of range: %d", c.DashboardBasePort)
	}
	return nil
}

// SDRConfig holds the standalone IQ streaming service configuration.
type SDRConfig struct {
	ListenAddr   string
	LogLevel     string
	IQFilePath   string
	SampleRate   int
	ChunkSize    int
	BrokerURL    string
	ControlTopic string
}

// LoadSDR resolves the IQ streaming service configuration from the
// environment.
func LoadSDR() (SDRConfig, error) {
	cfg := SDRConfig{
		ListenAddr:   ParseString("SDRSIM_LISTEN", ":1234"),
		LogLevel:     ParseString("SDRSIM_LOG_LEVEL", "info"),
		IQFilePath:   ParseString("IQ_FILE_PATH", "/iq_files/current.iq"),
		SampleRate:   ParseInt("SAMPLE_RATE", 1024000),
		ChunkSize:    ParseInt("SDRSIM_CHUNK_SIZE", 16384),
		BrokerURL:    ParseString("SDRSIM_BROKER_URL", "tcp://mqtt:1883"),
		ControlTopic: ParseString("SDRSIM_CONTROL_TOPIC", "apex/team/sdr-rf/injects"),
	}
	if cfg.SampleRate <= 0 {
		return SDRConfig{}, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.ChunkSize <= 0 {
		return SDRConfig{}, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	return cfg, nil
}
