// Package config loads the panel's own settings (listener, agent tool, gateway,
// logging, metrics, history) from an optional file and the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/clawpanel/internal/logger"
	"github.com/loykin/clawpanel/internal/metrics"
)

const (
	EnvPrefix = "CLAWPANEL"

	// listener variables understood by earlier panel releases
	EnvGUIHost = "OPENCLAW_GUI_HOST"
	EnvGUIPort = "OPENCLAW_GUI_PORT"

	DefaultHost     = "127.0.0.1"
	DefaultPort     = 5000
	DefaultBasePath = "/api"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	OpenClaw OpenClawConfig `mapstructure:"openclaw"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Log      logger.Config  `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	History  HistoryConfig  `mapstructure:"history"`

	// Schedules run agent tool subcommands periodically, e.g. a health probe.
	Schedules []ScheduleConfig `mapstructure:"schedules"`
}

type ServerConfig struct {
	Host          string     `mapstructure:"host"`
	Port          int        `mapstructure:"port"`
	BasePath      string     `mapstructure:"base_path"`
	TLS           *TLSConfig `mapstructure:"tls"`
	TLSMinVersion string     `mapstructure:"tls_min_version"`
	TLSMaxVersion string     `mapstructure:"tls_max_version"`
	Auth          AuthConfig `mapstructure:"auth"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type TLSConfig struct {
	Enabled      bool        `mapstructure:"enabled"`
	CertFile     string      `mapstructure:"cert_file"`
	KeyFile      string      `mapstructure:"key_file"`
	Dir          string      `mapstructure:"dir"`
	AutoGenerate bool        `mapstructure:"auto_generate"`
	AutoGen      *AutoGenTLS `mapstructure:"auto_gen"`
}

type AutoGenTLS struct {
	CommonName   string   `mapstructure:"common_name"`
	Organization string   `mapstructure:"organization"`
	DNSNames     []string `mapstructure:"dns_names"`
	IPAddresses  []string `mapstructure:"ip_addresses"`
	ValidDays    int      `mapstructure:"valid_days"`
}

// AuthConfig enables HTTP basic auth on the API. PasswordHash is a bcrypt hash
// as printed by "clawpanel hash-password".
type AuthConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

type OpenClawConfig struct {
	Binary         string        `mapstructure:"binary"`
	ConfigPath     string        `mapstructure:"config_path"`
	WorkDir        string        `mapstructure:"work_dir"`
	Env            []string      `mapstructure:"env"`
	EnvFiles       []string      `mapstructure:"env_files"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	AgentTimeout   time.Duration `mapstructure:"agent_timeout"`
}

type GatewayConfig struct {
	DefaultPort int           `mapstructure:"default_port"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	LogCapacity int           `mapstructure:"log_capacity"`
	// LogFile mirrors gateway output to <log.file.dir>/gateway.log.
	LogFile bool `mapstructure:"log_file"`
}

type MetricsConfig struct {
	Enabled bool                  `mapstructure:"enabled"`
	Path    string                `mapstructure:"path"`
	Sampler metrics.SamplerConfig `mapstructure:"sampler"`
}

type HistoryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Sinks       []string      `mapstructure:"sinks"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type ScheduleConfig struct {
	Name     string        `mapstructure:"name"`
	Args     []string      `mapstructure:"args"`
	Schedule string        `mapstructure:"schedule"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.base_path", DefaultBasePath)
	v.SetDefault("server.tls_min_version", "1.2")
	v.SetDefault("server.tls_max_version", "1.3")
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.dir", "")
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("server.auth.enabled", false)
	v.SetDefault("server.auth.username", "")
	v.SetDefault("server.auth.password_hash", "")

	v.SetDefault("openclaw.binary", "openclaw")
	v.SetDefault("openclaw.config_path", "")
	v.SetDefault("openclaw.work_dir", "")
	v.SetDefault("openclaw.env", []string{})
	v.SetDefault("openclaw.env_files", []string{})
	v.SetDefault("openclaw.command_timeout", 30*time.Second)
	v.SetDefault("openclaw.agent_timeout", 120*time.Second)

	v.SetDefault("gateway.default_port", 18789)
	v.SetDefault("gateway.stop_timeout", 10*time.Second)
	v.SetDefault("gateway.log_capacity", 500)
	v.SetDefault("gateway.log_file", false)

	d := logger.DefaultConfig()
	v.SetDefault("log.slog.level", string(d.Slog.Level))
	v.SetDefault("log.slog.format", string(d.Slog.Format))
	v.SetDefault("log.slog.color", d.Slog.Color)
	v.SetDefault("log.slog.timestamps", d.Slog.TimeStamps)
	v.SetDefault("log.slog.source", d.Slog.Source)
	v.SetDefault("log.file.dir", "")
	v.SetDefault("log.file.app_path", "")
	v.SetDefault("log.file.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.file.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.file.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.sampler.enabled", false)
	v.SetDefault("metrics.sampler.interval", 5*time.Second)
	v.SetDefault("metrics.sampler.history_size", 120)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.sinks", []string{})
	v.SetDefault("history.send_timeout", 5*time.Second)
}

// Load reads path (TOML, YAML or JSON by extension; empty for none) and overlays
// environment variables. CLAWPANEL_<SECTION>_<KEY> overrides any key;
// OPENCLAW_GUI_HOST and OPENCLAW_GUI_PORT select the listener.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.host", EnvGUIHost, EnvPrefix+"_SERVER_HOST")
	_ = v.BindEnv("server.port", EnvGUIPort, EnvPrefix+"_SERVER_PORT")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	c.Server.BasePath = NormalizeBasePath(c.Server.BasePath)
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// NormalizeBasePath returns p with one leading slash and no trailing slash; "" and "/" yield "".
func NormalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Gateway.DefaultPort < 1 || c.Gateway.DefaultPort > 65535 {
		errs = append(errs, fmt.Errorf("gateway.default_port %d out of range", c.Gateway.DefaultPort))
	}
	if c.Gateway.LogCapacity < 0 {
		errs = append(errs, errors.New("gateway.log_capacity must not be negative"))
	}
	if strings.TrimSpace(c.OpenClaw.Binary) == "" {
		errs = append(errs, errors.New("openclaw.binary is required"))
	}
	if c.Server.Auth.Enabled {
		if c.Server.Auth.Username == "" || c.Server.Auth.PasswordHash == "" {
			errs = append(errs, errors.New("server.auth requires username and password_hash"))
		}
	}
	if t := c.Server.TLS; t != nil && t.Enabled {
		hasFiles := t.CertFile != "" && t.KeyFile != ""
		if !hasFiles && t.Dir == "" {
			errs = append(errs, errors.New("server.tls requires cert_file and key_file or dir"))
		}
	}
	return errors.Join(errs...)
}

// OpenClawEnv returns the extra environment for agent tool children: entries of
// each env file in order, then the env list, later keys winning.
func (c *Config) OpenClawEnv() ([]string, error) {
	var out []string
	for _, p := range c.OpenClaw.EnvFiles {
		pairs, err := LoadEnvFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, pairs...)
	}
	return append(out, c.OpenClaw.Env...), nil
}

// LoadEnvFile parses a .env file with KEY=VALUE lines. Blank lines and lines
// starting with # are ignored, as is a leading "export ". Surrounding single or
// double quotes are removed from values.
func LoadEnvFile(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		i := strings.IndexByte(line, '=')
		if i <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:i])
		val := strings.TrimSpace(line[i+1:])
		if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
			val = val[1 : len(val)-1]
		}
		out = append(out, k+"="+val)
	}
	return out, nil
}
