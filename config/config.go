package config

import (
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// SysConfig system configuration
type SysConfig struct {
	Appid    string `yaml:"appid"`
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
	Debug    bool   `yaml:"debug"`
}

// WebConfig admin api configuration
type WebConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Secret string `yaml:"secret"`
}

// DBConfig database configuration
type DBConfig struct {
	Type     string `yaml:"type"` // sqlite | postgres
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Passwd   string `yaml:"passwd"`
	MaxConn  int    `yaml:"max_conn"`
	IdleConn int    `yaml:"idle_conn"`
	Debug    bool   `yaml:"debug"`
}

// LogConfig logger configuration
type LogConfig struct {
	Mode       string `yaml:"mode"`
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

// WhatsappConfig tenant lifecycle tuning
type WhatsappConfig struct {
	PairingDelay       time.Duration `yaml:"pairing_delay"`
	SyncDelay          time.Duration `yaml:"sync_delay"`
	ReconnectBase      time.Duration `yaml:"reconnect_base"`
	ReconnectMax       time.Duration `yaml:"reconnect_max"`
	ReconnectAttempts  int           `yaml:"reconnect_attempts"`
	DispatchWorkers    int           `yaml:"dispatch_workers"`
	RestoreConcurrency int           `yaml:"restore_concurrency"`
	HealthInterval     time.Duration `yaml:"health_interval"`
}

// AutomationConfig spam tracker and dedupe tuning
type AutomationConfig struct {
	SpamWindow      time.Duration `yaml:"spam_window"`
	SpamThreshold   int           `yaml:"spam_threshold"`
	SpamExpiry      time.Duration `yaml:"spam_expiry"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
	DedupeTTL       time.Duration `yaml:"dedupe_ttl"`
}

// RedisConfig optional relay for the event hub
type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

type AppConfig struct {
	System     SysConfig        `yaml:"system"`
	Web        WebConfig        `yaml:"web"`
	Database   DBConfig         `yaml:"database"`
	Logger     LogConfig        `yaml:"logger"`
	Whatsapp   WhatsappConfig   `yaml:"whatsapp"`
	Automation AutomationConfig `yaml:"automation"`
	Redis      RedisConfig      `yaml:"redis"`
}

func (c *AppConfig) GetDataDir() string {
	return path.Join(c.System.Workdir, "data")
}

func (c *AppConfig) GetLogDir() string {
	return path.Join(c.System.Workdir, "logs")
}

func (c *AppConfig) InitDirs() {
	_ = os.MkdirAll(c.GetDataDir(), 0o700)
	_ = os.MkdirAll(c.GetLogDir(), 0o700)
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Appid:    "wamux",
			Location: "Asia/Shanghai",
			Workdir:  "/var/wamux",
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 1866,
		},
		Database: DBConfig{
			Type:     "sqlite",
			Host:     "127.0.0.1",
			Port:     5432,
			Name:     "wamux",
			User:     "postgres",
			MaxConn:  50,
			IdleConn: 10,
		},
		Logger: LogConfig{
			Mode:       "development",
			FileEnable: true,
			Filename:   "/var/wamux/logs/wamux.log",
		},
		Whatsapp: WhatsappConfig{
			PairingDelay:       10 * time.Second,
			SyncDelay:          15 * time.Second,
			ReconnectBase:      2 * time.Second,
			ReconnectMax:       time.Minute,
			ReconnectAttempts:  10,
			DispatchWorkers:    256,
			RestoreConcurrency: 16,
			HealthInterval:     5 * time.Second,
		},
		Automation: AutomationConfig{
			SpamWindow:      3 * time.Second,
			SpamThreshold:   2,
			SpamExpiry:      5 * time.Minute,
			JanitorInterval: time.Minute,
			DedupeTTL:       5 * time.Second,
		},
		Redis: RedisConfig{
			Channel: "wamux:events",
		},
	}
}

// Load reads the yaml file at cfgfile over the defaults and applies
// WAMUX_* environment overrides. A missing file is not an error.
func Load(cfgfile string) (*AppConfig, error) {
	cfg := Default()
	if cfgfile != "" {
		data, err := os.ReadFile(cfgfile)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", cfgfile)
			}
		case !os.IsNotExist(err):
			return nil, errors.Wrapf(err, "read config %s", cfgfile)
		}
	}
	applyEnv(cfg, os.LookupEnv)
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *AppConfig, lookup lookupFunc) {
	setString(lookup, "WAMUX_SYSTEM_WORKER_DIR", &cfg.System.Workdir)
	setString(lookup, "WAMUX_SYSTEM_LOCATION", &cfg.System.Location)
	setBool(lookup, "WAMUX_SYSTEM_DEBUG", &cfg.System.Debug)

	setString(lookup, "WAMUX_WEB_HOST", &cfg.Web.Host)
	setInt(lookup, "WAMUX_WEB_PORT", &cfg.Web.Port)
	setString(lookup, "WAMUX_WEB_SECRET", &cfg.Web.Secret)

	setString(lookup, "WAMUX_DB_TYPE", &cfg.Database.Type)
	setString(lookup, "WAMUX_DB_HOST", &cfg.Database.Host)
	setInt(lookup, "WAMUX_DB_PORT", &cfg.Database.Port)
	setString(lookup, "WAMUX_DB_NAME", &cfg.Database.Name)
	setString(lookup, "WAMUX_DB_USER", &cfg.Database.User)
	setString(lookup, "WAMUX_DB_PWD", &cfg.Database.Passwd)
	setBool(lookup, "WAMUX_DB_DEBUG", &cfg.Database.Debug)

	setString(lookup, "WAMUX_LOGGER_MODE", &cfg.Logger.Mode)
	setBool(lookup, "WAMUX_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)

	setDuration(lookup, "WAMUX_PAIRING_DELAY", &cfg.Whatsapp.PairingDelay)
	setDuration(lookup, "WAMUX_SYNC_DELAY", &cfg.Whatsapp.SyncDelay)
	setInt(lookup, "WAMUX_RECONNECT_ATTEMPTS", &cfg.Whatsapp.ReconnectAttempts)

	setDuration(lookup, "WAMUX_SPAM_WINDOW", &cfg.Automation.SpamWindow)
	setInt(lookup, "WAMUX_SPAM_THRESHOLD", &cfg.Automation.SpamThreshold)

	setString(lookup, "WAMUX_REDIS_ADDR", &cfg.Redis.Addr)
}

func setString(lookup lookupFunc, name string, dst *string) {
	if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(lookup lookupFunc, name string, dst *int) {
	if v, ok := lookup(name); ok {
		if n, err := cast.ToIntE(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setBool(lookup lookupFunc, name string, dst *bool) {
	if v, ok := lookup(name); ok {
		if b, err := cast.ToBoolE(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

func setDuration(lookup lookupFunc, name string, dst *time.Duration) {
	if v, ok := lookup(name); ok {
		if d, err := cast.ToDurationE(strings.TrimSpace(v)); err == nil {
			*dst = d
		}
	}
}
