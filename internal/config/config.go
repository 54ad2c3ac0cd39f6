// Package config assembles the server's runtime settings. Precedence is
// file over environment over defaults: the daemon boots with sane values,
// PARLEY_* variables cover container deployments, and a TOML file pins down
// anything that must not drift.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"parley/internal/logger"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	Server  ServerConfig
	Chat    ChatConfig
	Journal JournalConfig
	Log     LogConfig
}

// ServerConfig is the HTTP listener side.
type ServerConfig struct {
	Host             string
	Port             int
	HandshakeTimeout time.Duration
}

// ChatConfig tunes the chat transport and the inactivity sweep.
type ChatConfig struct {
	InactivityTimeout time.Duration
	SweepInterval     time.Duration
	SendBuffer        int
	PingInterval      time.Duration
	PongWait          time.Duration
	WriteTimeout      time.Duration
}

// JournalConfig locates the lifecycle journal. An empty path runs the
// server without one.
type JournalConfig struct {
	Path string
}

// LogConfig selects log level and sinks. Console logging is always on; an
// empty file path disables the file sink.
type LogConfig struct {
	Level string
	File  string
}

// Default returns the built-in configuration: chat on :8080, 60 second
// inactivity demotion swept every 5 seconds, journal and log file in the
// working directory.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			HandshakeTimeout: 10 * time.Second,
		},
		Chat: ChatConfig{
			InactivityTimeout: 60 * time.Second,
			SweepInterval:     5 * time.Second,
			SendBuffer:        100,
			PingInterval:      30 * time.Second,
			PongWait:          60 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		Journal: JournalConfig{
			Path: "parley.db",
		},
		Log: LogConfig{
			Level: "info",
			File:  "parley.log",
		},
	}
}

// Load resolves the configuration. Environment variables override defaults;
// the file at path, when given, overrides both. A missing or unparsable
// file is an error, the caller asked for it explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.applyEnv()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with. Port 0 is
// allowed and means an ephemeral listener.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 0 and 65535, got %d", c.Server.Port)
	}
	if c.Server.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake timeout must be positive")
	}
	if c.Chat.InactivityTimeout <= 0 {
		return fmt.Errorf("inactivity timeout must be positive")
	}
	if c.Chat.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.Chat.SendBuffer <= 0 {
		return fmt.Errorf("send buffer must be positive")
	}
	if c.Chat.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be positive")
	}
	if c.Chat.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.Chat.PongWait <= c.Chat.PingInterval {
		return fmt.Errorf("pong wait (%s) must exceed ping interval (%s)", c.Chat.PongWait, c.Chat.PingInterval)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// applyEnv overlays PARLEY_* environment variables. Scalars with parse
// errors are skipped, leaving the previous value in place. The journal path
// and log file use LookupEnv so an explicitly empty variable disables the
// sink.
func (c *Config) applyEnv() {
	if host := os.Getenv("PARLEY_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("PARLEY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if path, ok := os.LookupEnv("PARLEY_JOURNAL_PATH"); ok {
		c.Journal.Path = path
	}
	if level := os.Getenv("PARLEY_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if file, ok := os.LookupEnv("PARLEY_LOG_FILE"); ok {
		c.Log.File = file
	}
	if buffer := os.Getenv("PARLEY_SEND_BUFFER"); buffer != "" {
		if n, err := strconv.Atoi(buffer); err == nil {
			c.Chat.SendBuffer = n
		}
	}

	envDuration("PARLEY_HANDSHAKE_TIMEOUT", &c.Server.HandshakeTimeout)
	envDuration("PARLEY_INACTIVITY_TIMEOUT", &c.Chat.InactivityTimeout)
	envDuration("PARLEY_SWEEP_INTERVAL", &c.Chat.SweepInterval)
	envDuration("PARLEY_PING_INTERVAL", &c.Chat.PingInterval)
	envDuration("PARLEY_PONG_WAIT", &c.Chat.PongWait)
	envDuration("PARLEY_WRITE_TIMEOUT", &c.Chat.WriteTimeout)
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// fileConfig mirrors Config for TOML decoding. Durations arrive as strings
// ("45s", "2m") and optional fields are pointers so an explicit empty value
// is distinguishable from an absent one.
type fileConfig struct {
	Server  *serverFile  `toml:"server"`
	Chat    *chatFile    `toml:"chat"`
	Journal *journalFile `toml:"journal"`
	Log     *logFile     `toml:"log"`
}

type serverFile struct {
	Host             string `toml:"host"`
	Port             *int   `toml:"port"`
	HandshakeTimeout string `toml:"handshake_timeout"`
}

type chatFile struct {
	InactivityTimeout string `toml:"inactivity_timeout"`
	SweepInterval     string `toml:"sweep_interval"`
	SendBuffer        *int   `toml:"send_buffer"`
	PingInterval      string `toml:"ping_interval"`
	PongWait          string `toml:"pong_wait"`
	WriteTimeout      string `toml:"write_timeout"`
}

type journalFile struct {
	Path *string `toml:"path"`
}

type logFile struct {
	Level string  `toml:"level"`
	File  *string `toml:"file"`
}

func (c *Config) applyFile(path string) error {
	var file fileConfig
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if file.Server != nil {
		if file.Server.Host != "" {
			c.Server.Host = file.Server.Host
		}
		if file.Server.Port != nil {
			c.Server.Port = *file.Server.Port
		}
		if err := fileDuration(file.Server.HandshakeTimeout, &c.Server.HandshakeTimeout); err != nil {
			return fmt.Errorf("%s: server.handshake_timeout: %w", path, err)
		}
	}

	if file.Chat != nil {
		if file.Chat.SendBuffer != nil {
			c.Chat.SendBuffer = *file.Chat.SendBuffer
		}
		pairs := []struct {
			name string
			raw  string
			dst  *time.Duration
		}{
			{"chat.inactivity_timeout", file.Chat.InactivityTimeout, &c.Chat.InactivityTimeout},
			{"chat.sweep_interval", file.Chat.SweepInterval, &c.Chat.SweepInterval},
			{"chat.ping_interval", file.Chat.PingInterval, &c.Chat.PingInterval},
			{"chat.pong_wait", file.Chat.PongWait, &c.Chat.PongWait},
			{"chat.write_timeout", file.Chat.WriteTimeout, &c.Chat.WriteTimeout},
		}
		for _, p := range pairs {
			if err := fileDuration(p.raw, p.dst); err != nil {
				return fmt.Errorf("%s: %s: %w", path, p.name, err)
			}
		}
	}

	if file.Journal != nil && file.Journal.Path != nil {
		c.Journal.Path = *file.Journal.Path
	}

	if file.Log != nil {
		if file.Log.Level != "" {
			c.Log.Level = file.Log.Level
		}
		if file.Log.File != nil {
			c.Log.File = *file.Log.File
		}
	}
	return nil
}

func fileDuration(raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
