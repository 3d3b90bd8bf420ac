// Package config handles configuration loading from CLI flags, environment
// variables, and TOML files.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all settings for the debugger.
type Config struct {
	Debug   DebugConfig   `toml:"debug"`
	Session SessionConfig `toml:"session"`
	Server  ServerConfig  `toml:"server"`
	MCP     MCPConfig     `toml:"mcp"`
	Logging LoggingConfig `toml:"logging"`
}

// DebugConfig holds protocol timing settings.
type DebugConfig struct {
	PollInterval Duration `toml:"poll_interval"` // hook command poll cadence
	RecvTimeout  Duration `toml:"recv_timeout"`  // controller wait before giving up
}

// SessionConfig holds persistence settings.
type SessionConfig struct {
	StateFile string `toml:"state_file"`
}

// ServerConfig holds remote console settings.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// MCPConfig holds MCP surface settings.
type MCPConfig struct {
	Enabled bool `toml:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Verbosity int `toml:"verbosity"` // 0=none, 1=commands, 2=protocol, 3=events
}

// verbosityCounter implements flag.Value for counting -v flags.
type verbosityCounter int

func (v *verbosityCounter) String() string {
	return fmt.Sprintf("%d", *v)
}

func (v *verbosityCounter) Set(string) error {
	*v++
	return nil
}

func (v *verbosityCounter) IsBoolFlag() bool {
	return true
}

// expandVerbosityFlags preprocesses args to expand -vvv into -v -v -v.
// This allows both "-v -v -v" and "-vvv" styles to work.
func expandVerbosityFlags(args []string) []string {
	result := make([]string, 0, len(args))
	for _, arg := range args {
		if len(arg) > 2 && arg[0] == '-' && arg[1] != '-' && arg[1] == 'v' {
			allV := true
			for _, c := range arg[1:] {
				if c != 'v' {
					allV = false
					break
				}
			}
			if allV {
				for range arg[1:] {
					result = append(result, "-v")
				}
				continue
			}
		}
		result = append(result, arg)
	}
	return result
}

// Duration is a time.Duration that can be unmarshaled from TOML strings.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// DefaultConfig returns a Config with all default values.
func DefaultConfig() *Config {
	return &Config{
		Debug: DebugConfig{
			PollInterval: Duration(50 * time.Millisecond),
			RecvTimeout:  Duration(10 * time.Second),
		},
		Session: SessionConfig{
			StateFile: "state.json",
		},
		Server: ServerConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8172,
		},
		MCP: MCPConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Verbosity: 0,
		},
	}
}

// Load loads configuration from CLI flags, environment variables, and a
// TOML file. Priority: CLI flags > env vars > TOML file > defaults.
// The remaining positional arguments (the script to debug) come back
// alongside the config.
func Load(args []string) (*Config, []string, error) {
	cfg := DefaultConfig()

	args = expandVerbosityFlags(args)

	fs := flag.NewFlagSet("sqdbg", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML config file path")

	pollInterval := fs.Duration("poll-interval", 0, "Hook command poll interval")
	recvTimeout := fs.Duration("recv-timeout", 0, "Response wait timeout")
	stateFile := fs.String("state", "", "Session state file path")

	serve := fs.Bool("serve", false, "Enable the remote console server")
	host := fs.String("host", "", "Remote console listen address")
	port := fs.Int("port", 0, "Remote console listen port")
	mcp := fs.Bool("mcp", false, "Serve MCP tools on stdio instead of the REPL")

	var verbosity verbosityCounter
	fs.Var(&verbosity, "v", "Verbosity level (use -v, -vv, or -vvv)")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	path := "sqdbg.toml"
	if *configPath != "" {
		path = *configPath
	}
	if err := cfg.loadTOML(path); err != nil && !os.IsNotExist(err) {
		return nil, nil, err
	}

	cfg.applyEnv()

	if *pollInterval != 0 {
		cfg.Debug.PollInterval = Duration(*pollInterval)
	}
	if *recvTimeout != 0 {
		cfg.Debug.RecvTimeout = Duration(*recvTimeout)
	}
	if *stateFile != "" {
		cfg.Session.StateFile = *stateFile
	}
	if *serve {
		cfg.Server.Enabled = true
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *mcp {
		cfg.MCP.Enabled = true
	}
	if verbosity > 0 {
		cfg.Logging.Verbosity = int(verbosity)
	}

	return cfg, fs.Args(), nil
}

// loadTOML loads configuration from a TOML file.
func (c *Config) loadTOML(path string) error {
	_, err := toml.DecodeFile(path, c)
	return err
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("SQDBG_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Debug.PollInterval = Duration(d)
		}
	}
	if v := os.Getenv("SQDBG_RECV_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Debug.RecvTimeout = Duration(d)
		}
	}
	if v := os.Getenv("SQDBG_STATE"); v != "" {
		c.Session.StateFile = v
	}
	if v := os.Getenv("SQDBG_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SQDBG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SQDBG_SERVE"); v != "" {
		c.Server.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SQDBG_MCP"); v != "" {
		c.MCP.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SQDBG_VERBOSITY"); v != "" {
		if verbosity, err := strconv.Atoi(v); err == nil {
			c.Logging.Verbosity = verbosity
		}
	}
}

// Verbosity returns the configured verbosity level.
func (c *Config) Verbosity() int {
	return c.Logging.Verbosity
}

// Log writes a diagnostic line to stderr when the configured verbosity
// reaches the given level.
func (c *Config) Log(level int, format string, args ...interface{}) {
	if level > c.Logging.Verbosity {
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
