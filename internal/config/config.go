// Package config handles configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/bnema/openvd/internal/edid"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// libevdi settings shared by every display
	EVDI EVDIConfig `mapstructure:"evdi"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`

	// Event recording
	Record RecordConfig `mapstructure:"record"`

	// Virtual displays to create
	Displays []DisplayConfig `mapstructure:"displays"`
}

// EVDIConfig contains libevdi node settings
type EVDIConfig struct {
	ParentDevice  string `mapstructure:"parent_device"`   // sysfs parent, empty for unattached nodes
	AddDevice     bool   `mapstructure:"add_device"`      // ask the kernel module for a new card per display
	CursorEvents  bool   `mapstructure:"cursor_events"`   // report cursor as events instead of compositing it
	PollTimeoutMs int    `mapstructure:"poll_timeout_ms"` // event fd poll timeout
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel   string `mapstructure:"log_level"`   // Override LOG_LEVEL env var
	NativeLogs bool   `mapstructure:"native_logs"` // Forward libevdi log lines
}

// RecordConfig controls event recording
type RecordConfig struct {
	Path string `mapstructure:"path"` // Empty disables recording
}

// DisplayConfig describes one virtual monitor
type DisplayConfig struct {
	Name  string       `mapstructure:"name"`
	Modes []ModeConfig `mapstructure:"modes"` // First mode is preferred
}

// ModeConfig is one advertised display mode
type ModeConfig struct {
	Width   int `mapstructure:"width"`
	Height  int `mapstructure:"height"`
	Refresh int `mapstructure:"refresh"`
}

func (m ModeConfig) String() string {
	return fmt.Sprintf("%dx%d@%d", m.Width, m.Height, m.Refresh)
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		EVDI: EVDIConfig{
			ParentDevice:  "",
			AddDevice:     false,
			CursorEvents:  true,
			PollTimeoutMs: 100,
		},
		Logging: LoggingConfig{
			LogLevel:   "", // Empty means use LOG_LEVEL env var
			NativeLogs: true,
		},
		Record: RecordConfig{
			Path: "",
		},
		Displays: []DisplayConfig{
			{
				Name:  "virtual-1",
				Modes: []ModeConfig{{Width: 1920, Height: 1080, Refresh: 60}},
			},
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string

	modePattern = regexp.MustCompile(`^(\d+)x(\d+)(?:@(\d+))?$`)
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	// Set config name and type
	viper.SetConfigName("openvd")
	viper.SetConfigType("toml")

	// If a specific path is set, use only that
	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		// Add config paths in order of precedence
		viper.AddConfigPath("/etc/openvd") // System config directory (primary)

		// If running with sudo, try the real user's config
		if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
			viper.AddConfigPath(fmt.Sprintf("/home/%s/.config/openvd", sudoUser))
		} else if home := os.Getenv("HOME"); home != "" && home != "/root" {
			viper.AddConfigPath(filepath.Join(home, ".config", "openvd"))
		}

		viper.AddConfigPath(".") // Current directory (lowest priority)
	}

	viper.SetEnvPrefix("OPENVD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults - need to set individual fields for proper merging
	viper.SetDefault("evdi.parent_device", DefaultConfig.EVDI.ParentDevice)
	viper.SetDefault("evdi.add_device", DefaultConfig.EVDI.AddDevice)
	viper.SetDefault("evdi.cursor_events", DefaultConfig.EVDI.CursorEvents)
	viper.SetDefault("evdi.poll_timeout_ms", DefaultConfig.EVDI.PollTimeoutMs)

	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)
	viper.SetDefault("logging.native_logs", DefaultConfig.Logging.NativeLogs)

	viper.SetDefault("record.path", DefaultConfig.Record.Path)

	viper.SetDefault("displays", displaySettings(DefaultConfig.Displays))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	// Unmarshal config
	c := &Config{}
	if err := viper.Unmarshal(c); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	cfg = c
	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Update validates c, makes it current and writes it to the config file
func Update(c *Config) error {
	if err := c.Validate(); err != nil {
		return err
	}

	viper.Set("evdi.parent_device", c.EVDI.ParentDevice)
	viper.Set("evdi.add_device", c.EVDI.AddDevice)
	viper.Set("evdi.cursor_events", c.EVDI.CursorEvents)
	viper.Set("evdi.poll_timeout_ms", c.EVDI.PollTimeoutMs)
	viper.Set("logging.log_level", c.Logging.LogLevel)
	viper.Set("logging.native_logs", c.Logging.NativeLogs)
	viper.Set("record.path", c.Record.Path)
	viper.Set("displays", displaySettings(c.Displays))

	cfg = c
	return Save()
}

// Validate checks display and mode values
func (c *Config) Validate() error {
	if c.EVDI.PollTimeoutMs <= 0 {
		return fmt.Errorf("evdi.poll_timeout_ms must be positive, got %d", c.EVDI.PollTimeoutMs)
	}

	names := make(map[string]bool)
	for i, d := range c.Displays {
		if d.Name == "" {
			return fmt.Errorf("display %d has no name", i+1)
		}
		if names[d.Name] {
			return fmt.Errorf("duplicate display name %q", d.Name)
		}
		names[d.Name] = true

		if len(d.Modes) == 0 {
			return fmt.Errorf("display %q has no modes", d.Name)
		}
		if len(d.Modes) > edid.MaxModes {
			return fmt.Errorf("display %q has %d modes, at most %d are supported", d.Name, len(d.Modes), edid.MaxModes)
		}
		for _, m := range d.Modes {
			if m.Width <= 0 || m.Height <= 0 || m.Refresh <= 0 {
				return fmt.Errorf("display %q has invalid mode %s", d.Name, m)
			}
		}
	}
	return nil
}

// ParseMode parses WIDTHxHEIGHT[@REFRESH]; refresh defaults to 60
func ParseMode(s string) (ModeConfig, error) {
	m := modePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ModeConfig{}, fmt.Errorf("invalid mode %q (expected WIDTHxHEIGHT[@REFRESH])", s)
	}

	width, _ := strconv.Atoi(m[1])
	height, _ := strconv.Atoi(m[2])
	refresh := 60
	if m[3] != "" {
		refresh, _ = strconv.Atoi(m[3])
	}

	if width == 0 || height == 0 || refresh == 0 {
		return ModeConfig{}, fmt.Errorf("invalid mode %q: values must be non-zero", s)
	}
	return ModeConfig{Width: width, Height: height, Refresh: refresh}, nil
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		if os.IsPermission(err) && strings.Contains(configPath, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", dir)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	// evdi needs root, so prefer the system config
	if os.Getuid() == 0 || os.Getenv("SUDO_USER") != "" {
		return "/etc/openvd/openvd.toml"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/openvd/openvd.toml"
	}

	return filepath.Join(home, ".config", "openvd", "openvd.toml")
}

// AddDisplay adds or replaces a display by name
func AddDisplay(display DisplayConfig) error {
	c := Get()

	for i, d := range c.Displays {
		if d.Name == display.Name {
			c.Displays[i] = display
			viper.Set("displays", displaySettings(c.Displays))
			return Save()
		}
	}

	c.Displays = append(c.Displays, display)
	viper.Set("displays", displaySettings(c.Displays))
	return Save()
}

// RemoveDisplay removes a display by name
func RemoveDisplay(name string) error {
	c := Get()

	for i, d := range c.Displays {
		if d.Name == name {
			c.Displays = append(c.Displays[:i], c.Displays[i+1:]...)
			viper.Set("displays", displaySettings(c.Displays))
			return Save()
		}
	}

	return fmt.Errorf("display %s not found", name)
}

// GetDisplay returns a display configuration by name
func GetDisplay(name string) (*DisplayConfig, error) {
	for _, d := range Get().Displays {
		if d.Name == name {
			return &d, nil
		}
	}

	return nil, fmt.Errorf("display %s not found", name)
}

// displaySettings converts displays to plain maps so that viper writes
// snake_case keys instead of Go field names
func displaySettings(displays []DisplayConfig) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(displays))
	for _, d := range displays {
		modes := make([]map[string]interface{}, 0, len(d.Modes))
		for _, m := range d.Modes {
			modes = append(modes, map[string]interface{}{
				"width":   m.Width,
				"height":  m.Height,
				"refresh": m.Refresh,
			})
		}
		out = append(out, map[string]interface{}{
			"name":  d.Name,
			"modes": modes,
		})
	}
	return out
}
