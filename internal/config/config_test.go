package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate resets global state and runs the test from an empty directory
func isolate(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Setenv("HOME", tmpDir)
	t.Setenv("SUDO_USER", "")

	viper.Reset()
	SetConfigPath("")
	Set(nil)

	t.Cleanup(func() {
		os.Chdir(oldWd)
		viper.Reset()
		SetConfigPath("")
		Set(nil)
	})
	return tmpDir
}

func TestInit(t *testing.T) {
	t.Run("initializes with defaults when no config exists", func(t *testing.T) {
		isolate(t)

		require.NoError(t, Init())

		c := Get()
		require.NotNil(t, c)
		assert.Equal(t, 100, c.EVDI.PollTimeoutMs)
		assert.True(t, c.EVDI.CursorEvents)
		require.Len(t, c.Displays, 1)
		assert.Equal(t, "virtual-1", c.Displays[0].Name)
		assert.Equal(t, ModeConfig{Width: 1920, Height: 1080, Refresh: 60}, c.Displays[0].Modes[0])
	})

	t.Run("reads displays from TOML", func(t *testing.T) {
		dir := isolate(t)

		path := filepath.Join(dir, "custom.toml")
		content := `[evdi]
cursor_events = false
poll_timeout_ms = 250

[logging]
log_level = "debug"

[[displays]]
name = "left"
[[displays.modes]]
width = 2560
height = 1440
refresh = 144
[[displays.modes]]
width = 1920
height = 1080
refresh = 60

[[displays]]
name = "right"
[[displays.modes]]
width = 1280
height = 720
refresh = 30
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		SetConfigPath(path)

		require.NoError(t, Init())

		c := Get()
		assert.False(t, c.EVDI.CursorEvents)
		assert.Equal(t, 250, c.EVDI.PollTimeoutMs)
		assert.Equal(t, "debug", c.Logging.LogLevel)
		require.Len(t, c.Displays, 2)
		assert.Equal(t, "left", c.Displays[0].Name)
		assert.Equal(t, []ModeConfig{
			{Width: 2560, Height: 1440, Refresh: 144},
			{Width: 1920, Height: 1080, Refresh: 60},
		}, c.Displays[0].Modes)
		assert.Equal(t, "1280x720@30", c.Displays[1].Modes[0].String())
	})

	t.Run("handles invalid TOML", func(t *testing.T) {
		dir := isolate(t)

		path := filepath.Join(dir, "broken.toml")
		require.NoError(t, os.WriteFile(path, []byte("[evdi\npoll_timeout_ms = 1"), 0644))
		SetConfigPath(path)

		assert.Error(t, Init())
	})

	t.Run("rejects invalid displays", func(t *testing.T) {
		dir := isolate(t)

		path := filepath.Join(dir, "invalid.toml")
		content := `[[displays]]
name = "empty"
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		SetConfigPath(path)

		err := Init()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has no modes")
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			EVDI: EVDIConfig{PollTimeoutMs: 50},
			Displays: []DisplayConfig{
				{Name: "a", Modes: []ModeConfig{{Width: 800, Height: 600, Refresh: 60}}},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero poll timeout", func(c *Config) { c.EVDI.PollTimeoutMs = 0 }, "poll_timeout_ms"},
		{"missing name", func(c *Config) { c.Displays[0].Name = "" }, "no name"},
		{"duplicate name", func(c *Config) { c.Displays = append(c.Displays, c.Displays[0]) }, "duplicate"},
		{"bad refresh", func(c *Config) { c.Displays[0].Modes[0].Refresh = 0 }, "invalid mode"},
		{"too many modes", func(c *Config) {
			m := c.Displays[0].Modes[0]
			c.Displays[0].Modes = []ModeConfig{m, m, m, m}
		}, "at most 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ModeConfig
		wantErr bool
	}{
		{in: "1920x1080@60", want: ModeConfig{1920, 1080, 60}},
		{in: "2560x1440", want: ModeConfig{2560, 1440, 60}},
		{in: " 800x600@75 ", want: ModeConfig{800, 600, 75}},
		{in: "1920*1080", wantErr: true},
		{in: "0x1080@60", wantErr: true},
		{in: "1920x1080@", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddAndRemoveDisplay(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "openvd.toml")
	SetConfigPath(path)
	// Point Init at an existing file
	require.NoError(t, os.WriteFile(path, []byte("[evdi]\npoll_timeout_ms = 100\n"), 0644))
	require.NoError(t, Init())

	require.NoError(t, AddDisplay(DisplayConfig{
		Name:  "side",
		Modes: []ModeConfig{{Width: 1024, Height: 768, Refresh: 60}},
	}))

	// Reload from disk
	viper.Reset()
	require.NoError(t, Init())

	d, err := GetDisplay("side")
	require.NoError(t, err)
	assert.Equal(t, []ModeConfig{{Width: 1024, Height: 768, Refresh: 60}}, d.Modes)

	require.NoError(t, RemoveDisplay("side"))
	_, err = GetDisplay("side")
	assert.Error(t, err)

	assert.Error(t, RemoveDisplay("missing"))
}

func TestConfigPathOverride(t *testing.T) {
	isolate(t)
	SetConfigPath("/tmp/somewhere/openvd.toml")
	assert.Equal(t, "/tmp/somewhere/openvd.toml", GetConfigPath())
}

func TestInitWithMissingOverride(t *testing.T) {
	dir := isolate(t)
	SetConfigPath(filepath.Join(dir, "missing.toml"))

	require.NoError(t, Init())
	assert.Equal(t, DefaultConfig.Displays, Get().Displays)
}

func TestUpdate(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "openvd.toml")
	SetConfigPath(path)
	require.NoError(t, Init())

	c := *Get()
	c.EVDI.ParentDevice = "/sys/devices/pci0000:00/0000:00:02.0"
	c.Record.Path = "/tmp/events.bin"
	c.Displays = []DisplayConfig{
		{Name: "left", Modes: []ModeConfig{{Width: 2560, Height: 1440, Refresh: 60}}},
		{Name: "right", Modes: []ModeConfig{{Width: 1920, Height: 1080, Refresh: 144}}},
	}
	require.NoError(t, Update(&c))

	viper.Reset()
	require.NoError(t, Init())

	got := Get()
	assert.Equal(t, c.EVDI.ParentDevice, got.EVDI.ParentDevice)
	assert.Equal(t, c.Record.Path, got.Record.Path)
	assert.Equal(t, c.Displays, got.Displays)

	bad := c
	bad.Displays = nil
	bad.EVDI.PollTimeoutMs = 0
	assert.Error(t, Update(&bad))
}
