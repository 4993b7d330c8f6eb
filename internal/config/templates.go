package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# GPW Simulator Configuration

[data]
# Directory holding one CSV file per instrument (file name = instrument name,
# underscores become spaces)
dir = "data"
# Field separator used by the CSV files
separator = ";"
# Layout of the date column (Go reference time)
date_format = "2006-01-02"

[store]
# SQLite database for imported quotes and saved runs
# path = "~/.config/gpwsim/gpwsim.db"

[simulation]
# Wall-clock delay between automatic steps (e.g. "1s", "250ms"; 0 = no delay)
tick_interval = "1s"
# Maximum automatic steps per run (0 = until the data runs out)
max_steps = 0

[log]
# Log level: debug, info, warn, error
level = "info"
console = true
file = false
max_size = 20
max_backups = 5
max_age = 30

[ui]
# Enable colored output
color_enabled = true
chart_width = 60
chart_height = 12
`

// createTemplateConfig writes the commented default config.toml.
func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}
