package logging

import "fmt"

// Config defines settings for dispatch log storage and rotation.
type Config struct {
	// Backend selects the log store type: "jsonl", "sqlite" or "none".
	Backend string `json:"backend"`
	// Path is the file location of the log store.
	Path string `json:"path"`
	// MaxSizeMB enables rotation of jsonl logs above this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		c.Path = "dispatch.log"
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Backend {
	case "jsonl", "sqlite", "none":
	default:
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	if c.Backend != "none" && c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// Open creates the store selected by c. The "none" backend returns nil.
func Open(c Config) (LogStore, error) {
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Backend {
	case "sqlite":
		return NewSQLiteStore(c.Path)
	case "none":
		return nil, nil
	}
	if c.MaxSizeMB > 0 {
		return NewRotatingJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	}
	return NewJSONLStore(c.Path)
}
