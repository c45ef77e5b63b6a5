package cache

import "time"

// Config holds cache engine configuration.
type Config struct {
	// Separator joins the site and the ID or tag in physical keys.
	Separator string

	// BatchSize is the number of keys removed per backend call in DeleteMultiple.
	BatchSize int

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultConfig returns default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		Separator: DefaultSeparator,
		BatchSize: 100,
		Clock:     time.Now,
	}
}

func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.Separator == "" {
		out.Separator = def.Separator
	}
	if out.BatchSize <= 0 {
		out.BatchSize = def.BatchSize
	}
	if out.Clock == nil {
		out.Clock = def.Clock
	}
	return &out
}
