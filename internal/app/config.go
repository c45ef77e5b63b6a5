package app

import (
	"github.com/uniedit/sitecache/internal/shared/config"
)

// LoadConfig loads application configuration.
func LoadConfig(paths ...string) (*config.Config, error) {
	return config.Load(paths...)
}
