package cli

import (
	"github.com/zot/modrt/internal/config"
)

// Re-export config types for public API
type (
	Config        = config.Config
	ModulesConfig = config.ModulesConfig
	ServerConfig  = config.ServerConfig
	LoggingConfig = config.LoggingConfig
	Duration      = config.Duration
)

// Re-export config functions for public API
var (
	DefaultConfig = config.DefaultConfig
	LoadConfig    = config.Load
)
