// Package common provides shared utilities for command implementations.
package common

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/internal/config"
)

var (
	// ErrLoggerRequired is returned when CommandDeps.Logger is nil.
	ErrLoggerRequired = errors.New("logger is required")
	// ErrConfigRequired is returned when CommandDeps.Config is nil.
	ErrConfigRequired = errors.New("config is required")
)

// CommandDeps holds common dependencies for all commands.
// Use this instead of context.Value for type-safe dependency injection.
type CommandDeps struct {
	Logger logger.Logger
	Config *config.Config
}

// Validate ensures all required dependencies are present.
func (d CommandDeps) Validate() error {
	if d.Logger == nil {
		return ErrLoggerRequired
	}
	if d.Config == nil {
		return ErrConfigRequired
	}
	return nil
}

// MustBindFlag binds flag to key on the global viper instance. Binding only
// fails for a nil flag, which is a programming error.
func MustBindFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", key, err))
	}
}
