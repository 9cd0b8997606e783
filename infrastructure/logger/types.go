package logger

// Supported output encodings.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Default configuration values.
const (
	DefaultLevel  = "info"
	DefaultFormat = FormatJSON
)

// Config represents the logger configuration.
type Config struct {
	// Level is the minimum logging level (debug, info, warn, error, fatal).
	Level string `env:"LOG_LEVEL" yaml:"level"`
	// Format is the output encoding, json or console. The CLI defaults to console.
	Format string `env:"LOG_FORMAT" yaml:"format"`
	// Development disables sampling and enables development stack traces.
	Development bool `env:"LOG_DEVELOPMENT" yaml:"development"`
	// OutputPaths is a list of URLs or file paths to write logging output to.
	OutputPaths []string `yaml:"output_paths"`
}

// SetDefaults applies default values to the config if not set.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = DefaultLevel
	}
	if c.Format != FormatConsole {
		c.Format = DefaultFormat
	}
	if len(c.OutputPaths) == 0 {
		c.OutputPaths = []string{"stderr"}
	}
}
