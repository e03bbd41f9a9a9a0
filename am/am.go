package am

// Config represents the aecoa configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" toml:"database" json:"database" yaml:"database"`
	Server     ServerConfig     `mapstructure:"server" toml:"server" json:"server" yaml:"server"`
	Evaluation EvaluationConfig `mapstructure:"evaluation" toml:"evaluation" json:"evaluation" yaml:"evaluation"`
	Gate       GateConfig       `mapstructure:"gate" toml:"gate" json:"gate" yaml:"gate"`
}

// DatabaseConfig configures the SQLite database holding runs and gate events
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" json:"path" yaml:"path"`
}

// ServerConfig configures the review server
type ServerConfig struct {
	Port           int      `mapstructure:"port" toml:"port" json:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
	// Approve/reject/regenerate requests per second across all clients (0 = unlimited)
	MutationsPerSecond float64 `mapstructure:"mutations_per_second" toml:"mutations_per_second" json:"mutations_per_second" yaml:"mutations_per_second"`
}

// EvaluationConfig configures the compliance evaluator
type EvaluationConfig struct {
	Workers           int     `mapstructure:"workers" toml:"workers" json:"workers" yaml:"workers"`                                             // concurrent requirement checks (default: 4)
	EqualityTolerance float64 `mapstructure:"equality_tolerance" toml:"equality_tolerance" json:"equality_tolerance" yaml:"equality_tolerance"` // absolute tolerance for == requirements
	DefaultDriver     string  `mapstructure:"default_driver" toml:"default_driver" json:"default_driver" yaml:"default_driver"`                 // driver name a bare --driver value binds to
}

// GateConfig configures the approval pipeline
type GateConfig struct {
	// Produce the next stage's artifact as soon as a gate is approved
	AutoAdvance bool `mapstructure:"auto_advance" toml:"auto_advance" json:"auto_advance" yaml:"auto_advance"`
}

// Server port constants
const (
	DefaultServerPort = 8740
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
