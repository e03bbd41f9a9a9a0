package am

import (
	"github.com/spf13/viper"
)

// Default values shared by SetDefaults and the getters below
const (
	DefaultDatabasePath      = "aecoa.db"
	DefaultWorkers           = 4
	DefaultEqualityTolerance = 1e-9
	DefaultDriver            = "gfa_m2"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})
	v.SetDefault("server.mutations_per_second", 5.0)

	v.SetDefault("evaluation.workers", DefaultWorkers)
	v.SetDefault("evaluation.equality_tolerance", DefaultEqualityTolerance)
	v.SetDefault("evaluation.default_driver", DefaultDriver)

	v.SetDefault("gate.auto_advance", true)
}

// BindSensitiveEnvVars binds settings commonly overridden in deployments
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "AECOA_DATABASE_PATH")
	v.BindEnv("server.port", "AECOA_SERVER_PORT")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath
	}
	return c.Database.Path
}

// GetServerPort returns the configured port, or DefaultServerPort when unset
func (c *Config) GetServerPort() int {
	if c.Server.Port == 0 {
		return DefaultServerPort
	}
	return c.Server.Port
}

// GetWorkers returns evaluation.workers; 0 means one worker per requirement.
func (c *Config) GetWorkers() int {
	return c.Evaluation.Workers
}

// GetEqualityTolerance returns the tolerance for == comparisons
func (c *Config) GetEqualityTolerance() float64 {
	if c.Evaluation.EqualityTolerance == 0 {
		return DefaultEqualityTolerance
	}
	return c.Evaluation.EqualityTolerance
}

// GetDefaultDriver returns the driver name a bare scalar binds to
func (c *Config) GetDefaultDriver() string {
	if c.Evaluation.DefaultDriver == "" {
		return DefaultDriver
	}
	return c.Evaluation.DefaultDriver
}
