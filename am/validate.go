package am

import (
	"math"

	"github.com/aecoa/aecoa/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// 0 means "use the default port"; negative and out-of-range ports are invalid
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.MutationsPerSecond < 0 {
		return errors.Newf("server.mutations_per_second must be >= 0, got %f", c.Server.MutationsPerSecond)
	}

	// Workers: 0 = one goroutine per requirement, negative = invalid
	if c.Evaluation.Workers < 0 {
		return errors.Newf("evaluation.workers must be >= 0, got %d", c.Evaluation.Workers)
	}

	tol := c.Evaluation.EqualityTolerance
	if tol < 0 || math.IsNaN(tol) || math.IsInf(tol, 0) {
		return errors.Newf("evaluation.equality_tolerance must be a finite value >= 0, got %v", tol)
	}

	return nil
}
