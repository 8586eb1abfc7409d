package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "dlctl"

// EnvOverrides are read from DLCTL_* variables and take effect when the
// matching flag is not given.
type EnvOverrides struct {
	Profile      string `envconfig:"PROFILE"`
	Output       string `envconfig:"OUTPUT"`
	TokenStorage string `envconfig:"TOKEN_STORAGE"`
	Flow         string `envconfig:"FLOW"`
	LogLevel     string `envconfig:"LOG_LEVEL"`
	NoBrowser    bool   `envconfig:"NO_BROWSER"`
	Verbose      bool   `envconfig:"VERBOSE"`
}

func LoadEnv() (EnvOverrides, error) {
	var env EnvOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return EnvOverrides{}, fmt.Errorf("failed to read DLCTL_* environment: %w", err)
	}
	return env, nil
}
