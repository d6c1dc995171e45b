// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"input.path", "TFA_INPUT_PATH", validateEnvPath},
		{"output.path", "TFA_OUTPUT_PATH", nil},
		{"output.minfree", "TFA_OUTPUT_MINFREE", validateEnvNonNegative},
		{"python.envdir", "TFA_PYTHON_ENVDIR", validateEnvPath},
		{"python.executable", "TFA_PYTHON_EXECUTABLE", nil},

		{"filter.noisestd", "TFA_NOISE_STD", validateEnvNonNegative},
		{"filter.areamin", "TFA_AREA_MIN", validateEnvNonNegative},
		{"filter.areamax", "TFA_AREA_MAX", validateEnvNonNegative},
		{"filter.circularity", "TFA_CIRCULARITY", validateEnvUnit},
		{"classify.margin", "TFA_MARGIN", validateEnvNonNegative},
		{"segmentation.engine", "TFA_SEGMENTER", nil},
		{"segmentation.timeout", "TFA_SEGMENT_TIMEOUT", validateEnvDuration},
		{"classify.timeout", "TFA_CLASSIFY_TIMEOUT", validateEnvDuration},

		{"datastore.mysql.password", "TFA_MYSQL_PASSWORD", nil},
		{"mqtt.password", "TFA_MQTT_PASSWORD", nil},
		{"sentry.dsn", "TFA_SENTRY_DSN", nil},
		{"debug", "TFA_DEBUG", validateEnvBool},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value: %w", err)
	}
	return nil
}

func validateEnvNonNegative(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number: %w", err)
	}
	if f < 0 {
		return fmt.Errorf("must not be negative, got %g", f)
	}
	return nil
}

func validateEnvUnit(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number: %w", err)
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("must be between 0.0 and 1.0, got %g", f)
	}
	return nil
}

func validateEnvDuration(value string) error {
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	return nil
}

func validateEnvPath(value string) error {
	cleanedPath := filepath.Clean(value)

	for _, part := range strings.Split(cleanedPath, string(os.PathSeparator)) {
		if part == ".." {
			return fmt.Errorf("path traversal detected in cleaned path: %s", cleanedPath)
		}
	}

	if _, err := os.Stat(cleanedPath); os.IsNotExist(err) {
		return fmt.Errorf("warning: path does not exist: %s", cleanedPath)
	}

	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars()
}
