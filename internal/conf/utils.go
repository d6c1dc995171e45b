package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/8gabri8/TST-bioimage/internal/errors"
)

const osWindows = "windows"

// GetDefaultConfigPaths returns the configuration search paths for the current OS.
// If a config.yaml exists in one of them, only that path is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case osWindows:
		exePath, err := os.Executable()
		if err != nil {
			return nil, errors.New(err).
				Category(errors.CategorySystem).
				Context("operation", "get-executable-path").
				Build()
		}
		configPaths = []string{
			filepath.Dir(exePath),
			filepath.Join(homeDir, "AppData", "Roaming", "tf-analyzer"),
		}
	default:
		configPaths = []string{
			".",
			filepath.Join(homeDir, ".config", "tf-analyzer"),
			"/etc/tf-analyzer",
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// DefaultConfigFile returns the path a new config file is written to.
func DefaultConfigFile() (string, error) {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	for _, path := range configPaths {
		if path != "." {
			return filepath.Join(path, "config.yaml"), nil
		}
	}
	return filepath.Join(configPaths[0], "config.yaml"), nil
}
