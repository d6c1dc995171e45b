package conf

import "github.com/8gabri8/TST-bioimage/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// It is fetched from the global logger each time so it follows SetGlobal.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
