package logger

// LoggingConfig is the logging section of the settings
type LoggingConfig struct {
	DefaultLevel string            `yaml:"default_level" mapstructure:"default_level"`
	Timezone     string            `yaml:"timezone" mapstructure:"timezone"` // "Local", "UTC" or an IANA name
	Console      *ConsoleOutput    `yaml:"console" mapstructure:"console"`
	FileOutput   *FileOutput       `yaml:"file_output" mapstructure:"file_output"`
	ModuleLevels map[string]string `yaml:"module_levels" mapstructure:"module_levels"` // e.g. datastore: trace
}

// ConsoleOutput writes text records to stderr
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Level   string `yaml:"level" mapstructure:"level"`
}

// FileOutput writes JSON records to Path
type FileOutput struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
	Level   string `yaml:"level" mapstructure:"level"`
}

// applyConfigDefaults fills missing sections so a zero config logs info to
// the console.
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = string(LogLevelInfo)
	}
	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{Enabled: true, Level: cfg.DefaultLevel}
	}
	if cfg.FileOutput == nil {
		cfg.FileOutput = &FileOutput{Path: "logs/tf-analyzer.log", Level: cfg.DefaultLevel}
	}
}
