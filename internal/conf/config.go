// Package conf loads, validates and persists tf-analyzer settings.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/8gabri8/TST-bioimage/internal/logger"
)

// Segmentation and classification engines
const (
	SegmenterStarDist = "stardist"
	SegmenterContour  = "contour"

	ClassifierRandomForest = "randomforest"
	ClassifierPassthrough  = "passthrough"
)

// Settings is the full configuration of an analysis run
type Settings struct {
	Debug bool `yaml:"debug"`

	Input struct {
		Path string `yaml:"path"` // data root holding one directory per well
	} `yaml:"input"`

	Output OutputSettings `yaml:"output"`

	Preprocess PreprocessSettings `yaml:"preprocess"`

	Segmentation SegmentationSettings `yaml:"segmentation"`

	Filter FilterSettings `yaml:"filter"`

	Features struct {
		BandWidth int `yaml:"bandwidth"` // width in pixels of the exterior measurement band
	} `yaml:"features"`

	Classify ClassifySettings `yaml:"classify"`

	Python PythonSettings `yaml:"python"`

	Plots PlotSettings `yaml:"plots"`

	Cache struct {
		TTL time.Duration `yaml:"ttl"` // lifetime of decoded planes, 0 disables caching
	} `yaml:"cache"`

	Datastore DatastoreSettings `yaml:"datastore"`

	Mirror MirrorSettings `yaml:"mirror"`

	MQTT MQTTSettings `yaml:"mqtt"`

	Notify NotifySettings `yaml:"notify"`

	Metrics MetricsSettings `yaml:"metrics"`

	Sentry SentrySettings `yaml:"sentry"`

	Logging logger.LoggingConfig `yaml:"logging"`
}

// OutputSettings controls where results are written
type OutputSettings struct {
	Path     string `yaml:"path"`     // results directory
	TempDir  string `yaml:"tempdir"`  // intermediate artifacts, defaults to <path>/temp
	KeepTemp bool   `yaml:"keeptemp"` // keep the temp directory after the run
	Report   string `yaml:"report"`   // per-entry report file name
	Summary  string `yaml:"summary"`  // per-well summary file name
	Format   string `yaml:"format"`   // console output for single pair runs: table, json
	MinFree  int    `yaml:"minfree"`  // free space in MB below which a run warns, 0 disables the check
}

// PreprocessSettings configures the nuclear channel preprocessing chain
type PreprocessSettings struct {
	Sigma       float64 `yaml:"sigma"`       // gaussian blur sigma
	RollingBall int     `yaml:"rollingball"` // background subtraction radius in pixels
	Saturated   float64 `yaml:"saturated"`   // percent of saturated pixels for contrast stretch
}

// SegmentationSettings configures the nuclei segmenter
type SegmentationSettings struct {
	Engine      string        `yaml:"engine"`      // stardist or contour
	Probability float64       `yaml:"probability"` // StarDist probability threshold
	Overlap     float64       `yaml:"overlap"`     // StarDist NMS overlap threshold
	Script      string        `yaml:"script"`      // StarDist wrapper script
	Timeout     time.Duration `yaml:"timeout"`
}

// FilterSettings holds region rejection thresholds and the noise gate
type FilterSettings struct {
	AreaMin     float64 `yaml:"areamin"`
	AreaMax     float64 `yaml:"areamax"`
	Circularity float64 `yaml:"circularity"` // regions more circular than this are rejected
	NoiseStd    float64 `yaml:"noisestd"`    // reporter std below this marks the entry too noisy
}

// ClassifySettings configures the classification cascade
type ClassifySettings struct {
	Engine  string        `yaml:"engine"` // randomforest or passthrough
	Margin  float64       `yaml:"margin"` // localization distance margin
	Script  string        `yaml:"script"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// PythonSettings locates the python environment running the external collaborators
type PythonSettings struct {
	EnvDir     string `yaml:"envdir"`
	Executable string `yaml:"executable"` // overrides the interpreter derived from envdir
}

// PlotSettings configures the plot renderer
type PlotSettings struct {
	Enabled bool          `yaml:"enabled"`
	Script  string        `yaml:"script"`
	Timeout time.Duration `yaml:"timeout"`
}

// DatastoreSettings selects the results database
type DatastoreSettings struct {
	SQLite struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"sqlite"`
	MySQL struct {
		Enabled  bool   `yaml:"enabled"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		Database string `yaml:"database"`
	} `yaml:"mysql"`
}

// MirrorSettings configures the S3 compatible artifact mirror
type MirrorSettings struct {
	Enabled   bool   `yaml:"enabled"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"pathstyle"`
	Prefix    string `yaml:"prefix"`
}

// MQTTSettings configures per-entry result publishing
type MQTTSettings struct {
	Enabled  bool          `yaml:"enabled"`
	Broker   string        `yaml:"broker"`
	Topic    string        `yaml:"topic"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	ClientID string        `yaml:"clientid"`
	Timeout  time.Duration `yaml:"timeout"`
}

// NotifySettings configures the run completion notification
type NotifySettings struct {
	Enabled bool          `yaml:"enabled"`
	URLs    []string      `yaml:"urls"` // shoutrrr service URLs
	Timeout time.Duration `yaml:"timeout"`
}

// MetricsSettings configures the prometheus textfile export
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SentrySettings configures opt-in error telemetry
type SentrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	Debug   bool   `yaml:"debug"`
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// Sync re-reads viper into settings so bound command line flags take precedence.
func Sync(settings *Settings) error {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := viper.Unmarshal(settings); err != nil {
		return fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if err := ValidateSettings(settings); err != nil {
		return err
	}

	settingsInstance = settings
	return nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Batch runs work from defaults and flags alone
			GetLogger().Debug("no config file found, using defaults")
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	GetLogger().Debug("config file loaded", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath through a temp file and rename.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	// Same directory, so the rename never crosses devices
	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// TempDir returns the directory for intermediate artifacts of a run
func (s *Settings) TempDir() string {
	if s.Output.TempDir != "" {
		return s.Output.TempDir
	}
	return filepath.Join(s.Output.Path, "temp")
}

// PythonExecutable returns the interpreter used for external collaborators.
func (s *Settings) PythonExecutable() string {
	if s.Python.Executable != "" {
		return s.Python.Executable
	}
	if runtime.GOOS == osWindows {
		return filepath.Join(s.Python.EnvDir, "python")
	}
	return filepath.Join(s.Python.EnvDir, "bin", "python3")
}

// ClassifierScript returns the stage classifier script path
func (s *Settings) ClassifierScript() string {
	return s.scriptPath(s.Classify.Script, "classify_metaphase_random_forest.py")
}

// ClassifierModel returns the stage classifier model path
func (s *Settings) ClassifierModel() string {
	return s.scriptPath(s.Classify.Model, "rf_model.joblib")
}

// PlotScript returns the plot renderer script path
func (s *Settings) PlotScript() string {
	return s.scriptPath(s.Plots.Script, "plots.py")
}

// SegmentScript returns the StarDist wrapper script path
func (s *Settings) SegmentScript() string {
	if s.Segmentation.Script != "" {
		return s.Segmentation.Script
	}
	return filepath.Join(s.Python.EnvDir, "segment_nuclei", "stardist_segment.py")
}

func (s *Settings) scriptPath(configured, name string) string {
	if configured != "" {
		return configured
	}
	return filepath.Join(s.Python.EnvDir, "classify_metaphase", name)
}
