// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("input.path", "")

	viper.SetDefault("output.path", "results")
	viper.SetDefault("output.tempdir", "")
	viper.SetDefault("output.keeptemp", false)
	viper.SetDefault("output.report", "output.csv")
	viper.SetDefault("output.summary", "summary.csv")
	viper.SetDefault("output.format", "table")
	viper.SetDefault("output.minfree", 256)

	viper.SetDefault("preprocess.sigma", 2.0)
	viper.SetDefault("preprocess.rollingball", 50)
	viper.SetDefault("preprocess.saturated", 0.35)

	viper.SetDefault("segmentation.engine", SegmenterStarDist)
	viper.SetDefault("segmentation.probability", 0.5)
	viper.SetDefault("segmentation.overlap", 0.25)
	viper.SetDefault("segmentation.script", "")
	viper.SetDefault("segmentation.timeout", 5*time.Minute)

	viper.SetDefault("filter.areamin", 10.0)
	viper.SetDefault("filter.areamax", 80.0)
	viper.SetDefault("filter.circularity", 0.9)
	viper.SetDefault("filter.noisestd", 300.0)

	viper.SetDefault("features.bandwidth", 1)

	viper.SetDefault("classify.engine", ClassifierRandomForest)
	viper.SetDefault("classify.margin", 30.0)
	viper.SetDefault("classify.script", "")
	viper.SetDefault("classify.model", "")
	viper.SetDefault("classify.timeout", 2*time.Minute)

	viper.SetDefault("python.envdir", "")
	viper.SetDefault("python.executable", "")

	viper.SetDefault("plots.enabled", true)
	viper.SetDefault("plots.script", "")
	viper.SetDefault("plots.timeout", 5*time.Minute)

	viper.SetDefault("cache.ttl", 10*time.Minute)

	viper.SetDefault("datastore.sqlite.enabled", false)
	viper.SetDefault("datastore.sqlite.path", "tf-analyzer.db")
	viper.SetDefault("datastore.mysql.enabled", false)
	viper.SetDefault("datastore.mysql.host", "localhost")
	viper.SetDefault("datastore.mysql.port", "3306")
	viper.SetDefault("datastore.mysql.database", "tfanalyzer")

	viper.SetDefault("mirror.enabled", false)
	viper.SetDefault("mirror.region", "us-east-1")
	viper.SetDefault("mirror.pathstyle", false)
	viper.SetDefault("mirror.prefix", "tf-analyzer")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "tf-analyzer/entries")
	viper.SetDefault("mqtt.clientid", "tf-analyzer")
	viper.SetDefault("mqtt.timeout", 30*time.Second)

	viper.SetDefault("notify.enabled", false)
	viper.SetDefault("notify.urls", []string{})
	viper.SetDefault("notify.timeout", 10*time.Second)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.path", "metrics.prom")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.debug", false)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/tf-analyzer.log")
	viper.SetDefault("logging.file_output.level", "debug")
}
