// conf/validate.go

package conf

import (
	"fmt"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validatePreprocessSettings,
		validateSegmentationSettings,
		validateFilterSettings,
		validateClassifySettings,
		validateOutputSettings,
		validateSinkSettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validatePreprocessSettings(s *Settings) error {
	var errs []string

	if s.Preprocess.Sigma < 0 {
		errs = append(errs, fmt.Sprintf("preprocess sigma must not be negative, got %g", s.Preprocess.Sigma))
	}
	if s.Preprocess.RollingBall < 0 {
		errs = append(errs, fmt.Sprintf("rolling ball radius must not be negative, got %d", s.Preprocess.RollingBall))
	}
	if s.Preprocess.Saturated < 0 || s.Preprocess.Saturated >= 50 {
		errs = append(errs, fmt.Sprintf("saturated percentage must be in [0, 50), got %g", s.Preprocess.Saturated))
	}

	return joinErrors("preprocess", errs)
}

func validateSegmentationSettings(s *Settings) error {
	var errs []string

	switch s.Segmentation.Engine {
	case SegmenterStarDist, SegmenterContour:
	default:
		errs = append(errs, fmt.Sprintf("unknown segmentation engine %q", s.Segmentation.Engine))
	}
	if s.Segmentation.Probability < 0 || s.Segmentation.Probability > 1 {
		errs = append(errs, fmt.Sprintf("probability must be between 0.0 and 1.0, got %g", s.Segmentation.Probability))
	}
	if s.Segmentation.Overlap < 0 || s.Segmentation.Overlap > 1 {
		errs = append(errs, fmt.Sprintf("overlap must be between 0.0 and 1.0, got %g", s.Segmentation.Overlap))
	}
	if s.Segmentation.Timeout <= 0 {
		errs = append(errs, "segmentation timeout must be positive")
	}

	return joinErrors("segmentation", errs)
}

func validateFilterSettings(s *Settings) error {
	var errs []string

	if s.Filter.AreaMin < 0 {
		errs = append(errs, fmt.Sprintf("area min must not be negative, got %g", s.Filter.AreaMin))
	}
	if s.Filter.AreaMax < s.Filter.AreaMin {
		errs = append(errs, fmt.Sprintf("area max %g is below area min %g", s.Filter.AreaMax, s.Filter.AreaMin))
	}
	if s.Filter.Circularity < 0 || s.Filter.Circularity > 1 {
		errs = append(errs, fmt.Sprintf("circularity must be between 0.0 and 1.0, got %g", s.Filter.Circularity))
	}
	if s.Filter.NoiseStd < 0 {
		errs = append(errs, fmt.Sprintf("noise std threshold must not be negative, got %g", s.Filter.NoiseStd))
	}
	if s.Features.BandWidth < 1 {
		errs = append(errs, fmt.Sprintf("feature band width must be at least 1, got %d", s.Features.BandWidth))
	}

	return joinErrors("filter", errs)
}

func validateClassifySettings(s *Settings) error {
	var errs []string

	switch s.Classify.Engine {
	case ClassifierRandomForest, ClassifierPassthrough:
	default:
		errs = append(errs, fmt.Sprintf("unknown classifier engine %q", s.Classify.Engine))
	}
	if s.Classify.Margin < 0 {
		errs = append(errs, fmt.Sprintf("margin must not be negative, got %g", s.Classify.Margin))
	}
	if s.Classify.Timeout <= 0 {
		errs = append(errs, "classifier timeout must be positive")
	}

	return joinErrors("classify", errs)
}

func validateOutputSettings(s *Settings) error {
	var errs []string

	if s.Output.Report == "" {
		errs = append(errs, "report file name must be set")
	}
	if s.Output.MinFree < 0 {
		errs = append(errs, fmt.Sprintf("minimum free space must not be negative, got %d", s.Output.MinFree))
	}
	switch s.Output.Format {
	case "table", "json":
	default:
		errs = append(errs, fmt.Sprintf("unknown output format %q", s.Output.Format))
	}

	return joinErrors("output", errs)
}

func validateSinkSettings(s *Settings) error {
	var errs []string

	if s.Datastore.SQLite.Enabled && s.Datastore.MySQL.Enabled {
		errs = append(errs, "only one of sqlite and mysql can be enabled")
	}
	if s.Mirror.Enabled && s.Mirror.Bucket == "" {
		errs = append(errs, "mirror bucket must be set when the mirror is enabled")
	}
	if s.MQTT.Enabled && s.MQTT.Broker == "" {
		errs = append(errs, "mqtt broker must be set when mqtt is enabled")
	}
	if s.Notify.Enabled && len(s.Notify.URLs) == 0 {
		errs = append(errs, "notify urls must be set when notifications are enabled")
	}
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		errs = append(errs, "sentry dsn must be set when sentry is enabled")
	}

	return joinErrors("sinks", errs)
}

func joinErrors(section string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s settings errors: %s", section, strings.Join(errs, ", "))
}
