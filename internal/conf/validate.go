// validate.go contains settings validation
package conf

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/labstack/gommon/bytes"

	"github.com/kickspeed/kickspeed/internal/errors"
	"github.com/kickspeed/kickspeed/internal/logger"
)

// MaxInferenceFrames is the upper bound of frames sent to the vision model
const MaxInferenceFrames = 12

// ValidationError collects every invalid setting found in one pass
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings checks the loaded settings and normalizes derived values
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if settings.Server.Port < 1 || settings.Server.Port > 65535 {
		ve.Errors = append(ve.Errors, fmt.Sprintf("server.port must be between 1 and 65535, got %d", settings.Server.Port))
	}
	if settings.Server.PortRetries < 0 {
		ve.Errors = append(ve.Errors, "server.portretries must not be negative")
	}
	if _, err := settings.Server.UploadLimitBytes(); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if settings.Server.PublicBaseURL != "" {
		if err := validateEnvURL(settings.Server.PublicBaseURL); err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("server.publicbaseurl: %v", err))
		}
		settings.Server.PublicBaseURL = strings.TrimRight(settings.Server.PublicBaseURL, "/")
	}

	for name, dir := range map[string]string{
		"paths.uploads": settings.Paths.Uploads,
		"paths.outputs": settings.Paths.Outputs,
		"paths.public":  settings.Paths.Public,
	} {
		if strings.TrimSpace(dir) == "" {
			ve.Errors = append(ve.Errors, name+" must not be empty")
		}
	}

	if _, err := url.ParseRequestURI(settings.Inference.Endpoint); err != nil {
		ve.Errors = append(ve.Errors, fmt.Sprintf("inference.endpoint is not a valid URL: %v", err))
	}
	if settings.Inference.MaxFrames < 1 || settings.Inference.MaxFrames > MaxInferenceFrames {
		ve.Errors = append(ve.Errors, fmt.Sprintf("inference.maxframes must be between 1 and %d", MaxInferenceFrames))
	}
	if settings.Inference.Timeout <= 0 {
		ve.Errors = append(ve.Errors, "inference.timeout must be positive")
	}
	if settings.Inference.RateLimit <= 0 {
		ve.Errors = append(ve.Errors, "inference.ratelimit must be positive")
	}

	if settings.Media.FrameRate <= 0 || settings.Media.MaxFrames < 1 {
		ve.Errors = append(ve.Errors, "media.framerate and media.maxframes must be positive")
	}
	if settings.Media.Width < 16 || settings.Media.Height < 16 {
		ve.Errors = append(ve.Errors, "media.width and media.height must be at least 16")
	}
	if settings.Media.QRSize < 64 {
		ve.Errors = append(ve.Errors, "media.qrsize must be at least 64")
	}

	if settings.Pipeline.MaxConcurrent < 1 {
		ve.Errors = append(ve.Errors, "pipeline.maxconcurrent must be at least 1")
	}

	if settings.MQTT.Enabled && settings.MQTT.Broker == "" {
		ve.Errors = append(ve.Errors, "mqtt.broker is required when mqtt is enabled")
	}
	if settings.MQTT.QoS > 2 {
		ve.Errors = append(ve.Errors, "mqtt.qos must be 0, 1 or 2")
	}
	if settings.Notification.Enabled && len(settings.Notification.URLs) == 0 {
		ve.Errors = append(ve.Errors, "notification.urls is required when notifications are enabled")
	}
	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry.dsn is required when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "validate_settings").
			Context("error_count", len(ve.Errors)).
			Build()
	}

	if settings.Inference.APIKey == "" {
		GetLogger().Warn("No inference API key configured, analyses will use the default estimate",
			logger.String("model", settings.Inference.Model))
	}

	return nil
}

// UploadLimitBytes parses UploadLimit, e.g. "200MB"
func (s *ServerSettings) UploadLimitBytes() (int64, error) {
	limit, err := bytes.Parse(s.UploadLimit)
	if err != nil {
		return 0, fmt.Errorf("server.uploadlimit %q is invalid: %w", s.UploadLimit, err)
	}
	if limit <= 0 {
		return 0, fmt.Errorf("server.uploadlimit must be positive")
	}
	return limit, nil
}

// ListenAddress returns host:port for the given port
func (s *ServerSettings) ListenAddress(port int) string {
	return fmt.Sprintf("%s:%d", s.Host, port)
}
