// config.go: kickspeed configuration handling
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/kickspeed/kickspeed/internal/errors"
	"github.com/kickspeed/kickspeed/internal/logger"
)

// ServerSettings contains HTTP listener settings
type ServerSettings struct {
	Host          string        // interface to bind, empty for all
	Port          int           // first port to try
	PortRetries   int           // how many following ports to try on EADDRINUSE
	PublicBaseURL string        // base for video_url and qr_url, defaults to http://localhost:<port>
	UploadLimit   string        // maximum upload size, e.g. "200MB"
	ReadTimeout   time.Duration // request read timeout
	WriteTimeout  time.Duration // response write timeout, must cover a full pipeline run
	CORSOrigins   []string      // allowed CORS origins
	Metrics       bool          // expose /metrics
}

// PathSettings contains filesystem locations
type PathSettings struct {
	Uploads string // raw uploads
	Outputs string // per-submission working directories and analysis records
	Public  string // published videos, QR codes and avatars
}

// InferenceSettings contains the vision model endpoint settings
type InferenceSettings struct {
	Endpoint    string        // chat completions URL
	Model       string        // model name
	APIKey      string        // bearer token
	Timeout     time.Duration // deadline for one analysis call
	MaxFrames   int           // frames sent per call, at most 12
	Temperature float64       // sampling temperature
	RateLimit   float64       // requests per second
	Burst       int           // rate limiter burst
	Referer     string        // optional HTTP-Referer header
	Title       string        // optional X-Title header
}

// MediaSettings contains ffmpeg composition settings
type MediaSettings struct {
	FFmpegPath     string        // ffmpeg binary
	FontFile       string        // optional font file for drawtext
	FrameRate      float64       // sampling rate in frames per second
	FrameWidth     int           // sampled frame width in pixels
	MaxFrames      int           // maximum sampled frames
	Width          int           // output video width
	Height         int           // output video height
	IntroSeconds   float64       // poster duration in the merged video
	CompareSeconds float64       // comparison clip duration
	StepTimeout    time.Duration // deadline for a single ffmpeg invocation
	QRSize         int           // QR code size in pixels
}

// PipelineSettings contains orchestration limits
type PipelineSettings struct {
	MaxConcurrent int64  // concurrent pipeline runs
	MinFreeDiskMB uint64 // warn when free space under outputs drops below this
}

// CacheSettings contains result cache settings
type CacheSettings struct {
	TTL time.Duration // how long parsed records stay cached
}

// MQTTSettings contains result event publishing settings
type MQTTSettings struct {
	Enabled  bool
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	Retain   bool
	QoS      byte
}

// NotificationSettings contains failure alert settings
type NotificationSettings struct {
	Enabled bool
	URLs    []string      // shoutrrr service URLs
	Timeout time.Duration // per-send timeout
}

// SentrySettings contains error telemetry settings
type SentrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
}

// AvatarSettings contains the batch avatar download settings
type AvatarSettings struct {
	URLTemplate string        // image generator URL, %s is replaced with the escaped prompt
	Prompts     []string      // one image per prompt
	Width       int           // requested width
	Height      int           // requested height
	Interval    time.Duration // spacing between downloads
	Prefix      string        // file name prefix
}

// Settings contains all configuration options for kickspeed
type Settings struct {
	Debug bool

	Main struct {
		Name string
	}

	Logging      logger.LoggingConfig
	Server       ServerSettings
	Paths        PathSettings
	Inference    InferenceSettings
	Media        MediaSettings
	Pipeline     PipelineSettings
	Cache        CacheSettings
	MQTT         MQTTSettings
	Notification NotificationSettings
	Sentry       SentrySettings
	Avatars      AvatarSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults, environment bindings and reads an optional config file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	for _, path := range GetDefaultConfigPaths() {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		// Invalid environment values are reported but don't prevent startup.
		GetLogger().Warn("Environment configuration issues", logger.Error(err))
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	GetLogger().Info("Loaded configuration file", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "kickspeed"))
	}
	return append(paths, "/etc/kickspeed")
}

// GetSettings returns the settings loaded by the last successful Load
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetLogger returns the conf module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("conf")
}
