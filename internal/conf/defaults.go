// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("main.name", "kickspeed")

	viper.SetDefault("logging.defaultlevel", "info")
	viper.SetDefault("logging.timezone", "UTC")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.fileoutput.enabled", false)
	viper.SetDefault("logging.fileoutput.path", "logs/kickspeed.log")
	viper.SetDefault("logging.fileoutput.level", "info")

	viper.SetDefault("server.host", "")
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.portretries", 10)
	viper.SetDefault("server.publicbaseurl", "")
	viper.SetDefault("server.uploadlimit", "200MB")
	viper.SetDefault("server.readtimeout", 2*time.Minute)
	viper.SetDefault("server.writetimeout", 10*time.Minute)
	viper.SetDefault("server.corsorigins", []string{"*"})
	viper.SetDefault("server.metrics", true)

	viper.SetDefault("paths.uploads", "uploads")
	viper.SetDefault("paths.outputs", "outputs")
	viper.SetDefault("paths.public", "public")

	viper.SetDefault("inference.endpoint", "https://openrouter.ai/api/v1/chat/completions")
	viper.SetDefault("inference.model", "openai/gpt-4o-mini")
	viper.SetDefault("inference.apikey", "")
	viper.SetDefault("inference.timeout", 45*time.Second)
	viper.SetDefault("inference.maxframes", 12)
	viper.SetDefault("inference.temperature", 0.2)
	viper.SetDefault("inference.ratelimit", 2.0)
	viper.SetDefault("inference.burst", 2)
	viper.SetDefault("inference.referer", "")
	viper.SetDefault("inference.title", "kickspeed")

	viper.SetDefault("media.ffmpegpath", "ffmpeg")
	viper.SetDefault("media.fontfile", "")
	viper.SetDefault("media.framerate", 8.0)
	viper.SetDefault("media.framewidth", 640)
	viper.SetDefault("media.maxframes", 24)
	viper.SetDefault("media.width", 1080)
	viper.SetDefault("media.height", 1920)
	viper.SetDefault("media.introseconds", 3.0)
	viper.SetDefault("media.compareseconds", 4.0)
	viper.SetDefault("media.steptimeout", 3*time.Minute)
	viper.SetDefault("media.qrsize", 512)

	viper.SetDefault("pipeline.maxconcurrent", 2)
	viper.SetDefault("pipeline.minfreediskmb", 1024)

	viper.SetDefault("cache.ttl", 10*time.Minute)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "kickspeed/results")
	viper.SetDefault("mqtt.clientid", "kickspeed")
	viper.SetDefault("mqtt.retain", false)
	viper.SetDefault("mqtt.qos", 1)

	viper.SetDefault("notification.enabled", false)
	viper.SetDefault("notification.urls", []string{})
	viper.SetDefault("notification.timeout", 10*time.Second)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")

	viper.SetDefault("avatars.urltemplate", "https://image.pollinations.ai/prompt/%s")
	viper.SetDefault("avatars.prompts", []string{
		"3D cartoon of a football player kicking a ball in a crowded stadium, dynamic angle, bright colors",
		"3D cartoon of a football player celebrating a goal with arms wide open, stadium background",
		"3D cartoon of a football player dribbling a ball, close up action shot, dynamic lighting",
		"3D cartoon of a football player taking a free kick, stadium lights, detailed grass",
	})
	viper.SetDefault("avatars.width", 1024)
	viper.SetDefault("avatars.height", 1024)
	viper.SetDefault("avatars.interval", 2*time.Second)
	viper.SetDefault("avatars.prefix", "avatar")
}
