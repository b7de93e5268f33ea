package observability

import "github.com/kickspeed/kickspeed/internal/logger"

func log() logger.Logger {
	return logger.Global().Module("metrics")
}
