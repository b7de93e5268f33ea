package datastore

import "github.com/kickspeed/kickspeed/internal/logger"

// GetLogger returns the datastore module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}
