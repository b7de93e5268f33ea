// Package diskmanager checks free space on the filesystems holding uploads,
// working directories and published media.
package diskmanager

import (
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/kickspeed/kickspeed/internal/errors"
	"github.com/kickspeed/kickspeed/internal/logger"
)

const bytesPerMB = 1024 * 1024

// Recorder receives usage check results
type Recorder interface {
	RecordUsage(path string, free uint64, usedPercent float64, low bool)
	RecordError()
}

// Usage is the result of one check
type Usage struct {
	Path        string
	TotalBytes  uint64
	FreeBytes   uint64
	UsedPercent float64
	Low         bool // free space is under the configured minimum
}

// Checker compares free space against a minimum
type Checker struct {
	minFree  uint64
	recorder Recorder
	log      logger.Logger
}

// NewChecker creates a Checker warning below minFreeMB. rec may be nil.
func NewChecker(minFreeMB uint64, rec Recorder) *Checker {
	return &Checker{
		minFree:  minFreeMB * bytesPerMB,
		recorder: rec,
		log:      GetLogger(),
	}
}

// Check returns usage for the filesystem containing path
func (c *Checker) Check(path string) (*Usage, error) {
	stat, err := disk.Usage(path)
	if err != nil {
		if c.recorder != nil {
			c.recorder.RecordError()
		}
		return nil, errors.New(err).
			Component("diskmanager").
			Category(errors.CategorySystem).
			Context("operation", "disk_usage").
			Context("path", path).
			Build()
	}

	u := &Usage{
		Path:        path,
		TotalBytes:  stat.Total,
		FreeBytes:   stat.Free,
		UsedPercent: stat.UsedPercent,
		Low:         c.minFree > 0 && stat.Free < c.minFree,
	}
	if c.recorder != nil {
		c.recorder.RecordUsage(path, u.FreeBytes, u.UsedPercent, u.Low)
	}
	if u.Low {
		c.log.Warn("low disk space",
			logger.String("path", path),
			logger.Uint64("free_mb", u.FreeBytes/bytesPerMB),
			logger.Uint64("min_free_mb", c.minFree/bytesPerMB))
	}
	return u, nil
}

// GetLogger returns the diskmanager module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("diskmanager")
}
