// Package media wraps ffmpeg and QR rendering for the kick video pipeline:
// frame sampling, summary poster, animated comparison clip and final merge.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kickspeed/kickspeed/internal/errors"
	"github.com/kickspeed/kickspeed/internal/logger"
)

const (
	// DefaultStepTimeout bounds a single ffmpeg invocation
	DefaultStepTimeout = 5 * time.Minute

	// stderr tail kept in errors
	maxStderrTail = 1024

	// how long to wait for output pipes after the process is killed
	waitDelay = 2 * time.Second
)

// Runner executes one ffmpeg invocation
type Runner interface {
	Run(ctx context.Context, args ...string) error
}

// FFmpeg runs the ffmpeg binary
type FFmpeg struct {
	path    string
	timeout time.Duration
	log     logger.Logger
}

// NewFFmpeg creates a runner for the binary at path, "ffmpeg" when empty.
func NewFFmpeg(path string, timeout time.Duration) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	return &FFmpeg{path: path, timeout: timeout, log: GetLogger()}
}

// Run executes ffmpeg with args and returns the stderr tail on failure
func (f *FFmpeg) Run(ctx context.Context, args ...string) error {
	runCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, f.path, args...)
	cmd.WaitDelay = waitDelay

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	f.log.Debug("running ffmpeg", logger.String("args", strings.Join(args, " ")))

	if err := cmd.Run(); err != nil {
		tail := stderrTail(stderr.String())
		operation := "ffmpeg_failed"
		if runCtx.Err() != nil {
			operation = "ffmpeg_timeout"
		}
		return errors.New(fmt.Errorf("ffmpeg: %w: %s", err, tail)).
			Component("media").
			Category(errors.CategoryMedia).
			Context("operation", operation).
			Context("stderr", tail).
			Timing("ffmpeg", time.Since(start)).
			Build()
	}

	f.log.Debug("ffmpeg finished", logger.Duration("elapsed", time.Since(start)))
	return nil
}

func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderrTail {
		s = s[len(s)-maxStderrTail:]
	}
	return s
}

// GetLogger returns the media module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("media")
}
