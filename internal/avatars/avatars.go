// Package avatars batch-downloads generated avatar images into the public
// directory.
package avatars

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kickspeed/kickspeed/internal/conf"
	"github.com/kickspeed/kickspeed/internal/errors"
	"github.com/kickspeed/kickspeed/internal/httpclient"
	"github.com/kickspeed/kickspeed/internal/logger"
)

const (
	// DirName is the avatar directory below the public root
	DirName = "avatars"

	defaultSize     = 1024
	defaultPrefix   = "avatar"
	defaultInterval = 2 * time.Second
	maxImageBytes   = 20 << 20
	maxSeed         = 10000
)

// Result describes one prompt's download
type Result struct {
	Prompt string
	Path   string
	Bytes  int64
	Err    error
}

// Generator downloads one image per configured prompt
type Generator struct {
	http     *httpclient.Client
	limiter  *rate.Limiter
	settings conf.AvatarSettings
	outDir   string
	seed     func() int
	log      logger.Logger
}

// NewGenerator creates a Generator writing into publicDir/avatars. A nil hc
// uses a default httpclient.
func NewGenerator(settings *conf.AvatarSettings, publicDir string, hc *httpclient.Client) (*Generator, error) {
	if settings.URLTemplate == "" || !strings.Contains(settings.URLTemplate, "%s") {
		return nil, errors.ValidationError("avatar url template must contain %s")
	}
	if hc == nil {
		cfg := httpclient.DefaultConfig()
		hc = httpclient.New(&cfg)
	}

	s := *settings
	if s.Width <= 0 {
		s.Width = defaultSize
	}
	if s.Height <= 0 {
		s.Height = defaultSize
	}
	if s.Prefix == "" {
		s.Prefix = defaultPrefix
	}
	if s.Interval <= 0 {
		s.Interval = defaultInterval
	}

	return &Generator{
		http:     hc,
		limiter:  rate.NewLimiter(rate.Every(s.Interval), 1),
		settings: s,
		outDir:   filepath.Join(publicDir, DirName),
		seed:     func() int { return rand.IntN(maxSeed) },
		log:      GetLogger(),
	}, nil
}

// ImageURL builds the generator URL for prompt
func (g *Generator) ImageURL(prompt string, seed int) (string, error) {
	raw := fmt.Sprintf(g.settings.URLTemplate, url.PathEscape(prompt))
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.New(err).
			Component("avatars").
			Category(errors.CategoryConfiguration).
			Context("template", g.settings.URLTemplate).
			Build()
	}

	q := u.Query()
	q.Set("width", strconv.Itoa(g.settings.Width))
	q.Set("height", strconv.Itoa(g.settings.Height))
	q.Set("seed", strconv.Itoa(seed))
	q.Set("nologo", "true")
	q.Set("model", "flux")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Generate downloads every prompt in order. A failed prompt is recorded in
// its Result and does not stop the batch; only ctx cancellation does.
func (g *Generator) Generate(ctx context.Context) ([]Result, error) {
	if err := os.MkdirAll(g.outDir, 0o755); err != nil {
		return nil, errors.FileError(err, g.outDir)
	}

	g.log.Info("starting avatar batch",
		logger.Int("prompts", len(g.settings.Prompts)),
		logger.String("dir", g.outDir))

	results := make([]Result, 0, len(g.settings.Prompts))
	for i, prompt := range g.settings.Prompts {
		if err := g.limiter.Wait(ctx); err != nil {
			return results, err
		}

		res := Result{
			Prompt: prompt,
			Path:   filepath.Join(g.outDir, fmt.Sprintf("%s_%d.png", g.settings.Prefix, i+1)),
		}
		res.Bytes, res.Err = g.download(ctx, prompt, res.Path)
		if res.Err != nil {
			g.log.Warn("avatar download failed",
				logger.Int("index", i+1),
				logger.Error(res.Err))
		} else {
			g.log.Info("avatar saved",
				logger.Int("index", i+1),
				logger.String("path", res.Path),
				logger.Int64("bytes", res.Bytes))
		}
		results = append(results, res)
	}
	return results, nil
}

func (g *Generator) download(ctx context.Context, prompt, dst string) (int64, error) {
	imageURL, err := g.ImageURL(prompt, g.seed())
	if err != nil {
		return 0, err
	}

	resp, err := g.http.Get(ctx, imageURL)
	if err != nil {
		return 0, errors.New(err).
			Component("avatars").
			Category(errors.CategoryNetwork).
			Context("operation", "download_avatar").
			Build()
	}
	defer resp.Body.Close()

	n, err := httpclient.DownloadToFile(resp, dst, maxImageBytes)
	if err != nil {
		category := errors.CategoryFileIO
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			category = errors.CategoryHTTP
		}
		return 0, errors.New(err).
			Component("avatars").
			Category(category).
			Context("operation", "save_avatar").
			Build()
	}
	return n, nil
}

// GetLogger returns the avatars module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("avatars")
}
