// Package inference sends sampled kick frames to a vision model behind an
// OpenRouter compatible chat completions endpoint and decodes the estimate.
package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/kickspeed/kickspeed/internal/conf"
	"github.com/kickspeed/kickspeed/internal/datastore"
	"github.com/kickspeed/kickspeed/internal/errors"
	"github.com/kickspeed/kickspeed/internal/httpclient"
	"github.com/kickspeed/kickspeed/internal/logger"
)

const (
	// DefaultEndpoint is the OpenRouter chat completions URL
	DefaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"

	// DefaultTimeout bounds one analysis call
	DefaultTimeout = 45 * time.Second

	// MaxFrames is the largest number of frames sent in one request
	MaxFrames = 12

	defaultTemperature = 0.2
	maxResponseBytes   = 4 << 20
)

// Client calls the vision model. Safe for concurrent use.
type Client struct {
	http        *httpclient.Client
	limiter     *rate.Limiter
	endpoint    string
	model       string
	apiKey      string
	referer     string
	title       string
	timeout     time.Duration
	maxFrames   int
	temperature float64
	log         logger.Logger
}

// NewClient creates a Client from settings. A nil hc uses a default httpclient.
func NewClient(settings *conf.InferenceSettings, hc *httpclient.Client) *Client {
	if hc == nil {
		cfg := httpclient.DefaultConfig()
		hc = httpclient.New(&cfg)
	}

	c := &Client{
		http:        hc,
		endpoint:    settings.Endpoint,
		model:       settings.Model,
		apiKey:      settings.APIKey,
		referer:     settings.Referer,
		title:       settings.Title,
		timeout:     settings.Timeout,
		maxFrames:   settings.MaxFrames,
		temperature: settings.Temperature,
		log:         GetLogger(),
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxFrames <= 0 || c.maxFrames > MaxFrames {
		c.maxFrames = MaxFrames
	}
	if c.temperature <= 0 {
		c.temperature = defaultTemperature
	}
	if settings.RateLimit > 0 {
		burst := max(settings.Burst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(settings.RateLimit), burst)
	}
	return c
}

// AnalyzeFrames sends up to the configured number of frames and returns the
// decoded estimate. Every failure is returned as an *errors.EnhancedError.
func (c *Client) AnalyzeFrames(ctx context.Context, frames []string) (*datastore.Analysis, error) {
	start := time.Now()
	if len(frames) == 0 {
		return nil, inferenceError(errors.NewStd("no frames to analyze"), errors.CategoryValidation, "analyze_frames")
	}
	if len(frames) > c.maxFrames {
		frames = frames[:c.maxFrames]
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, inferenceError(err, errors.CategoryInference, "rate_limiter_wait")
		}
	}

	payload, err := c.buildRequest(frames)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, payload)
	if err != nil {
		return nil, inferenceError(err, errors.CategoryInference, "create_request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	c.log.Debug("sending frames to model",
		logger.String("model", c.model),
		logger.Int("frames", len(frames)))

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		category := errors.CategoryNetwork
		if ctx.Err() != nil {
			category = errors.CategoryTimeout
		}
		return nil, inferenceError(err, category, "post_chat_completion",
			"elapsed_ms", time.Since(start).Milliseconds())
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Debug("failed to close response body", logger.Error(cerr))
		}
	}()

	if err := httpclient.CheckStatus(resp); err != nil {
		return nil, inferenceError(err, errors.CategoryHTTP, "post_chat_completion",
			"status_code", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, inferenceError(err, errors.CategoryNetwork, "read_response")
	}

	content, err := messageContent(body)
	if err != nil {
		return nil, inferenceError(err, errors.CategoryInference, "decode_response")
	}

	analysis, err := parseAnalysis(content)
	if err != nil {
		return nil, inferenceError(err, errors.CategoryInference, "parse_analysis",
			"content_length", len(content))
	}

	c.log.Info("model analysis received",
		logger.Float64("speed_kmh", analysis.SpeedKmh),
		logger.Float64("confidence", analysis.Confidence),
		logger.Duration("elapsed", time.Since(start)))
	return analysis, nil
}

// buildRequest encodes the frames as data URLs inside a single user message
func (c *Client) buildRequest(frames []string) (io.Reader, error) {
	parts := make([]contentPart, 0, len(frames)+1)
	parts = append(parts, contentPart{Type: "text", Text: userPrompt})

	for _, frame := range frames {
		data, err := os.ReadFile(frame)
		if err != nil {
			return nil, errors.FileError(err, frame)
		}
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)},
		})
	}

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: parts},
		},
		Temperature: c.temperature,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return nil, inferenceError(err, errors.CategoryInference, "encode_request")
	}
	return &buf, nil
}

func inferenceError(err error, category errors.ErrorCategory, operation string, context ...any) error {
	builder := errors.New(err).
		Component("inference").
		Category(category).
		Context("operation", operation)

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}
	return builder.Build()
}

// GetLogger returns the inference module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("inference")
}
