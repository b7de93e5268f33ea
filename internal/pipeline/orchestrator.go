// Package pipeline drives one uploaded kick video from raw file to a
// persisted, published analysis result.
package pipeline

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/kickspeed/kickspeed/internal/datastore"
	"github.com/kickspeed/kickspeed/internal/diskmanager"
	"github.com/kickspeed/kickspeed/internal/errors"
	"github.com/kickspeed/kickspeed/internal/logger"
	"github.com/kickspeed/kickspeed/internal/media"
	"github.com/kickspeed/kickspeed/internal/observability/metrics"
)

const (
	// MaxInferenceFrames is the largest frame prefix sent to inference
	MaxInferenceFrames = 12

	// DefaultInferenceTimeout bounds the inference step
	DefaultInferenceTimeout = 45 * time.Second

	publishTimeout = 10 * time.Second
)

// Working directory and public layout
const (
	framesDirName  = "frames"
	posterName     = "poster.png"
	overlayName    = "overlay.mp4"
	outputName     = "output.mp4"
	qrName         = "qr.png"
	VideosDirName  = "videos"
	QRCodesDirName = "qrcodes"
)

// Media produces the frames, stills and videos of a run
type Media interface {
	SampleFrames(ctx context.Context, video, outDir string) ([]string, error)
	Poster(ctx context.Context, analysis *datastore.Analysis, ref media.Reference, outPath string) error
	CompareClip(ctx context.Context, analysis *datastore.Analysis, ref media.Reference, outPath string) error
	Merge(ctx context.Context, video, introImage, overlayVideo, outPath string) error
}

// Analyzer estimates kick metrics from frames
type Analyzer interface {
	AnalyzeFrames(ctx context.Context, frames []string) (*datastore.Analysis, error)
}

// Store persists finished results
type Store interface {
	Put(result *datastore.AnalysisResult) error
	WorkDir(id string) (string, error)
}

// QREncoder renders content into a PNG at path
type QREncoder func(content, path string, size int) error

// ResultPublisher announces finished results
type ResultPublisher interface {
	PublishResult(ctx context.Context, result *datastore.AnalysisResult) error
}

// FailureAlerter is told about aborted runs
type FailureAlerter interface {
	PipelineFailed(id, kind, step, message string) bool
}

// Metrics records run outcomes. *metrics.PipelineMetrics satisfies it.
type Metrics interface {
	RecordRun(status string, elapsed time.Duration)
	ObserveStep(step string, elapsed time.Duration, err error)
	IncInferenceFallback()
	RunStarted()
	RunFinished()
}

// DiskChecker reports free space for a directory
type DiskChecker interface {
	Check(path string) (*diskmanager.Usage, error)
}

// Config holds the orchestrator's filesystem and limit settings
type Config struct {
	PublicDir          string        // root of published artifacts
	PublicBaseURL      string        // prefix of video_url and qr_url, without trailing slash
	MaxInferenceFrames int           // frames passed to inference, at most 12
	InferenceTimeout   time.Duration // deadline of the inference step
	QRSize             int           // QR edge length in pixels
	MaxConcurrent      int64         // concurrent runs, 0 for unbounded
	Reference          media.Reference
}

// Orchestrator runs submissions through the pipeline. Safe for concurrent use;
// each run owns its submission id and working directory.
type Orchestrator struct {
	cfg      Config
	media    Media
	analyzer Analyzer
	store    Store
	encodeQR QREncoder

	publisher ResultPublisher
	alerter   FailureAlerter
	metrics   Metrics
	disk      DiskChecker

	sem   *semaphore.Weighted
	newID func() string
	now   func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	log logger.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithPublisher announces every persisted result
func WithPublisher(p ResultPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithAlerter reports aborted runs
func WithAlerter(a FailureAlerter) Option {
	return func(o *Orchestrator) { o.alerter = a }
}

// WithMetrics records run and step metrics
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithDiskChecker warns before runs when space is low
func WithDiskChecker(d DiskChecker) Option {
	return func(o *Orchestrator) { o.disk = d }
}

// WithQREncoder replaces the QR renderer
func WithQREncoder(enc QREncoder) Option {
	return func(o *Orchestrator) { o.encodeQR = enc }
}

// WithIDGenerator replaces the submission and public id generator
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// WithClock replaces the clock used for created_at
func WithClock(fn func() time.Time) Option {
	return func(o *Orchestrator) { o.now = fn }
}

// WithRand replaces the comparison selection source
func WithRand(r *rand.Rand) Option {
	return func(o *Orchestrator) { o.rng = r }
}

// WithLogger replaces the module logger
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(cfg Config, m Media, analyzer Analyzer, store Store, opts ...Option) *Orchestrator {
	if cfg.MaxInferenceFrames <= 0 || cfg.MaxInferenceFrames > MaxInferenceFrames {
		cfg.MaxInferenceFrames = MaxInferenceFrames
	}
	if cfg.InferenceTimeout <= 0 {
		cfg.InferenceTimeout = DefaultInferenceTimeout
	}
	if cfg.QRSize <= 0 {
		cfg.QRSize = media.DefaultQRSize
	}
	if cfg.Reference == (media.Reference{}) {
		cfg.Reference = media.DefaultReference()
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")

	o := &Orchestrator{
		cfg:      cfg,
		media:    m,
		analyzer: analyzer,
		store:    store,
		encodeQR: media.WriteQR,
		newID:    uuid.NewString,
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		log:      GetLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if cfg.MaxConcurrent > 0 {
		o.sem = semaphore.NewWeighted(cfg.MaxConcurrent)
	}
	return o
}

// Run processes the video at videoPath. The run continues even if ctx is
// cancelled after it has started; ctx only bounds the wait for a free slot.
// Fatal failures are returned as *Error and never leave a stored record.
func (o *Orchestrator) Run(ctx context.Context, videoPath string) (*datastore.AnalysisResult, error) {
	if o.sem != nil {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			return nil, errors.New(err).
				Component("pipeline").
				Category(errors.CategoryTimeout).
				Context("operation", "acquire_run_slot").
				Build()
		}
		defer o.sem.Release(1)
	}

	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	if o.metrics != nil {
		o.metrics.RunStarted()
		defer o.metrics.RunFinished()
	}

	result, err := o.run(ctx, videoPath)

	status := metrics.StatusSuccess
	if err != nil {
		status = string(KindOf(err))
		if status == "" {
			status = string(KindProcessingFailed)
		}
	}
	if o.metrics != nil {
		o.metrics.RecordRun(status, time.Since(start))
	}

	if err != nil {
		o.reportFailure(err)
		return nil, err
	}

	o.log.Info("analysis completed",
		logger.String("submission_id", result.ID),
		logger.Float64("speed_kmh", result.Analysis.SpeedKmh),
		logger.Duration("elapsed", time.Since(start)))

	o.announce(ctx, result)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, videoPath string) (*datastore.AnalysisResult, error) {
	id := o.newID()
	log := o.log.With(logger.String("submission_id", id))

	workDir, err := o.store.WorkDir(id)
	if err != nil {
		return nil, fatal(KindProcessingFailed, StepSampleFrames, id, err)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fatal(KindProcessingFailed, StepSampleFrames, id, errors.FileError(err, workDir))
	}
	o.checkDisk(workDir)

	log.Info("analysis started", logger.String("video", filepath.Base(videoPath)))

	// 1. frames
	var frames []string
	err = o.step(StepSampleFrames, func() error {
		var sampleErr error
		frames, sampleErr = o.media.SampleFrames(ctx, videoPath, filepath.Join(workDir, framesDirName))
		return sampleErr
	})
	if err != nil {
		return nil, fatal(KindProcessingFailed, StepSampleFrames, id, err)
	}
	if len(frames) == 0 {
		return nil, fatal(KindNoFrames, StepSampleFrames, id, errors.NewStd("no frames extracted from video"))
	}
	log.Debug("frames sampled", logger.Int("frames", len(frames)))

	// 2. inference, degrading to the default estimate
	analysis := o.analyze(ctx, log, frames)

	// 3. comparisons
	analysis.Comparisons = o.selectComparisons()

	// 4. composition
	posterPath := filepath.Join(workDir, posterName)
	overlayPath := filepath.Join(workDir, overlayName)
	outputPath := filepath.Join(workDir, outputName)

	if err := o.step(StepPoster, func() error {
		return o.media.Poster(ctx, &analysis, o.cfg.Reference, posterPath)
	}); err != nil {
		return nil, fatal(KindProcessingFailed, StepPoster, id, err)
	}
	if err := o.step(StepCompareClip, func() error {
		return o.media.CompareClip(ctx, &analysis, o.cfg.Reference, overlayPath)
	}); err != nil {
		return nil, fatal(KindProcessingFailed, StepCompareClip, id, err)
	}
	if err := o.step(StepMerge, func() error {
		return o.media.Merge(ctx, videoPath, posterPath, overlayPath, outputPath)
	}); err != nil {
		return nil, fatal(KindProcessingFailed, StepMerge, id, err)
	}

	// 5. publication under a separate public id
	publicID := o.newID()
	videoURL := o.cfg.PublicBaseURL + "/" + VideosDirName + "/" + publicID + ".mp4"
	if err := o.step(StepPublish, func() error {
		return copyFile(outputPath, filepath.Join(o.cfg.PublicDir, VideosDirName, publicID+".mp4"))
	}); err != nil {
		return nil, fatal(KindProcessingFailed, StepPublish, id, err)
	}

	// 6. QR code
	qrPath := filepath.Join(workDir, qrName)
	qrURL := o.cfg.PublicBaseURL + "/" + QRCodesDirName + "/" + publicID + ".png"
	if err := o.step(StepQRCode, func() error {
		if err := o.encodeQR(videoURL, qrPath, o.cfg.QRSize); err != nil {
			return err
		}
		return copyFile(qrPath, filepath.Join(o.cfg.PublicDir, QRCodesDirName, publicID+".png"))
	}); err != nil {
		return nil, fatal(KindProcessingFailed, StepQRCode, id, err)
	}

	// 7. persist
	result := &datastore.AnalysisResult{
		ID:          id,
		Analysis:    analysis,
		CreatedAt:   o.now().UTC(),
		VideoURL:    videoURL,
		QRImagePath: qrPath,
		QRURL:       qrURL,
	}
	if err := o.step(StepPersist, func() error {
		return o.store.Put(result)
	}); err != nil {
		return nil, fatal(KindProcessingFailed, StepPersist, id, err)
	}

	return result, nil
}

// analyze calls the analyzer with a bounded frame prefix and deadline. Any
// failure is logged and replaced by DefaultEstimate.
func (o *Orchestrator) analyze(ctx context.Context, log logger.Logger, frames []string) datastore.Analysis {
	if len(frames) > o.cfg.MaxInferenceFrames {
		frames = frames[:o.cfg.MaxInferenceFrames]
	}

	inferCtx, cancel := context.WithTimeout(ctx, o.cfg.InferenceTimeout)
	defer cancel()

	var estimate *datastore.Analysis
	err := o.step(StepInference, func() error {
		var inferErr error
		estimate, inferErr = o.analyzer.AnalyzeFrames(inferCtx, frames)
		if inferErr == nil && estimate == nil {
			inferErr = errors.NewStd("analyzer returned no estimate")
		}
		return inferErr
	})
	if err != nil {
		if o.metrics != nil {
			o.metrics.IncInferenceFallback()
		}
		log.Warn("inference failed, using default estimate",
			logger.String("error", logger.RedactSensitiveData(err.Error())))
		return DefaultEstimate()
	}

	a := *estimate
	a.Comparisons = nil
	return a
}

func (o *Orchestrator) selectComparisons() []datastore.Comparison {
	o.rngMu.Lock()
	defer o.rngMu.Unlock()
	return SelectComparisons(o.rng)
}

// step runs fn and records its duration
func (o *Orchestrator) step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	if o.metrics != nil {
		o.metrics.ObserveStep(name, time.Since(start), err)
	}
	return err
}

func (o *Orchestrator) checkDisk(dir string) {
	if o.disk == nil {
		return
	}
	if _, err := o.disk.Check(dir); err != nil {
		o.log.Debug("disk space check failed", logger.Error(err))
	}
}

func (o *Orchestrator) reportFailure(err error) {
	var pe *Error
	if !errors.As(err, &pe) {
		o.log.Error("analysis could not start", logger.Error(err))
		return
	}

	o.log.Error("analysis failed",
		logger.String("submission_id", pe.ID),
		logger.String("kind", string(pe.Kind)),
		logger.String("step", pe.Step),
		logger.Error(pe.Err))

	if o.alerter != nil {
		o.alerter.PipelineFailed(pe.ID, string(pe.Kind), pe.Step, pe.Message())
	}
}

// announce publishes the result event, best effort
func (o *Orchestrator) announce(ctx context.Context, result *datastore.AnalysisResult) {
	if o.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := o.publisher.PublishResult(pubCtx, result); err != nil {
		o.log.Warn("failed to publish result event",
			logger.String("submission_id", result.ID),
			logger.Error(err))
	}
}

// GetLogger returns the pipeline module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("pipeline")
}
