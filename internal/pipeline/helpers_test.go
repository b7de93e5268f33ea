package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kickspeed/kickspeed/internal/datastore"
	"github.com/kickspeed/kickspeed/internal/media"
)

// fakeMedia writes placeholder files and can fail individual steps
type fakeMedia struct {
	frames    int
	sampleErr error
	failStep  string
	onSample  func()
	delay     time.Duration

	active    atomic.Int32
	maxActive atomic.Int32

	mu         sync.Mutex
	posterSeen *datastore.Analysis
}

func (f *fakeMedia) enter() func() {
	n := f.active.Add(1)
	for {
		cur := f.maxActive.Load()
		if n <= cur || f.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { f.active.Add(-1) }
}

func (f *fakeMedia) SampleFrames(_ context.Context, _, outDir string) ([]string, error) {
	defer f.enter()()
	if f.onSample != nil {
		f.onSample()
	}
	if f.sampleErr != nil {
		return nil, f.sampleErr
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	frames := make([]string, f.frames)
	for i := range f.frames {
		frames[i] = filepath.Join(outDir, fmt.Sprintf(media.FramePattern, i+1))
		if err := os.WriteFile(frames[i], []byte("png"), 0o600); err != nil {
			return nil, err
		}
	}
	return frames, nil
}

func (f *fakeMedia) Poster(ctx context.Context, a *datastore.Analysis, _ media.Reference, out string) error {
	f.mu.Lock()
	cp := *a
	f.posterSeen = &cp
	f.mu.Unlock()
	return f.produce(ctx, StepPoster, out)
}

func (f *fakeMedia) CompareClip(ctx context.Context, _ *datastore.Analysis, _ media.Reference, out string) error {
	return f.produce(ctx, StepCompareClip, out)
}

func (f *fakeMedia) Merge(ctx context.Context, _, _, _, out string) error {
	return f.produce(ctx, StepMerge, out)
}

func (f *fakeMedia) produce(ctx context.Context, step, out string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.failStep == step {
		return fmt.Errorf("%s exploded", step)
	}
	return os.WriteFile(out, []byte(step), 0o600)
}

// fakeAnalyzer returns a fixed estimate or error
type fakeAnalyzer struct {
	analysis *datastore.Analysis
	err      error
	block    bool

	mu         sync.Mutex
	calls      int
	lastFrames int
}

func (f *fakeAnalyzer) AnalyzeFrames(ctx context.Context, frames []string) (*datastore.Analysis, error) {
	f.mu.Lock()
	f.calls++
	f.lastFrames = len(frames)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil || f.analysis == nil {
		return nil, f.err
	}
	cp := *f.analysis
	return &cp, nil
}

type fakeMetrics struct {
	mu        sync.Mutex
	runs      map[string]int
	steps     map[string]int
	stepErrs  map[string]int
	fallbacks int
	inFlight  int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{runs: map[string]int{}, steps: map[string]int{}, stepErrs: map[string]int{}}
}

func (m *fakeMetrics) RecordRun(status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[status]++
}

func (m *fakeMetrics) ObserveStep(step string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[step]++
	if err != nil {
		m.stepErrs[step]++
	}
}

func (m *fakeMetrics) IncInferenceFallback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks++
}

func (m *fakeMetrics) RunStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight++
}

func (m *fakeMetrics) RunFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
}

type fakeAlerter struct {
	mu    sync.Mutex
	kinds []string
	steps []string
}

func (a *fakeAlerter) PipelineFailed(_, kind, step, _ string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kinds = append(a.kinds, kind)
	a.steps = append(a.steps, step)
	return true
}

type fakePublisher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (p *fakePublisher) PublishResult(_ context.Context, r *datastore.AnalysisResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, r.ID)
	return p.err
}

// sequentialIDs returns a generator yielding id-1, id-2, ...
func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("id-%d", n.Add(1))
	}
}

func noopQR(_, path string, _ int) error {
	return os.WriteFile(path, []byte("qr"), 0o600)
}

type testEnv struct {
	store     *datastore.FileStore
	publicDir string
	video     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	store, err := datastore.NewFileStore(filepath.Join(root, "outputs"), time.Minute)
	require.NoError(t, err)

	video := filepath.Join(root, "uploads", "kick.mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(video), 0o755))
	require.NoError(t, os.WriteFile(video, []byte("video"), 0o600))

	return &testEnv{
		store:     store,
		publicDir: filepath.Join(root, "public"),
		video:     video,
	}
}

func (e *testEnv) config() Config {
	return Config{
		PublicDir:     e.publicDir,
		PublicBaseURL: "http://localhost:3000/",
	}
}

func goodAnalysis() *datastore.Analysis {
	return &datastore.Analysis{
		SpeedMps:      30,
		SpeedKmh:      108,
		ContactForceN: 1125,
		PostureScore:  85,
		PostureNotes:  "Solid strike",
		Confidence:    0.8,
	}
}
