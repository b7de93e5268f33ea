package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kickspeed/kickspeed/internal/datastore"
	"github.com/kickspeed/kickspeed/internal/errors"
	"github.com/kickspeed/kickspeed/internal/leaderboard"
	"github.com/kickspeed/kickspeed/internal/observability"
	"github.com/kickspeed/kickspeed/internal/pipeline"
	"github.com/kickspeed/kickspeed/internal/testutil"
)

type fakePipeline struct {
	mu     sync.Mutex
	result *datastore.AnalysisResult
	err    error
	videos []string
}

func (f *fakePipeline) Run(_ context.Context, videoPath string) (*datastore.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videos = append(f.videos, videoPath)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type testServer struct {
	srv      *Server
	store    *datastore.FileStore
	pipeline *fakePipeline
	config   *Config
}

func newTestServer(t *testing.T, mutate ...func(*Config)) *testServer {
	t.Helper()
	root := t.TempDir()

	store, err := datastore.NewFileStore(filepath.Join(root, "outputs"), time.Minute)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.UploadsDir = filepath.Join(root, "uploads")
	cfg.PublicDir = filepath.Join(root, "public")
	for _, fn := range mutate {
		fn(cfg)
	}

	fp := &fakePipeline{}
	srv, err := New(cfg,
		WithPipeline(fp),
		WithResults(store),
		WithRanker(leaderboard.NewEngine(store)),
	)
	require.NoError(t, err)

	return &testServer{srv: srv, store: store, pipeline: fp, config: cfg}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.srv.Echo().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func storedResult(id string, speed float64, created time.Time) *datastore.AnalysisResult {
	return &datastore.AnalysisResult{
		ID:        id,
		CreatedAt: created,
		Analysis:  datastore.Analysis{SpeedKmh: speed, SpeedMps: speed / 3.6},
		VideoURL:  "http://localhost:3000/videos/" + id + ".mp4",
		QRURL:     "http://localhost:3000/qrcodes/" + id + ".png",
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestAnalyze_MissingVideo(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(uploadRequest(t, "file", "kick.mp4", []byte("data")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrorResponse{Error: ErrNoVideo}, decodeError(t, rec))
	assert.Empty(t, ts.pipeline.videos)
}

func TestAnalyze_Success(t *testing.T) {
	ts := newTestServer(t)
	want := storedResult("sub-1", 72, time.Now().UTC())
	ts.pipeline.result = want

	rec := ts.do(uploadRequest(t, "video", "My Kick.MP4", []byte("fake video")))
	require.Equal(t, http.StatusOK, rec.Code)

	var got datastore.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "sub-1", got.ID)
	assert.InDelta(t, 72, got.Analysis.SpeedKmh, 0)

	require.Len(t, ts.pipeline.videos, 1)
	saved := ts.pipeline.videos[0]
	assert.Equal(t, ts.config.UploadsDir, filepath.Dir(saved))
	assert.Equal(t, ".mp4", filepath.Ext(saved))

	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, "fake video", string(data))
}

func TestAnalyze_PipelineFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorResponse
	}{
		{
			name: "no frames",
			err:  &pipeline.Error{Kind: pipeline.KindNoFrames, Step: pipeline.StepSampleFrames, Err: errors.NewStd("no frames extracted from video")},
			want: ErrorResponse{Error: ErrNoFrames},
		},
		{
			name: "merge failed",
			err:  &pipeline.Error{Kind: pipeline.KindProcessingFailed, Step: pipeline.StepMerge, Err: errors.NewStd("ffmpeg exited with status 1")},
			want: ErrorResponse{Error: ErrProcessingFailed, Message: "ffmpeg exited with status 1"},
		},
		{
			name: "could not start",
			err:  errors.NewStd("context deadline exceeded"),
			want: ErrorResponse{Error: ErrProcessingFailed, Message: "context deadline exceeded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.pipeline.err = tt.err

			rec := ts.do(uploadRequest(t, "video", "kick.mp4", []byte("x")))
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, tt.want, decodeError(t, rec))
		})
	}
}

func TestAnalyze_BodyLimit(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.UploadLimit = "1KB" })

	rec := ts.do(uploadRequest(t, "video", "kick.mp4", bytes.Repeat([]byte("a"), 4096)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, ts.pipeline.videos)
}

func TestGetResult_WithRankings(t *testing.T) {
	ts := newTestServer(t)
	now := time.Now().UTC()

	for id, speed := range map[string]float64{"a": 30, "b": 25, "c": 20, "d": 15, "e": 10} {
		require.NoError(t, ts.store.Put(storedResult(id, speed, now)))
	}
	// another day never counts
	require.NoError(t, ts.store.Put(storedResult("old", 99, now.Add(-48*time.Hour))))

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/result/b", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ResultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.AnalysisResult)
	assert.Equal(t, "b", resp.ID)

	r := resp.Rankings
	require.NotNil(t, r)
	assert.Equal(t, datastore.DateKey(now), r.Date)
	assert.Equal(t, 5, r.TotalToday)
	assert.InDelta(t, 25, r.MySpeedKmh, 0)
	require.NotNil(t, r.MyRank)
	assert.Equal(t, 2, *r.MyRank)

	require.Len(t, r.Top, 5)
	for i, wantID := range []string{"a", "b", "c", "d", "e"} {
		assert.Equal(t, wantID, r.Top[i].ID)
		require.NotNil(t, r.Top[i].Rank)
		assert.Equal(t, i+1, *r.Top[i].Rank)
		assert.Equal(t, wantID == "b", r.Top[i].IsYou)
	}
}

func TestGetResult_RankingsOmittedWhenEmpty(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.Put(storedResult("zero", 0, time.Now().UTC())))

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/result/zero", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "zero", raw["id"])
	assert.NotContains(t, raw, "rankings")
}

func TestGetResult_Errors(t *testing.T) {
	ts := newTestServer(t)

	corruptDir := filepath.Join(ts.store.Root(), "broken")
	require.NoError(t, os.MkdirAll(corruptDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corruptDir, datastore.RecordFileName), []byte("{not json"), 0o600))

	tests := []struct {
		path   string
		status int
		code   string
	}{
		{"/api/result/missing", http.StatusNotFound, ErrNotFound},
		{"/api/result/bad.id", http.StatusNotFound, ErrNotFound},
		{"/api/result/broken", http.StatusInternalServerError, ErrReadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := ts.do(httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Error)
		})
	}
}

func TestStaticPublicFiles(t *testing.T) {
	ts := newTestServer(t)
	videos := filepath.Join(ts.config.PublicDir, "videos")
	require.NoError(t, os.MkdirAll(videos, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(videos, "pub-1.mp4"), []byte("mp4 bytes"), 0o600))

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/videos/pub-1.mp4", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mp4 bytes", rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
}

func TestMetricsEndpoint(t *testing.T) {
	m, err := observability.NewMetrics()
	require.NoError(t, err)

	root := t.TempDir()
	store, err := datastore.NewFileStore(filepath.Join(root, "outputs"), 0)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.UploadsDir = filepath.Join(root, "uploads")
	cfg.PublicDir = filepath.Join(root, "public")
	cfg.MetricsEnabled = true

	srv, err := New(cfg, WithPipeline(&fakePipeline{}), WithResults(store), WithMetrics(m))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/result/nope", http.NoBody))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/api/result/:id",status_code="404"} 1`)
}

func TestListen_FallsBackToNextPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	busyPort := busy.Addr().(*net.TCPAddr).Port

	ln, port, err := Listen("127.0.0.1", busyPort, 10)
	require.NoError(t, err)
	defer ln.Close()

	assert.Greater(t, port, busyPort)
	assert.LessOrEqual(t, port, busyPort+10)
	assert.Equal(t, strconv.Itoa(port), ln.Addr().String()[strings.LastIndex(ln.Addr().String(), ":")+1:])
}

func TestListen_NoRetries(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	_, _, err = Listen("127.0.0.1", busy.Addr().(*net.TCPAddr).Port, 0)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategorySystem))
}

func TestListen_StopsAtHighestPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:65535")
	if err != nil {
		t.Skipf("port 65535 unavailable: %v", err)
	}
	defer busy.Close()

	_, _, err = Listen("127.0.0.1", 65535, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, syscall.EADDRINUSE), "last attempt must be the busy port, got %v", err)
}

func TestListen_PortOutOfRange(t *testing.T) {
	_, _, err := Listen("127.0.0.1", 70000, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	ln, _, err := Listen("127.0.0.1", 0, 0)
	require.NoError(t, err)

	root := t.TempDir()
	store, err := datastore.NewFileStore(filepath.Join(root, "outputs"), 0)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.UploadsDir = filepath.Join(root, "uploads")
	cfg.PublicDir = filepath.Join(root, "public")

	srv, err := New(cfg, WithPipeline(&fakePipeline{}), WithResults(store), WithListener(ln))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	client := &http.Client{Timeout: 2 * time.Second}
	url := "http://" + srv.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := client.Get(url)
		if err != nil {
			return false
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, testutil.WaitFor(t, done, testutil.DefaultTestTimeout, "server did not shut down"))
	client.CloseIdleConnections()
}
