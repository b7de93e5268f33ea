package notification

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

type fakeProvider struct {
	mu      sync.Mutex
	enabled bool
	sent    []*Notification
	err     error
}

func (f *fakeProvider) GetName() string        { return "fake" }
func (f *fakeProvider) IsEnabled() bool        { return f.enabled }
func (f *fakeProvider) SupportsType(Type) bool { return true }
func (f *fakeProvider) ValidateConfig() error  { return nil }

func (f *fakeProvider) Send(_ context.Context, n *Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.err
}

func (f *fakeProvider) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestAlerter_DeliversFailure(t *testing.T) {
	fp := &fakeProvider{enabled: true}
	a := NewAlerter(fp, time.Minute, time.Second)

	require.True(t, a.PipelineFailed("abc", "processing_failed", "merge", "merge failed"))
	a.Close()

	require.Equal(t, 1, fp.count())
	assert.Equal(t, TypeError, fp.sent[0].Type)
	assert.Contains(t, fp.sent[0].Message, "abc")
	assert.Contains(t, fp.sent[0].Message, "merge failed")
	assert.Contains(t, fp.sent[0].Message, "at merge")
}

func TestAlerter_Deduplicates(t *testing.T) {
	fp := &fakeProvider{enabled: true}
	a := NewAlerter(fp, time.Minute, time.Second)

	assert.True(t, a.PipelineFailed("a", "no_frames", "sample", "no frames"))
	assert.False(t, a.PipelineFailed("b", "no_frames", "sample", "no frames"))
	assert.True(t, a.PipelineFailed("c", "processing_failed", "qr", "qr failed"))
	a.Close()

	assert.Equal(t, 2, fp.count())
}

func TestAlerter_DeduplicatesAcrossRunPaths(t *testing.T) {
	fp := &fakeProvider{enabled: true}
	a := NewAlerter(fp, time.Minute, time.Second)

	assert.True(t, a.PipelineFailed("a", "processing_failed", "merge",
		"ffmpeg: /srv/outputs/a/intro.png: No such file or directory"))
	assert.False(t, a.PipelineFailed("b", "processing_failed", "merge",
		"ffmpeg: /srv/outputs/b/intro.png: No such file or directory"))
	assert.True(t, a.PipelineFailed("c", "processing_failed", "compare",
		"ffmpeg: /srv/outputs/c/compare.mp4: Permission denied"))
	a.Close()

	assert.Equal(t, 2, fp.count())
}

func TestAlerter_RateLimited(t *testing.T) {
	fp := &fakeProvider{enabled: true}
	a := NewAlerter(fp, time.Minute, time.Second)

	queued := 0
	for i := range alertsPerMinute * 2 {
		if a.PipelineFailed("id", "processing_failed", fmt.Sprintf("step-%d", i), "error") {
			queued++
		}
	}
	a.Close()

	assert.Equal(t, alertsPerMinute, queued)
	assert.Equal(t, alertsPerMinute, fp.count())
}

func TestAlerter_DisabledProvider(t *testing.T) {
	fp := &fakeProvider{enabled: false}
	a := NewAlerter(fp, time.Minute, time.Second)

	assert.False(t, a.PipelineFailed("a", "no_frames", "sample", "x"))
	a.Close()
	assert.Zero(t, fp.count())

	assert.False(t, NewAlerter(nil, 0, 0).PipelineFailed("a", "no_frames", "sample", "x"))
}

func TestAlerter_SendErrorIsSwallowed(t *testing.T) {
	fp := &fakeProvider{enabled: true, err: fmt.Errorf("service unavailable")}
	a := NewAlerter(fp, time.Minute, time.Second)

	assert.True(t, a.PipelineFailed("a", "processing_failed", "merge", "x"))
	a.Close()
	assert.Equal(t, 1, fp.count())
}
