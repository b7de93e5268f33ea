package media

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kickspeed/kickspeed/internal/conf"
	"github.com/kickspeed/kickspeed/internal/datastore"
	"github.com/kickspeed/kickspeed/internal/errors"
)

// fakeRunner records invocations and writes placeholder outputs
type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	frames int
	err    error
}

func (f *fakeRunner) Run(_ context.Context, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args)
	if f.err != nil {
		return f.err
	}

	out := args[len(args)-1]
	if strings.Contains(out, "%03d") {
		for i := 1; i <= f.frames; i++ {
			if err := os.WriteFile(fmt.Sprintf(out, i), []byte("png"), 0o600); err != nil {
				return err
			}
		}
		return nil
	}
	return os.WriteFile(out, []byte("media"), 0o600)
}

func (f *fakeRunner) lastArgs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func sampleAnalysis() *datastore.Analysis {
	return &datastore.Analysis{
		SpeedMps:      25,
		SpeedKmh:      90,
		ContactForceN: 900,
		PostureScore:  70,
		PostureNotes:  "Don't lean back: keep the knee over the ball",
		Confidence:    0.3,
	}
}

func TestSampleFrames(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{frames: 5}
	c := NewComposer(runner, &conf.MediaSettings{FrameRate: 8, FrameWidth: 640, MaxFrames: 24})
	outDir := filepath.Join(t.TempDir(), "frames")

	frames, err := c.SampleFrames(t.Context(), "/in/kick.mp4", outDir)
	require.NoError(t, err)
	require.Len(t, frames, 5)
	assert.Equal(t, filepath.Join(outDir, "frame_001.png"), frames[0])
	assert.Equal(t, filepath.Join(outDir, "frame_005.png"), frames[4])

	args := runner.lastArgs()
	assert.Equal(t, "/in/kick.mp4", argAfter(args, "-i"))
	assert.Equal(t, "fps=8,scale=640:-2", argAfter(args, "-vf"))
	assert.Equal(t, "24", argAfter(args, "-frames:v"))
}

func TestSampleFrames_NoFrames(t *testing.T) {
	t.Parallel()

	c := NewComposer(&fakeRunner{}, &conf.MediaSettings{})
	frames, err := c.SampleFrames(t.Context(), "/in/empty.mp4", t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestSampleFrames_RunnerError(t *testing.T) {
	t.Parallel()

	c := NewComposer(&fakeRunner{err: fmt.Errorf("invalid data found when processing input")}, &conf.MediaSettings{})
	_, err := c.SampleFrames(t.Context(), "/in/bad.mp4", t.TempDir())
	require.Error(t, err)
}

func TestPoster(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	c := NewComposer(runner, &conf.MediaSettings{FontFile: "/fonts/Inter.ttf"})
	out := filepath.Join(t.TempDir(), "poster.png")

	require.NoError(t, c.Poster(t.Context(), sampleAnalysis(), DefaultReference(), out))
	assert.FileExists(t, out)

	args := runner.lastArgs()
	assert.Equal(t, "lavfi", argAfter(args, "-f"))
	assert.Equal(t, "color=c=0x0b1d2a:s=1080x1920:d=1", argAfter(args, "-i"))

	vf := argAfter(args, "-vf")
	assert.Contains(t, vf, "text='90.0 km/h'")
	assert.Contains(t, vf, "Sound 343 m/s")
	assert.Contains(t, vf, "Bullet 400 m/s")
	assert.Contains(t, vf, "Cheetah 29 m/s")
	assert.Contains(t, vf, "fontfile='/fonts/Inter.ttf'")
	assert.Contains(t, vf, "Don’t lean back")
	assert.NotContains(t, vf, "Don't")
}

func TestCompareClip(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	c := NewComposer(runner, &conf.MediaSettings{CompareSeconds: 5})
	out := filepath.Join(t.TempDir(), "overlay.mp4")

	require.NoError(t, c.CompareClip(t.Context(), sampleAnalysis(), DefaultReference(), out))

	args := runner.lastArgs()
	assert.Equal(t, "color=c=0x101010:s=1080x1920:d=5", argAfter(args, "-i"))
	assert.Equal(t, "libx264", argAfter(args, "-c:v"))

	vf := argAfter(args, "-vf")
	assert.Equal(t, 4, strings.Count(vf, "drawbox="))
	assert.Contains(t, vf, "enable='gte(t,0)'")
	assert.Contains(t, vf, "enable='gte(t,3)'")

	// bullet is the widest bar and spans the whole track
	assert.Contains(t, vf, "w=900:h=90:color=0xe74c3c")
	assert.Less(t, strings.Index(vf, "You "), strings.Index(vf, "Cheetah "))
	assert.Less(t, strings.Index(vf, "Sound "), strings.Index(vf, "Bullet "))
}

func TestMerge(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	c := NewComposer(runner, &conf.MediaSettings{IntroSeconds: 2.5})
	out := filepath.Join(t.TempDir(), "output.mp4")

	require.NoError(t, c.Merge(t.Context(), "/in/kick.mp4", "/w/poster.png", "/w/overlay.mp4", out))

	args := runner.lastArgs()
	assert.Equal(t, "2.5", argAfter(args, "-t"))
	assert.Equal(t, "[out]", argAfter(args, "-map"))
	assert.Contains(t, args, "-an")
	assert.Contains(t, argAfter(args, "-filter_complex"), "concat=n=3:v=1:a=0[out]")

	var inputs []string
	for i, a := range args {
		if a == "-i" {
			inputs = append(inputs, args[i+1])
		}
	}
	assert.Equal(t, []string{"/w/poster.png", "/in/kick.mp4", "/w/overlay.mp4"}, inputs)
}

func TestEscapeText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "it’s 90 km/h", escapeText("it's 90 km/h"))
	assert.Equal(t, "a b", escapeText("a\nb"))
	assert.Equal(t, "path", escapeText(`pa\th`))
}

func TestFFmpegRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	t.Parallel()

	t.Run("captures stderr on failure", func(t *testing.T) {
		t.Parallel()
		r := NewFFmpeg("sh", time.Second)
		err := r.Run(t.Context(), "-c", "echo 'moov atom not found' >&2; exit 1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "moov atom not found")
		assert.True(t, errors.IsCategory(err, errors.CategoryMedia))
	})

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		r := NewFFmpeg("sh", time.Second)
		require.NoError(t, r.Run(t.Context(), "-c", "exit 0"))
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()
		r := NewFFmpeg("sh", 50*time.Millisecond)
		start := time.Now()
		err := r.Run(t.Context(), "-c", "exec sleep 5")
		require.Error(t, err)
		assert.Less(t, time.Since(start), 3*time.Second)
	})

	t.Run("missing binary", func(t *testing.T) {
		t.Parallel()
		r := NewFFmpeg(filepath.Join(t.TempDir(), "no-ffmpeg"), time.Second)
		require.Error(t, r.Run(t.Context(), "-version"))
	})
}

func TestWriteQR(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "qr.png")
	require.NoError(t, WriteQR("http://localhost:3000/videos/abc.mp4", out, 0))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, DefaultQRSize, img.Bounds().Dx())
	assert.Equal(t, DefaultQRSize, img.Bounds().Dy())

	require.Error(t, WriteQR("", out, 0))
}
