package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/kickspeed/kickspeed/internal/conf"
	"github.com/kickspeed/kickspeed/internal/datastore"
	"github.com/kickspeed/kickspeed/internal/errors"
)

// FramePattern is the file name pattern of sampled frames
const FramePattern = "frame_%03d.png"

const (
	outputFPS      = 30
	posterColor    = "0x0b1d2a"
	compareColor   = "0x101010"
	defaultWidth   = 1080
	defaultHeight  = 1920
	defaultIntro   = 3.0
	defaultCompare = 6.0
)

// Reference holds the fixed physical reference speeds drawn on the poster and clip
type Reference struct {
	SoundMps   float64
	BulletMps  float64
	CheetahMps float64
}

// DefaultReference returns sound 343, bullet 400 and cheetah 29 m/s
func DefaultReference() Reference {
	return Reference{SoundMps: 343, BulletMps: 400, CheetahMps: 29}
}

// Composer builds pipeline media with a Runner
type Composer struct {
	runner   Runner
	settings conf.MediaSettings
}

// NewComposer creates a Composer. Zero settings fall back to defaults.
func NewComposer(runner Runner, settings *conf.MediaSettings) *Composer {
	s := *settings
	if s.Width <= 0 {
		s.Width = defaultWidth
	}
	if s.Height <= 0 {
		s.Height = defaultHeight
	}
	if s.FrameRate <= 0 {
		s.FrameRate = 8
	}
	if s.FrameWidth <= 0 {
		s.FrameWidth = 640
	}
	if s.MaxFrames <= 0 {
		s.MaxFrames = 24
	}
	if s.IntroSeconds <= 0 {
		s.IntroSeconds = defaultIntro
	}
	if s.CompareSeconds <= 0 {
		s.CompareSeconds = defaultCompare
	}
	return &Composer{runner: runner, settings: s}
}

// SampleFrames extracts frames from video into outDir and returns their paths in order.
// An empty result without error means the video produced no frames.
func (c *Composer) SampleFrames(ctx context.Context, video, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.FileError(err, outDir)
	}

	filter := fmt.Sprintf("fps=%s,scale=%d:-2", formatFloat(c.settings.FrameRate), c.settings.FrameWidth)
	err := c.runner.Run(ctx,
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", video,
		"-vf", filter,
		"-frames:v", strconv.Itoa(c.settings.MaxFrames),
		filepath.Join(outDir, FramePattern),
	)
	if err != nil {
		return nil, err
	}

	frames, err := filepath.Glob(filepath.Join(outDir, "*.png"))
	if err != nil {
		return nil, errors.FileError(err, outDir)
	}
	slices.Sort(frames)
	return frames, nil
}

// Poster renders the summary still image
func (c *Composer) Poster(ctx context.Context, analysis *datastore.Analysis, ref Reference, outPath string) error {
	lines := []string{
		fmt.Sprintf("%.1f km/h", analysis.SpeedKmh),
		fmt.Sprintf("%.1f m/s", analysis.SpeedMps),
		fmt.Sprintf("Contact force %.0f N", analysis.ContactForceN),
		fmt.Sprintf("Posture %.0f/100", analysis.PostureScore),
		fmt.Sprintf("Confidence %.0f%%", analysis.Confidence*100),
		fmt.Sprintf("Sound %.0f m/s  (%.1f%%)", ref.SoundMps, percentOf(analysis.SpeedMps, ref.SoundMps)),
		fmt.Sprintf("Bullet %.0f m/s  (%.1f%%)", ref.BulletMps, percentOf(analysis.SpeedMps, ref.BulletMps)),
		fmt.Sprintf("Cheetah %.0f m/s  (%.1f%%)", ref.CheetahMps, percentOf(analysis.SpeedMps, ref.CheetahMps)),
	}
	if notes := strings.TrimSpace(analysis.PostureNotes); notes != "" {
		lines = append(lines, truncate(notes, 48))
	}

	filters := make([]string, 0, len(lines))
	y := c.settings.Height / 6
	for i, line := range lines {
		size := 52
		if i == 0 {
			size = 140
		}
		filters = append(filters, c.drawText(line, size, "white", "(w-text_w)/2", strconv.Itoa(y), ""))
		y += size + 48
	}

	return c.runner.Run(ctx,
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi",
		"-i", c.colorSource(posterColor, 1),
		"-vf", strings.Join(filters, ","),
		"-frames:v", "1",
		outPath,
	)
}

// bar is one row of the animated comparison
type bar struct {
	label string
	mps   float64
	color string
}

// CompareClip renders the animated comparison whose bars appear one after another:
// the kick, then cheetah, sound and bullet. Bar width is proportional to speed.
func (c *Composer) CompareClip(ctx context.Context, analysis *datastore.Analysis, ref Reference, outPath string) error {
	bars := []bar{
		{label: "You", mps: analysis.SpeedMps, color: "0x2ecc71"},
		{label: "Cheetah", mps: ref.CheetahMps, color: "0xf1c40f"},
		{label: "Sound", mps: ref.SoundMps, color: "0x3498db"},
		{label: "Bullet", mps: ref.BulletMps, color: "0xe74c3c"},
	}

	maxMps := 0.0
	for _, b := range bars {
		maxMps = max(maxMps, b.mps)
	}

	margin := c.settings.Width / 12
	track := c.settings.Width - 2*margin
	rowHeight := 90
	step := c.settings.CompareSeconds / float64(len(bars)+1)

	filters := []string{c.drawText("How fast was your kick?", 64, "white", "(w-text_w)/2", strconv.Itoa(c.settings.Height/8), "")}
	y := c.settings.Height / 4
	for i, b := range bars {
		width := 8
		if maxMps > 0 {
			width = max(8, int(float64(track)*b.mps/maxMps))
		}
		enable := fmt.Sprintf("gte(t,%s)", formatFloat(step*float64(i)))
		filters = append(filters,
			c.drawText(fmt.Sprintf("%s  %.0f km/h", b.label, b.mps*3.6), 48, "white", strconv.Itoa(margin), strconv.Itoa(y), enable),
			fmt.Sprintf("drawbox=x=%d:y=%d:w=%d:h=%d:color=%s:t=fill:enable='%s'", margin, y+64, width, rowHeight, b.color, enable),
		)
		y += rowHeight + 160
	}

	return c.runner.Run(ctx,
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi",
		"-i", c.colorSource(compareColor, c.settings.CompareSeconds),
		"-vf", strings.Join(filters, ","),
		"-r", strconv.Itoa(outputFPS),
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		outPath,
	)
}

// Merge concatenates the intro still, the original video and the comparison clip
// into one portrait video without audio
func (c *Composer) Merge(ctx context.Context, video, introImage, overlayVideo, outPath string) error {
	norm := fmt.Sprintf("scale=%[1]d:%[2]d:force_original_aspect_ratio=decrease,pad=%[1]d:%[2]d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%[3]d,format=yuv420p",
		c.settings.Width, c.settings.Height, outputFPS)
	graph := fmt.Sprintf("[0:v]%[1]s[v0];[1:v]%[1]s[v1];[2:v]%[1]s[v2];[v0][v1][v2]concat=n=3:v=1:a=0[out]", norm)

	return c.runner.Run(ctx,
		"-hide_banner", "-loglevel", "error", "-y",
		"-loop", "1", "-t", formatFloat(c.settings.IntroSeconds), "-i", introImage,
		"-i", video,
		"-i", overlayVideo,
		"-filter_complex", graph,
		"-map", "[out]",
		"-an",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		outPath,
	)
}

func (c *Composer) colorSource(color string, seconds float64) string {
	return fmt.Sprintf("color=c=%s:s=%dx%d:d=%s", color, c.settings.Width, c.settings.Height, formatFloat(seconds))
}

// drawText builds a drawtext filter. enable is an optional timeline expression.
func (c *Composer) drawText(text string, size int, color, x, y, enable string) string {
	var b strings.Builder
	b.WriteString("drawtext=")
	if c.settings.FontFile != "" {
		fmt.Fprintf(&b, "fontfile='%s':", escapeText(c.settings.FontFile))
	}
	fmt.Fprintf(&b, "expansion=none:text='%s':fontsize=%d:fontcolor=%s:x=%s:y=%s", escapeText(text), size, color, x, y)
	if enable != "" {
		fmt.Fprintf(&b, ":enable='%s'", enable)
	}
	return b.String()
}

// escapeText makes text safe inside a single quoted filter option value
func escapeText(s string) string {
	r := strings.NewReplacer(
		`\`, "",
		"'", "’",
		"\n", " ",
	)
	return r.Replace(s)
}

func percentOf(v, of float64) float64 {
	if of <= 0 {
		return 0
	}
	return v / of * 100
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
