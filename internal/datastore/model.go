package datastore

import (
	"regexp"
	"slices"
	"time"
)

// Comparison is a labeled reference speed shown next to a kick
type Comparison struct {
	Label    string  `json:"label"`
	SpeedKmh float64 `json:"speed_kmh"`
}

// Analysis is the structured estimate for one kick
type Analysis struct {
	SpeedMps      float64      `json:"speed_mps"`
	SpeedKmh      float64      `json:"speed_kmh"`
	ContactForceN float64      `json:"contact_force_N"`
	PostureScore  float64      `json:"posture_score"`
	PostureNotes  string       `json:"posture_notes"`
	Confidence    float64      `json:"confidence"`
	Comparisons   []Comparison `json:"comparisons,omitempty"`
}

// AnalysisResult is the persisted record of one submission
type AnalysisResult struct {
	ID          string    `json:"id"`
	Analysis    Analysis  `json:"analysis"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	VideoURL    string    `json:"video_url"`
	QRImagePath string    `json:"qr_image_path"`
	QRURL       string    `json:"qr_url"`
}

// Clone returns a deep copy of the record
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Analysis.Comparisons = slices.Clone(r.Analysis.Comparisons)
	return &c
}

// DateKey returns the UTC calendar day of t as YYYY-MM-DD, or "" for the zero time
func DateKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]{0,127}$`)

// ValidID reports whether id is safe to use as a directory name
func ValidID(id string) bool {
	return validID.MatchString(id)
}
