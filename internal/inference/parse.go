package inference

import (
	"fmt"
	"math"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/kickspeed/kickspeed/internal/datastore"
)

const mpsToKmh = 3.6

// messageContent extracts choices[0].message.content from a chat completion body
func messageContent(body []byte) (string, error) {
	root, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return "", fmt.Errorf("response is not a JSON object: %w", err)
	}

	choices, err := root.GetObjectArray("choices")
	if err != nil || len(choices) == 0 {
		if msg, msgErr := root.GetString("error", "message"); msgErr == nil {
			return "", fmt.Errorf("model returned an error: %s", msg)
		}
		return "", fmt.Errorf("response has no choices")
	}

	content, err := choices[0].GetString("message", "content")
	if err != nil {
		return "", fmt.Errorf("response has no message content: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("response message content is empty")
	}
	return content, nil
}

// parseAnalysis decodes the model's JSON answer. The object may be wrapped in a
// markdown code fence or nested under a "schema" key.
func parseAnalysis(content string) (*datastore.Analysis, error) {
	payload := extractJSONObject(content)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object in model output")
	}

	obj, err := jason.NewObjectFromBytes([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("model output is not valid JSON: %w", err)
	}
	if nested, err := obj.GetObject("schema"); err == nil {
		obj = nested
	}

	kmh, hasKmh := lookupNumber(obj, "speed_kmh")
	mps, hasMps := lookupNumber(obj, "speed_mps")
	switch {
	case !hasKmh && hasMps:
		kmh = mps * mpsToKmh
	case !hasMps && hasKmh:
		mps = kmh / mpsToKmh
	}

	// Zero or negative speeds are kept: the model reports a failed estimate that way.
	a := &datastore.Analysis{
		SpeedMps:      mps,
		SpeedKmh:      kmh,
		ContactForceN: number(obj, "contact_force_N"),
		PostureScore:  number(obj, "posture_score"),
		Confidence:    number(obj, "confidence"),
	}
	a.PostureNotes, _ = obj.GetString("posture_notes")

	a.Confidence = math.Max(0, math.Min(1, a.Confidence))
	return a, nil
}

// extractJSONObject returns the outermost object in s, skipping any fence or
// prose around it. Content whose first JSON value is an array has no object.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	if arr := strings.IndexByte(s, '['); arr >= 0 && arr < start {
		return ""
	}
	return s[start : end+1]
}

// number reads a numeric field, or 0 when it is absent
func number(obj *jason.Object, key string) float64 {
	v, _ := lookupNumber(obj, key)
	return v
}

// lookupNumber reads a numeric field, accepting numbers encoded as strings.
// ok is false when the field is missing or not a number.
func lookupNumber(obj *jason.Object, key string) (v float64, ok bool) {
	if v, err := obj.GetFloat64(key); err == nil {
		return finite(v), true
	}
	if s, err := obj.GetString(key); err == nil {
		if _, scanErr := fmt.Sscan(strings.TrimSpace(s), &v); scanErr == nil {
			return finite(v), true
		}
	}
	return 0, false
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
