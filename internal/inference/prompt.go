package inference

const systemPrompt = "You are a football video analysis assistant. From multiple consecutive frames, " +
	"identify the ball position and displacement per frame, estimate shot speed (m/s), estimate " +
	"contact force at impact (N), and assess whether the shooting posture is standard, returning a " +
	"0-100 score with notes. Assume ball mass 0.45 kg, contact time 0.012 s, ball diameter 0.22 m " +
	"for pixel calibration. Return JSON only, no explanation."

const userPrompt = "These are consecutive frames extracted from a video. Analyze and return JSON with schema: " +
	`{"schema":{"speed_mps":number,"speed_kmh":number,"contact_force_N":number,` +
	`"posture_score":number,"posture_notes":string,"confidence":number}}`

// chat completion request payload
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentPart
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}
