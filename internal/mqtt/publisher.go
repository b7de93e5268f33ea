package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kickspeed/kickspeed/internal/datastore"
	"github.com/kickspeed/kickspeed/internal/errors"
)

// ResultEvent is the payload published for each completed analysis
type ResultEvent struct {
	ID         string    `json:"id"`
	SpeedKmh   float64   `json:"speed_kmh"`
	SpeedMps   float64   `json:"speed_mps"`
	Posture    float64   `json:"posture_score"`
	Confidence float64   `json:"confidence"`
	VideoURL   string    `json:"video_url"`
	QRURL      string    `json:"qr_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// Publisher sends result events on the configured topic
type Publisher struct {
	client Client
	topic  string
}

// NewPublisher creates a Publisher. An empty topic uses the client's default.
func NewPublisher(c Client, topic string) *Publisher {
	return &Publisher{client: c, topic: topic}
}

// PublishResult publishes the event for result
func (p *Publisher) PublishResult(ctx context.Context, result *datastore.AnalysisResult) error {
	payload, err := json.Marshal(NewResultEvent(result))
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "marshal_result_event").
			Build()
	}
	return p.client.Publish(ctx, p.topic, payload)
}

// NewResultEvent builds the event for result
func NewResultEvent(result *datastore.AnalysisResult) ResultEvent {
	return ResultEvent{
		ID:         result.ID,
		SpeedKmh:   result.Analysis.SpeedKmh,
		SpeedMps:   result.Analysis.SpeedMps,
		Posture:    result.Analysis.PostureScore,
		Confidence: result.Analysis.Confidence,
		VideoURL:   result.VideoURL,
		QRURL:      result.QRURL,
		CreatedAt:  result.CreatedAt,
	}
}
