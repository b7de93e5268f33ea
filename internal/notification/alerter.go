package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/kickspeed/kickspeed/internal/logger"
)

const (
	// DefaultDedupWindow suppresses identical alerts
	DefaultDedupWindow = 10 * time.Minute

	defaultSendTimeout = 30 * time.Second
	alertsPerMinute    = 6
)

// Alerter delivers pipeline failure alerts in the background. Identical
// alerts within the dedup window are dropped and delivery is rate limited.
type Alerter struct {
	provider Provider
	dedup    *cache.Cache
	limiter  *rate.Limiter
	timeout  time.Duration
	wg       sync.WaitGroup
	log      logger.Logger
}

// NewAlerter creates an Alerter for provider
func NewAlerter(provider Provider, dedupWindow, sendTimeout time.Duration) *Alerter {
	if dedupWindow <= 0 {
		dedupWindow = DefaultDedupWindow
	}
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	return &Alerter{
		provider: provider,
		dedup:    cache.New(dedupWindow, 2*dedupWindow),
		limiter:  rate.NewLimiter(rate.Every(time.Minute/alertsPerMinute), alertsPerMinute),
		timeout:  sendTimeout,
		log:      GetLogger(),
	}
}

// PipelineFailed queues an alert for a run that failed at step. It reports
// whether the alert was queued. Messages carry per-run paths, so repeats are
// keyed on kind and step only.
func (a *Alerter) PipelineFailed(id, kind, step, message string) bool {
	n := &Notification{
		Type:    TypeError,
		Title:   "kickspeed: analysis failed",
		Message: fmt.Sprintf("Submission %s failed with %s at %s: %s", id, kind, step, message),
	}
	return a.enqueue(kind+"|"+step, n)
}

func (a *Alerter) enqueue(key string, n *Notification) bool {
	if a.provider == nil || !a.provider.IsEnabled() || !a.provider.SupportsType(n.Type) {
		return false
	}
	if err := a.dedup.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
		a.log.Debug("duplicate alert suppressed", logger.String("key", key))
		return false
	}
	if !a.limiter.Allow() {
		a.log.Warn("alert rate limit reached, dropping alert", logger.String("title", n.Title))
		return false
	}

	a.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.provider.Send(ctx, n); err != nil {
			a.log.Warn("failed to deliver alert",
				logger.String("provider", a.provider.GetName()),
				logger.Error(err))
		}
	})
	return true
}

// Close waits for queued alerts to finish
func (a *Alerter) Close() {
	a.wg.Wait()
}
