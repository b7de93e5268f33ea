package errors

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

var (
	telemetryReporter TelemetryReporter
	reporterMu        sync.RWMutex
)

// SetTelemetryReporter installs the global reporter; nil disables reporting
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	telemetryReporter = reporter
}

func reportToTelemetry(ee *EnhancedError) {
	reporterMu.RLock()
	reporter := telemetryReporter
	reporterMu.RUnlock()

	if reporter == nil || !reporter.IsEnabled() {
		return
	}
	// Expected conditions are not worth an event.
	if ee.Category == CategoryNotFound || ee.Category == CategoryValidation {
		return
	}
	reporter.ReportError(ee)
}

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError sends a scrubbed event to Sentry
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	message := scrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	title := fmt.Sprintf("%s %s", ee.Component, ee.Category)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))

		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}

		level := levelForCategory(ee.Category)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{title})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

// InitSentry initializes the Sentry SDK and installs a SentryReporter
func InitSentry(dsn, release, environment string) error {
	if dsn == "" {
		return ValidationError("sentry DSN is required when telemetry is enabled")
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		Environment:      environment,
		AttachStacktrace: true,
	}); err != nil {
		return New(err).
			Component("telemetry").
			Category(CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	SetTelemetryReporter(NewSentryReporter(true))
	return nil
}

// FlushTelemetry waits up to timeout for queued Sentry events
func FlushTelemetry(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

func levelForCategory(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryConfiguration, CategorySystem, CategoryStorage:
		return sentry.LevelError
	case CategoryInference, CategoryNetwork, CategoryTimeout, CategoryMQTTConnection, CategoryMQTTPublish:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

var scrubPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)\S+`),
	regexp.MustCompile(`(?i)((?:api[_-]?key|token|secret|password)=)[^&\s]+`),
	regexp.MustCompile(`(sk-or-v1-)[A-Za-z0-9]+`),
}

// scrubMessage removes credentials before anything leaves the process
func scrubMessage(message string) string {
	for _, p := range scrubPatterns {
		message = p.ReplaceAllString(message, "${1}[REDACTED]")
	}
	return message
}
