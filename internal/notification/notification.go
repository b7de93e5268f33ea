// Package notification sends operator alerts for failed pipeline runs
// through shoutrrr service URLs.
package notification

import (
	"context"

	"github.com/kickspeed/kickspeed/internal/logger"
)

// Type classifies a notification
type Type string

const (
	TypeError   Type = "error"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
)

// Notification is one message to deliver
type Notification struct {
	Type    Type
	Title   string
	Message string
}

// Provider delivers notifications to an external service
type Provider interface {
	GetName() string
	IsEnabled() bool
	SupportsType(t Type) bool
	ValidateConfig() error
	Send(ctx context.Context, n *Notification) error
}

// GetLogger returns the notification module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("notification")
}
