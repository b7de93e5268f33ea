// Package datastore provides error handling helpers for store operations
package datastore

import (
	"github.com/kickspeed/kickspeed/internal/errors"
)

// storeError creates a categorized store error with context pairs
func storeError(err error, category errors.ErrorCategory, operation string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(category).
		Context("operation", operation)

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}
