// Package metrics provides the Prometheus collectors used across kickspeed.
package metrics

// Histogram bucket parameters
const (
	BucketStart1ms   = 0.001
	BucketStart100ms = 0.1
	BucketStart100B  = 100
	BucketStart64B   = 64
	BucketFactor2    = 2
	BucketFactor10   = 10
	BucketCount6     = 6
	BucketCount10    = 10
	BucketCount12    = 12
)

// Run outcome label values
const (
	StatusSuccess          = "success"
	StatusNoFrames         = "no_frames"
	StatusProcessingFailed = "processing_failed"
)
