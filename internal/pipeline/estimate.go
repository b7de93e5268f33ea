package pipeline

import (
	"math/rand/v2"

	"github.com/kickspeed/kickspeed/internal/datastore"
)

// ComparisonCount is the number of reference speeds attached to each analysis
const ComparisonCount = 4

// DefaultEstimate is substituted whenever inference fails
func DefaultEstimate() datastore.Analysis {
	return datastore.Analysis{
		SpeedMps:      25,
		SpeedKmh:      90,
		ContactForceN: 900,
		PostureScore:  70,
		PostureNotes:  "Default estimation",
		Confidence:    0.3,
	}
}

// ComparisonCandidates returns the fixed reference speeds comparisons are drawn from
func ComparisonCandidates() []datastore.Comparison {
	return []datastore.Comparison{
		{Label: "Usain Bolt", SpeedKmh: 44},
		{Label: "Pro Cyclist", SpeedKmh: 50},
		{Label: "Greyhound", SpeedKmh: 70},
		{Label: "Race Horse", SpeedKmh: 88},
		{Label: "Cheetah", SpeedKmh: 120},
		{Label: "Roberto Carlos Kick", SpeedKmh: 137},
		{Label: "Pro Tennis Serve", SpeedKmh: 200},
		{Label: "Peregrine Falcon", SpeedKmh: 390},
		{Label: "Sound", SpeedKmh: 1235},
	}
}

// SelectComparisons draws ComparisonCount distinct candidates uniformly without replacement
func SelectComparisons(rng *rand.Rand) []datastore.Comparison {
	candidates := ComparisonCandidates()
	perm := rng.Perm(len(candidates))

	selected := make([]datastore.Comparison, ComparisonCount)
	for i := range selected {
		selected[i] = candidates[perm[i]]
	}
	return selected
}
