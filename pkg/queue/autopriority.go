package queue

import "time"

// autoPriorityThresholds maps a downloaded fraction to the priority an
// AutoPriority item should carry. Items closer to completion are pushed
// ahead of freshly added ones so bundles finish one at a time instead of
// everything crawling forward together.
var autoPriorityThresholds = []struct {
	fraction float64
	priority Priority
}{
	{0.95, PriorityHighest},
	{0.75, PriorityHigh},
	{0.40, PriorityNormal},
	{0.0, PriorityLow},
}

// progressPriority returns the priority an AutoPriority item should carry
// given its current downloaded fraction.
func progressPriority(fraction float64) Priority {
	for _, step := range autoPriorityThresholds {
		if fraction >= step.fraction {
			return step.priority
		}
	}
	return PriorityLow
}

// bundleScore combines a bundle's current transfer speed and online
// source count into a single 0-100 value used to rank AutoPriority
// bundles against each other.
func bundleScore(currentSpeedBytesPS float64, onlineSources int) float64 {
	const maxSpeed = 10 * 1024 * 1024 // 10 MiB/s treated as "maxed out"
	const maxSources = 20

	speedScore := currentSpeedBytesPS / maxSpeed
	if speedScore > 1 {
		speedScore = 1
	}
	sourceScore := float64(onlineSources) / maxSources
	if sourceScore > 1 {
		sourceScore = 1
	}
	return (speedScore*0.6 + sourceScore*0.4) * 100
}

// balancedBundlePriority buckets a bundle score into one of three tiers.
// Bundles landing in the same tier are left in their relative order by
// the caller rather than further distinguished here.
func balancedBundlePriority(score float64) Priority {
	switch {
	case score >= 66:
		return PriorityHigh
	case score >= 33:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// RunAutoPriority recomputes AutoPriority items' and bundles' priorities.
// It is wired to the minute tick of the timer service.
func (e *Engine) RunAutoPriority(now time.Time) {
	e.mu.RLock()
	bundles := make([]*Bundle, 0, len(e.bundles))
	for _, b := range e.bundles {
		bundles = append(bundles, b)
	}
	e.mu.RUnlock()

	for _, b := range bundles {
		if !b.AutoPriority {
			continue
		}
		onlineSources := 0
		items := b.Items()
		for _, item := range items {
			if !item.AutoPriority {
				continue
			}
			item.SetPriority(progressPriority(item.Progress()))
			onlineSources += len(item.GoodSources())
		}
		if len(items) == 0 {
			continue
		}
		speed := estimateBundleSpeed(b)
		score := bundleScore(speed, onlineSources)
		b.SetPriority(balancedBundlePriority(score))
	}
}

// estimateBundleSpeed is a placeholder for the throughput figure a real
// connection manager would report; until that wiring exists it derives a
// rough proxy from how close the bundle is to completion so the scoring
// function has a non-degenerate input to work with.
func estimateBundleSpeed(b *Bundle) float64 {
	items := b.Items()
	if len(items) == 0 {
		return 0
	}
	var total float64
	for _, item := range items {
		total += item.Progress()
	}
	return (total / float64(len(items))) * 1024 * 1024
}
