package arbitrage

import "sync"

// VolumeSpike reports a jump in 24h volume between two observations.
type VolumeSpike struct {
	Key      string  `json:"key"`
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
	Ratio    float64 `json:"ratio"`
}

// VolumeTracker remembers the last 24h volume seen per key.
type VolumeTracker struct {
	mu   sync.Mutex
	prev map[string]float64
}

// NewVolumeTracker returns an empty tracker.
func NewVolumeTracker() *VolumeTracker {
	return &VolumeTracker{prev: make(map[string]float64)}
}

// Observe records current for key and reports a spike when current exceeds
// threshold times the previous observation. The first observation of a key,
// a non-positive previous value and a zero threshold never spike.
func (t *VolumeTracker) Observe(key string, current, threshold float64) (VolumeSpike, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, seen := t.prev[key]
	t.prev[key] = current

	if !seen || prev <= 0 || threshold <= 0 {
		return VolumeSpike{}, false
	}
	ratio := current / prev
	if ratio <= threshold {
		return VolumeSpike{}, false
	}
	return VolumeSpike{Key: key, Previous: prev, Current: current, Ratio: ratio}, true
}
