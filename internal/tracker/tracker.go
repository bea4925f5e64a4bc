// Package tracker converts cumulative per-client byte counters into
// instantaneous throughput. One Tracker exists per monitored server and is
// only ever touched from that server's poll loop.
package tracker

import (
	"time"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/status"
)

const (
	DefaultRetention = time.Hour
	DefaultRateFloor = 0.0
)

// Sample is one computed throughput measurement. Rates are never below the
// configured floor. CounterReset marks samples produced through the
// counter-reset fallback so the caller can log the event.
type Sample struct {
	ClientID       string
	IPAddress      string
	BytesInPerSec  float64
	BytesOutPerSec float64
	CounterReset   bool
}

type historyEntry struct {
	bytesIn    uint64
	bytesOut   uint64
	observedAt time.Time
	ipAddress  string
}

// Tracker keeps the last observed counters per client. It is a pure function
// of its inputs and internal state: the caller supplies the clock, nothing
// blocks, and no anomaly is ever fatal.
type Tracker struct {
	retention time.Duration
	floor     float64
	history   map[string]historyEntry
}

func New(retention time.Duration, floor float64) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if floor < 0 {
		floor = DefaultRateFloor
	}
	return &Tracker{
		retention: retention,
		floor:     floor,
		history:   make(map[string]historyEntry),
	}
}

// Compute diffs records against the stored baselines and returns one sample
// per client for which a rate could be derived. Every record refreshes its
// client's baseline regardless of whether a sample is emitted. Records are
// processed in encounter order, so a duplicated client id within one snapshot
// leaves the last occurrence as the new baseline.
//
// Emission is suppressed when a client has no prior baseline or when the
// elapsed time since the baseline is not positive. When either counter moved
// backwards the daemon is assumed to have restarted and the raw current
// values stand in for the deltas.
//
// After all records are folded in, history entries unseen for longer than
// the retention window are evicted, including on cycles with zero records.
// Sample order is not guaranteed.
func (t *Tracker) Compute(records []status.ClientCounterRecord, now time.Time) []Sample {
	samples := make([]Sample, 0, len(records))

	for _, rec := range records {
		prior, seen := t.history[rec.ClientID]
		t.history[rec.ClientID] = historyEntry{
			bytesIn:    rec.BytesIn,
			bytesOut:   rec.BytesOut,
			observedAt: now,
			ipAddress:  rec.IPAddress,
		}

		if !seen {
			continue
		}

		elapsed := now.Sub(prior.observedAt).Seconds()
		if elapsed <= 0 {
			continue
		}

		reset := rec.BytesIn < prior.bytesIn || rec.BytesOut < prior.bytesOut

		var deltaIn, deltaOut uint64
		if reset {
			deltaIn = rec.BytesIn
			deltaOut = rec.BytesOut
		} else {
			deltaIn = rec.BytesIn - prior.bytesIn
			deltaOut = rec.BytesOut - prior.bytesOut
		}

		samples = append(samples, Sample{
			ClientID:       rec.ClientID,
			IPAddress:      rec.IPAddress,
			BytesInPerSec:  t.clamp(float64(deltaIn) / elapsed),
			BytesOutPerSec: t.clamp(float64(deltaOut) / elapsed),
			CounterReset:   reset,
		})
	}

	t.evict(now)

	return samples
}

// Size reports the number of clients currently held in history.
func (t *Tracker) Size() int {
	return len(t.history)
}

// Reset clears all history. Used when a server's monitoring session is torn
// down and re-initialized.
func (t *Tracker) Reset() {
	t.history = make(map[string]historyEntry)
}

func (t *Tracker) clamp(rate float64) float64 {
	if rate < t.floor {
		return t.floor
	}
	return rate
}

func (t *Tracker) evict(now time.Time) {
	cutoff := now.Add(-t.retention)
	for id, entry := range t.history {
		if entry.observedAt.Before(cutoff) {
			delete(t.history, id)
		}
	}
}
