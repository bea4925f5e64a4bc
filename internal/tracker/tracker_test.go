package tracker

import (
	"testing"
	"time"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/status"
)

var baseTime = time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

func record(id string, in, out uint64) status.ClientCounterRecord {
	return status.ClientCounterRecord{
		ClientID:  id,
		IPAddress: "203.0.113.10",
		BytesIn:   in,
		BytesOut:  out,
	}
}

func TestCompute_FirstObservationEmitsNothing(t *testing.T) {
	t.Parallel()

	tr := New(time.Hour, 0)
	samples := tr.Compute([]status.ClientCounterRecord{record("alice", 1000, 2000)}, baseTime)

	if len(samples) != 0 {
		t.Fatalf("first observation must not emit, got %+v", samples)
	}
	if tr.Size() != 1 {
		t.Fatalf("expected baseline stored, size = %d", tr.Size())
	}
}

func TestCompute_RateFromCounterDelta(t *testing.T) {
	t.Parallel()

	tr := New(time.Hour, 0)
	tr.Compute([]status.ClientCounterRecord{record("alice", 1000, 500)}, baseTime)

	samples := tr.Compute([]status.ClientCounterRecord{record("alice", 1500, 1500)}, baseTime.Add(5*time.Second))
	if len(samples) != 1 {
		t.Fatalf("expected one sample, got %d", len(samples))
	}

	s := samples[0]
	if s.BytesInPerSec != 100.0 {
		t.Fatalf("expected 100.0 bytes/sec in, got %f", s.BytesInPerSec)
	}
	if s.BytesOutPerSec != 200.0 {
		t.Fatalf("expected 200.0 bytes/sec out, got %f", s.BytesOutPerSec)
	}
	if s.CounterReset {
		t.Fatal("regular delta must not be flagged as a reset")
	}
	if s.ClientID != "alice" || s.IPAddress != "203.0.113.10" {
		t.Fatalf("sample lost identity: %+v", s)
	}
}

func TestCompute_CounterResetUsesRawValues(t *testing.T) {
	t.Parallel()

	tr := New(time.Hour, 0)
	tr.Compute([]status.ClientCounterRecord{record("alice", 5000, 5000)}, baseTime)

	samples := tr.Compute([]status.ClientCounterRecord{record("alice", 200, 400)}, baseTime.Add(10*time.Second))
	if len(samples) != 1 {
		t.Fatalf("expected one sample, got %d", len(samples))
	}

	s := samples[0]
	if !s.CounterReset {
		t.Fatal("expected counter reset flag")
	}
	if s.BytesInPerSec != 20.0 {
		t.Fatalf("expected raw 200/10 = 20.0 bytes/sec, got %f", s.BytesInPerSec)
	}
	if s.BytesOutPerSec != 40.0 {
		t.Fatalf("expected raw 400/10 = 40.0 bytes/sec, got %f", s.BytesOutPerSec)
	}
}

func TestCompute_ResetWhenOnlyOneCounterDecreases(t *testing.T) {
	t.Parallel()

	tr := New(time.Hour, 0)
	tr.Compute([]status.ClientCounterRecord{record("alice", 1000, 1000)}, baseTime)

	// bytes_out grew but bytes_in went backwards: still the reset path.
	samples := tr.Compute([]status.ClientCounterRecord{record("alice", 500, 2000)}, baseTime.Add(10*time.Second))
	if len(samples) != 1 || !samples[0].CounterReset {
		t.Fatalf("expected reset sample, got %+v", samples)
	}
	if samples[0].BytesInPerSec != 50.0 || samples[0].BytesOutPerSec != 200.0 {
		t.Fatalf("expected raw values 50/200, got %f/%f", samples[0].BytesInPerSec, samples[0].BytesOutPerSec)
	}
}

func TestCompute_NonPositiveElapsedRefreshesWithoutEmission(t *testing.T) {
	t.Parallel()

	tr := New(time.Hour, 0)
	tr.Compute([]status.ClientCounterRecord{record("alice", 1000, 1000)}, baseTime)

	// Clock went backwards.
	samples := tr.Compute([]status.ClientCounterRecord{record("alice", 2000, 2000)}, baseTime.Add(-time.Second))
	if len(samples) != 0 {
		t.Fatalf("negative elapsed must not emit, got %+v", samples)
	}

	// The baseline was still refreshed with the new counters, so the next
	// cycle diffs against 2000, not 1000.
	samples = tr.Compute([]status.ClientCounterRecord{record("alice", 2100, 2100)}, baseTime.Add(9*time.Second))
	if len(samples) != 1 {
		t.Fatalf("expected one sample, got %d", len(samples))
	}
	if samples[0].BytesInPerSec != 10.0 {
		t.Fatalf("expected delta against refreshed baseline, got %f", samples[0].BytesInPerSec)
	}
}

func TestCompute_IdenticalCallIsIdempotent(t *testing.T) {
	t.Parallel()

	tr := New(time.Hour, 0)
	records := []status.ClientCounterRecord{record("alice", 1000, 1000)}

	tr.Compute(records, baseTime)
	samples := tr.Compute(records, baseTime)

	if len(samples) != 0 {
		t.Fatalf("elapsed = 0 must not emit, got %+v", samples)
	}
	if tr.Size() != 1 {
		t.Fatalf("history must hold exactly one entry, size = %d", tr.Size())
	}
}

func TestCompute_EvictsClientsBeyondRetention(t *testing.T) {
	t.Parallel()

	tr := New(time.Hour, 0)
	tr.Compute([]status.ClientCounterRecord{
		record("gone", 100, 100),
		record("active", 100, 100),
	}, baseTime)

	// 61 minutes later only the active client reports again; the other one
	// must be gone from history even though it never reappeared in input.
	tr.Compute([]status.ClientCounterRecord{record("active", 200, 200)}, baseTime.Add(61*time.Minute))

	if tr.Size() != 1 {
		t.Fatalf("expected stale client evicted, size = %d", tr.Size())
	}

	// A reappearance is treated as a fresh first observation.
	samples := tr.Compute([]status.ClientCounterRecord{record("gone", 300, 300)}, baseTime.Add(62*time.Minute))
	if len(samples) != 0 {
		t.Fatalf("post-eviction reappearance must re-baseline, got %+v", samples)
	}
}

func TestCompute_EvictionRunsOnEmptyCycles(t *testing.T) {
	t.Parallel()

	tr := New(time.Hour, 0)
	tr.Compute([]status.ClientCounterRecord{record("alice", 100, 100)}, baseTime)

	samples := tr.Compute(nil, baseTime.Add(2*time.Hour))
	if len(samples) != 0 {
		t.Fatalf("empty cycle must produce empty output, got %+v", samples)
	}
	if tr.Size() != 0 {
		t.Fatalf("expected history emptied, size = %d", tr.Size())
	}
}

func TestCompute_DuplicateClientLastOccurrenceWins(t *testing.T) {
	t.Parallel()

	tr := New(time.Hour, 0)
	tr.Compute([]status.ClientCounterRecord{record("alice", 1000, 1000)}, baseTime)

	// Two rows for the same client in one snapshot: the first transition
	// emits, the second sees elapsed = 0 and only moves the baseline.
	samples := tr.Compute([]status.ClientCounterRecord{
		record("alice", 1500, 1500),
		record("alice", 1800, 1800),
	}, baseTime.Add(5*time.Second))

	if len(samples) != 1 {
		t.Fatalf("expected single emission for duplicated client, got %d", len(samples))
	}

	// Next cycle diffs against the last occurrence (1800).
	samples = tr.Compute([]status.ClientCounterRecord{record("alice", 1900, 1900)}, baseTime.Add(10*time.Second))
	if len(samples) != 1 {
		t.Fatalf("expected one sample, got %d", len(samples))
	}
	if samples[0].BytesInPerSec != 20.0 {
		t.Fatalf("expected baseline from last duplicate, got %f bytes/sec", samples[0].BytesInPerSec)
	}
}

func TestCompute_RatesNeverBelowFloor(t *testing.T) {
	t.Parallel()

	tr := New(time.Hour, 0)
	tr.Compute([]status.ClientCounterRecord{record("alice", 0, 0)}, baseTime)

	samples := tr.Compute([]status.ClientCounterRecord{record("alice", 0, 0)}, baseTime.Add(5*time.Second))
	if len(samples) != 1 {
		t.Fatalf("expected one sample, got %d", len(samples))
	}
	if samples[0].BytesInPerSec < 0 || samples[0].BytesOutPerSec < 0 {
		t.Fatalf("rates must be non-negative, got %+v", samples[0])
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	t.Parallel()

	tr := New(0, -1)
	if tr.retention != DefaultRetention {
		t.Fatalf("expected default retention, got %s", tr.retention)
	}
	if tr.floor != DefaultRateFloor {
		t.Fatalf("expected default floor, got %f", tr.floor)
	}
}

func TestReset_ClearsHistory(t *testing.T) {
	t.Parallel()

	tr := New(time.Hour, 0)
	tr.Compute([]status.ClientCounterRecord{record("alice", 100, 100)}, baseTime)
	tr.Reset()

	if tr.Size() != 0 {
		t.Fatalf("expected empty history after reset, size = %d", tr.Size())
	}
}
