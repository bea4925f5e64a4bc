package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	PollResultOK           = "ok"
	PollResultFetchError   = "fetch_error"
	PollResultPersistError = "persist_error"
)

var (
	PollCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpnmon_poll_cycles_total",
		Help: "Completed poll cycles by server and result",
	}, []string{"server", "result"})

	PollCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vpnmon_poll_cycle_duration_seconds",
		Help:    "Duration of one fetch+parse+compute+persist cycle",
		Buckets: prometheus.DefBuckets,
	})

	SamplesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpnmon_throughput_samples_total",
		Help: "Throughput samples emitted by the tracker",
	}, []string{"server"})

	CounterResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpnmon_counter_resets_total",
		Help: "Detected daemon counter resets",
	}, []string{"server"})

	DuplicateClientRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpnmon_duplicate_client_records_total",
		Help: "Snapshots containing the same client id more than once",
	}, []string{"server"})

	TrackedClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vpnmon_tracked_clients",
		Help: "Clients currently held in a server's counter history",
	}, []string{"server"})

	ActivePollers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vpnmon_active_pollers",
		Help: "Currently running per-server poll loops",
	})

	PrunedSamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpnmon_pruned_samples_total",
		Help: "Persisted samples removed by the retention job",
	})
)

func serverLabel(name string) string {
	label := strings.TrimSpace(name)
	if label == "" {
		return "unknown"
	}
	return label
}

func IncPollCycle(server, result string) {
	PollCycles.WithLabelValues(serverLabel(server), result).Inc()
}

func ObservePollCycleDuration(duration time.Duration) {
	PollCycleDuration.Observe(duration.Seconds())
}

func AddSamplesEmitted(server string, count int) {
	if count > 0 {
		SamplesEmitted.WithLabelValues(serverLabel(server)).Add(float64(count))
	}
}

func AddCounterResets(server string, count int) {
	if count > 0 {
		CounterResets.WithLabelValues(serverLabel(server)).Add(float64(count))
	}
}

func AddDuplicateClientRecords(server string, count int) {
	if count > 0 {
		DuplicateClientRecords.WithLabelValues(serverLabel(server)).Add(float64(count))
	}
}

func SetTrackedClients(server string, count int) {
	if count < 0 {
		count = 0
	}
	TrackedClients.WithLabelValues(serverLabel(server)).Set(float64(count))
}

func SetActivePollers(count int) {
	if count < 0 {
		count = 0
	}
	ActivePollers.Set(float64(count))
}

func AddPrunedSamples(count int64) {
	if count > 0 {
		PrunedSamples.Add(float64(count))
	}
}
