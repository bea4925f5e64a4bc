package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/metrics"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/repository"
)

type RetentionJob struct {
	samples   repository.ThroughputRepository
	retention time.Duration
	logger    *zap.Logger
}

func NewRetentionJob(samples repository.ThroughputRepository, retention time.Duration, logger *zap.Logger) *RetentionJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &RetentionJob{samples: samples, retention: retention, logger: logger}
}

func (j *RetentionJob) PruneSamples() {
	if j == nil || j.samples == nil {
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-j.retention)
	removed, err := j.samples.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Warn("sample retention prune failed", zap.Error(err))
		return
	}

	metrics.AddPrunedSamples(removed)
	j.logger.Info("sample retention prune finished",
		zap.Int64("removed", removed),
		zap.Time("cutoff", cutoff),
		zap.Duration("cost", time.Since(start)),
	)
}
