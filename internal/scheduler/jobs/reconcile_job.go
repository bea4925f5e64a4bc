package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/poller"
)

type ReconcileJob struct {
	manager *poller.Manager
	logger  *zap.Logger
}

func NewReconcileJob(manager *poller.Manager, logger *zap.Logger) *ReconcileJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileJob{manager: manager, logger: logger}
}

func (j *ReconcileJob) ReconcilePollers() {
	if j == nil || j.manager == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := j.manager.Reconcile(ctx); err != nil {
		j.logger.Warn("poller reconcile failed", zap.Error(err))
		return
	}

	j.logger.Debug("poller reconcile finished", zap.Int("pollers", j.manager.Size()))
}
