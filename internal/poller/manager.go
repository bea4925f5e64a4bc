package poller

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/metrics"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/model"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/repository"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/transport"
)

// RunnerFactory builds the transport for one server. Injected so tests can
// substitute a fake and so SSH credentials stay a wiring concern of main.
type RunnerFactory func(server *model.Server) (transport.Runner, error)

// Manager reconciles running pollers against the server table: servers added
// while the collector runs get a poller, disabled or deleted ones are stopped.
// Stopping a poller discards its tracker, so a re-enabled server starts from
// a fresh baseline.
type Manager struct {
	servers   repository.ServerRepository
	samples   repository.ThroughputRepository
	newRunner RunnerFactory
	cfg       Config
	logger    *zap.Logger

	mu      sync.Mutex
	running map[uuid.UUID]*managedPoller
}

type managedPoller struct {
	poller *Poller
	server *model.Server
}

func NewManager(
	serverRepo repository.ServerRepository,
	sampleRepo repository.ThroughputRepository,
	newRunner RunnerFactory,
	cfg Config,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		servers:   serverRepo,
		samples:   sampleRepo,
		newRunner: newRunner,
		cfg:       cfg,
		logger:    logger,
		running:   make(map[uuid.UUID]*managedPoller),
	}
}

// Reconcile aligns running pollers with the currently enabled servers.
func (m *Manager) Reconcile(ctx context.Context) error {
	servers, err := m.servers.ListEnabled(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[uuid.UUID]*model.Server, len(servers))
	for _, server := range servers {
		wanted[server.ID] = server
	}

	for id, managed := range m.running {
		server, keep := wanted[id]
		if keep && !pollingConfigChanged(managed.server, server) {
			continue
		}

		managed.poller.Stop()
		delete(m.running, id)
		if keep {
			m.logger.Info("server config changed, restarting poller", zap.String("server", server.Name))
		} else {
			m.logger.Info("server removed or disabled, stopping poller", zap.String("server", managed.server.Name))
		}
	}

	for id, server := range wanted {
		if _, ok := m.running[id]; ok {
			continue
		}
		if err := m.startLocked(server); err != nil {
			m.logger.Error("start poller failed",
				zap.String("server", server.Name),
				zap.Error(err),
			)
		}
	}

	metrics.SetActivePollers(len(m.running))
	return nil
}

// Stop shuts down every poller and waits for in-flight cycles.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, managed := range m.running {
		managed.poller.Stop()
		delete(m.running, id)
	}
	metrics.SetActivePollers(0)
}

// Size reports the number of running pollers.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

func (m *Manager) startLocked(server *model.Server) error {
	runner, err := m.newRunner(server)
	if err != nil {
		return err
	}

	p, err := New(server, runner, m.samples, m.servers, m.cfg, m.logger)
	if err != nil {
		return err
	}

	p.Start()
	m.running[server.ID] = &managedPoller{poller: p, server: server}
	m.logger.Info("poller started",
		zap.String("server", server.Name),
		zap.String("type", string(server.Type)),
		zap.Duration("interval", server.PollInterval()),
	)
	return nil
}

func pollingConfigChanged(prev, next *model.Server) bool {
	return prev.Type != next.Type ||
		prev.Address != next.Address ||
		prev.SSHUser != next.SSHUser ||
		prev.StatusPath != next.StatusPath ||
		prev.PollIntervalSec != next.PollIntervalSec
}
