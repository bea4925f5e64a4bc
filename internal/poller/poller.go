// Package poller drives the per-server collection loop: fetch a raw status
// snapshot over the transport, parse it, fold it into the throughput tracker
// and persist the resulting samples. Each monitored server gets exactly one
// Poller; cycles are strictly sequential, so the tracker is only ever touched
// from the poller's own goroutine.
package poller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/metrics"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/model"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/repository"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/status"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/tracker"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/transport"
)

const defaultCycleTimeout = 30 * time.Second

type Config struct {
	// CycleTimeout bounds one fetch+persist cycle. The engine itself never
	// blocks; this only limits the transport and database collaborators.
	CycleTimeout time.Duration

	// Retention and RateFloor are handed to the server's tracker.
	Retention time.Duration
	RateFloor float64
}

type Poller struct {
	server     *model.Server
	runner     transport.Runner
	parser     status.Parser
	tracker    *tracker.Tracker
	samples    repository.ThroughputRepository
	servers    repository.ServerRepository
	logger     *zap.Logger
	cycleLimit time.Duration

	nowFn func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(
	server *model.Server,
	runner transport.Runner,
	sampleRepo repository.ThroughputRepository,
	serverRepo repository.ServerRepository,
	cfg Config,
	logger *zap.Logger,
) (*Poller, error) {
	if server == nil {
		return nil, fmt.Errorf("poller requires a server")
	}
	parser, err := status.ParserForType(server.Type)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cycleLimit := cfg.CycleTimeout
	if cycleLimit <= 0 {
		cycleLimit = defaultCycleTimeout
	}

	return &Poller{
		server:     server,
		runner:     runner,
		parser:     parser,
		tracker:    tracker.New(cfg.Retention, cfg.RateFloor),
		samples:    sampleRepo,
		servers:    serverRepo,
		logger:     logger.With(zap.String("server", server.Name)),
		cycleLimit: cycleLimit,
		nowFn:      time.Now,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start launches the poll loop. The first cycle runs immediately; afterwards
// the next cycle never begins before the previous one finished, keeping
// history updates ordered.
func (p *Poller) Start() {
	go func() {
		defer close(p.doneCh)

		ticker := time.NewTicker(p.server.PollInterval())
		defer ticker.Stop()

		p.cycle()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.cycle()
			}
		}
	}()
}

// Stop terminates the loop and waits for an in-flight cycle to finish.
func (p *Poller) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

func (p *Poller) cycle() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), p.cycleLimit)
	defer cancel()

	err := p.runCycle(ctx)
	metrics.ObservePollCycleDuration(time.Since(start))
	if err != nil {
		p.logger.Warn("poll cycle failed", zap.Error(err))
	}
}

func (p *Poller) runCycle(ctx context.Context) error {
	raw, err := p.runner.Run(ctx, p.server.StatusCommand())
	if err != nil {
		metrics.IncPollCycle(p.server.Name, metrics.PollResultFetchError)
		p.recordPollStatus(ctx, err)
		return fmt.Errorf("fetch status snapshot: %w", err)
	}

	records := p.parser.Parse(raw)
	p.flagDuplicates(records)

	now := p.nowFn().UTC()
	samples := p.tracker.Compute(records, now)
	metrics.SetTrackedClients(p.server.Name, p.tracker.Size())

	resets := 0
	for _, s := range samples {
		if s.CounterReset {
			resets++
			p.logger.Info("counter reset detected",
				zap.String("client", s.ClientID),
				zap.Float64("bytes_in_per_sec", s.BytesInPerSec),
				zap.Float64("bytes_out_per_sec", s.BytesOutPerSec),
			)
		}
	}
	metrics.AddCounterResets(p.server.Name, resets)

	if err := p.persist(ctx, samples, now); err != nil {
		metrics.IncPollCycle(p.server.Name, metrics.PollResultPersistError)
		p.recordPollStatus(ctx, err)
		return fmt.Errorf("persist samples: %w", err)
	}

	metrics.IncPollCycle(p.server.Name, metrics.PollResultOK)
	metrics.AddSamplesEmitted(p.server.Name, len(samples))
	p.recordPollStatus(ctx, nil)

	p.logger.Debug("poll cycle finished",
		zap.Int("records", len(records)),
		zap.Int("samples", len(samples)),
		zap.Int("tracked_clients", p.tracker.Size()),
	)
	return nil
}

func (p *Poller) persist(ctx context.Context, samples []tracker.Sample, measuredAt time.Time) error {
	if len(samples) == 0 {
		return nil
	}

	rows := make([]*model.ThroughputSample, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, &model.ThroughputSample{
			ServerID:       p.server.ID,
			ClientName:     s.ClientID,
			IPAddr:         s.IPAddress,
			BytesInPerSec:  s.BytesInPerSec,
			BytesOutPerSec: s.BytesOutPerSec,
			MeasuredAt:     measuredAt,
		})
	}
	return p.samples.InsertBatch(ctx, rows)
}

// flagDuplicates surfaces snapshots that name the same client twice. The
// tracker folds them last-write-wins; repeated occurrences usually mean the
// daemon produced a corrupt dump and are worth noticing.
func (p *Poller) flagDuplicates(records []status.ClientCounterRecord) {
	if len(records) < 2 {
		return
	}

	seen := make(map[string]struct{}, len(records))
	duplicates := 0
	for _, rec := range records {
		if _, ok := seen[rec.ClientID]; ok {
			duplicates++
			continue
		}
		seen[rec.ClientID] = struct{}{}
	}

	if duplicates > 0 {
		metrics.AddDuplicateClientRecords(p.server.Name, duplicates)
		p.logger.Warn("duplicate client ids in snapshot",
			zap.Int("duplicates", duplicates),
		)
	}
}

func (p *Poller) recordPollStatus(ctx context.Context, pollErr error) {
	if p.servers == nil {
		return
	}

	var errText *string
	if pollErr != nil {
		msg := pollErr.Error()
		errText = &msg
	}

	if err := p.servers.UpdatePollStatus(ctx, p.server.ID, p.nowFn().UTC(), errText); err != nil {
		p.logger.Warn("update poll status failed", zap.Error(err))
	}
}
