package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/model"
)

var ErrNotFound = errors.New("resource not found")

type Pagination struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

type ServerListFilter struct {
	Type       *model.ServerType `json:"type,omitempty"`
	Enabled    *bool             `json:"enabled,omitempty"`
	Pagination Pagination        `json:"pagination"`
}

// ClientThroughputAgg is an aggregate over persisted samples, used by the
// read API's top-clients view.
type ClientThroughputAgg struct {
	ClientName     string    `json:"client_name"`
	AvgInPerSec    float64   `json:"avg_in_per_sec"`
	AvgOutPerSec   float64   `json:"avg_out_per_sec"`
	PeakInPerSec   float64   `json:"peak_in_per_sec"`
	PeakOutPerSec  float64   `json:"peak_out_per_sec"`
	SampleCount    int64     `json:"sample_count"`
	LastMeasuredAt time.Time `json:"last_measured_at"`
}

type ServerRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Server, error)
	FindByName(ctx context.Context, name string) (*model.Server, error)
	Create(ctx context.Context, server *model.Server) error
	Update(ctx context.Context, server *model.Server) error
	UpdatePollStatus(ctx context.Context, id uuid.UUID, polledAt time.Time, pollError *string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ServerListFilter) ([]*model.Server, error)
	ListEnabled(ctx context.Context) ([]*model.Server, error)
}

type ThroughputRepository interface {
	InsertBatch(ctx context.Context, samples []*model.ThroughputSample) error
	RecentByServer(ctx context.Context, serverID uuid.UUID, since time.Time, page Pagination) ([]*model.ThroughputSample, error)
	TopClients(ctx context.Context, serverID uuid.UUID, start, end time.Time, limit int32) ([]*ClientThroughputAgg, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
