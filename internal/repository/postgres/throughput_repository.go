package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/model"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/repository"
)

type throughputRepository struct {
	pool *pgxpool.Pool
}

func NewThroughputRepository(pool *pgxpool.Pool) repository.ThroughputRepository {
	return &throughputRepository{pool: pool}
}

var _ repository.ThroughputRepository = (*throughputRepository)(nil)

func (r *throughputRepository) InsertBatch(ctx context.Context, samples []*model.ThroughputSample) error {
	if len(samples) == 0 {
		return nil
	}

	query := `
		INSERT INTO throughput_samples (
			server_id, client_name, ip_addr,
			bytes_in_per_sec, bytes_out_per_sec, measured_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	batch := &pgx.Batch{}
	for _, sample := range samples {
		batch.Queue(
			query,
			sample.ServerID,
			sample.ClientName,
			sample.IPAddr,
			sample.BytesInPerSec,
			sample.BytesOutPerSec,
			sample.MeasuredAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck

	for range samples {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return results.Close()
}

func (r *throughputRepository) RecentByServer(ctx context.Context, serverID uuid.UUID, since time.Time, page repository.Pagination) ([]*model.ThroughputSample, error) {
	limit, offset := normalizePagination(page)

	query := `
		SELECT id, server_id, client_name, ip_addr,
		       bytes_in_per_sec, bytes_out_per_sec, measured_at
		FROM throughput_samples
		WHERE server_id = $1
		  AND measured_at >= $2
		ORDER BY measured_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.pool.Query(ctx, query, serverID, since, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := make([]*model.ThroughputSample, 0, limit)
	for rows.Next() {
		var sample model.ThroughputSample
		if err := rows.Scan(
			&sample.ID,
			&sample.ServerID,
			&sample.ClientName,
			&sample.IPAddr,
			&sample.BytesInPerSec,
			&sample.BytesOutPerSec,
			&sample.MeasuredAt,
		); err != nil {
			return nil, err
		}
		samples = append(samples, &sample)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

func (r *throughputRepository) TopClients(ctx context.Context, serverID uuid.UUID, start, end time.Time, limit int32) ([]*repository.ClientThroughputAgg, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT client_name,
		       AVG(bytes_in_per_sec),
		       AVG(bytes_out_per_sec),
		       MAX(bytes_in_per_sec),
		       MAX(bytes_out_per_sec),
		       COUNT(*),
		       MAX(measured_at)
		FROM throughput_samples
		WHERE server_id = $1
		  AND measured_at >= $2
		  AND measured_at < $3
		GROUP BY client_name
		ORDER BY AVG(bytes_in_per_sec) + AVG(bytes_out_per_sec) DESC
		LIMIT $4
	`

	rows, err := r.pool.Query(ctx, query, serverID, start, end, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	aggs := make([]*repository.ClientThroughputAgg, 0, limit)
	for rows.Next() {
		var agg repository.ClientThroughputAgg
		if err := rows.Scan(
			&agg.ClientName,
			&agg.AvgInPerSec,
			&agg.AvgOutPerSec,
			&agg.PeakInPerSec,
			&agg.PeakOutPerSec,
			&agg.SampleCount,
			&agg.LastMeasuredAt,
		); err != nil {
			return nil, err
		}
		aggs = append(aggs, &agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return aggs, nil
}

func (r *throughputRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM throughput_samples WHERE measured_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
