package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/model"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/repository"
)

type serverRepository struct {
	pool *pgxpool.Pool
}

func NewServerRepository(pool *pgxpool.Pool) repository.ServerRepository {
	return &serverRepository{pool: pool}
}

var _ repository.ServerRepository = (*serverRepository)(nil)

const serverColumns = `
	id,
	name,
	type,
	address,
	ssh_user,
	status_path,
	poll_interval_sec,
	enabled,
	last_polled_at,
	last_poll_error,
	created_at
`

func (r *serverRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE id = $1`
	server, err := scanServer(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return server, nil
}

func (r *serverRepository) FindByName(ctx context.Context, name string) (*model.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE name = $1`
	server, err := scanServer(r.pool.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return server, nil
}

func (r *serverRepository) Create(ctx context.Context, server *model.Server) error {
	if server.ID == uuid.Nil {
		server.ID = uuid.New()
	}
	if server.CreatedAt.IsZero() {
		server.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO servers (
			id, name, type, address, ssh_user, status_path,
			poll_interval_sec, enabled, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		server.ID,
		server.Name,
		server.Type,
		server.Address,
		server.SSHUser,
		server.StatusPath,
		server.PollIntervalSec,
		server.Enabled,
		server.CreatedAt,
	)
	return err
}

func (r *serverRepository) Update(ctx context.Context, server *model.Server) error {
	query := `
		UPDATE servers
		SET name = $2,
		    type = $3,
		    address = $4,
		    ssh_user = $5,
		    status_path = $6,
		    poll_interval_sec = $7,
		    enabled = $8
		WHERE id = $1
	`

	tag, err := r.pool.Exec(
		ctx,
		query,
		server.ID,
		server.Name,
		server.Type,
		server.Address,
		server.SSHUser,
		server.StatusPath,
		server.PollIntervalSec,
		server.Enabled,
	)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *serverRepository) UpdatePollStatus(ctx context.Context, id uuid.UUID, polledAt time.Time, pollError *string) error {
	query := `
		UPDATE servers
		SET last_polled_at = $2,
		    last_poll_error = $3
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, polledAt, pollError)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *serverRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM servers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *serverRepository) List(ctx context.Context, filter repository.ServerListFilter) ([]*model.Server, error) {
	limit, offset := normalizePagination(filter.Pagination)

	var (
		conditions []string
		args       []any
	)

	if filter.Type != nil {
		args = append(args, *filter.Type)
		conditions = append(conditions, "type = $"+strconv.Itoa(len(args)))
	}
	if filter.Enabled != nil {
		args = append(args, *filter.Enabled)
		conditions = append(conditions, "enabled = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + serverColumns + ` FROM servers`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args))
	args = append(args, offset)
	query += " OFFSET $" + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectServers(rows, int(limit))
}

func (r *serverRepository) ListEnabled(ctx context.Context) ([]*model.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE enabled ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectServers(rows, 16)
}

func collectServers(rows pgx.Rows, sizeHint int) ([]*model.Server, error) {
	servers := make([]*model.Server, 0, sizeHint)
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return servers, nil
}

func scanServer(row pgx.Row) (*model.Server, error) {
	var server model.Server
	err := row.Scan(
		&server.ID,
		&server.Name,
		&server.Type,
		&server.Address,
		&server.SSHUser,
		&server.StatusPath,
		&server.PollIntervalSec,
		&server.Enabled,
		&server.LastPolledAt,
		&server.LastPollError,
		&server.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &server, nil
}
