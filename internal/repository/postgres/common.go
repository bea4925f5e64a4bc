package postgres

import (
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/repository"
)

var ErrNotFound = repository.ErrNotFound

func normalizePagination(page repository.Pagination) (int32, int32) {
	limit := page.Limit
	offset := page.Offset

	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}

	return limit, offset
}

func ensureAffected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
