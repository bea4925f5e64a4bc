package model

import (
	"time"

	"github.com/google/uuid"
)

// ThroughputSample is one persisted per-client rate measurement.
type ThroughputSample struct {
	ID             int64     `db:"id" json:"id"`
	ServerID       uuid.UUID `db:"server_id" json:"server_id"`
	ClientName     string    `db:"client_name" json:"client_name"`
	IPAddr         string    `db:"ip_addr" json:"ip_addr"`
	BytesInPerSec  float64   `db:"bytes_in_per_sec" json:"bytes_in_per_sec"`
	BytesOutPerSec float64   `db:"bytes_out_per_sec" json:"bytes_out_per_sec"`
	MeasuredAt     time.Time `db:"measured_at" json:"measured_at"`
}
