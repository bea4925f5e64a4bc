package model

import (
	"time"

	"github.com/google/uuid"
)

type ServerType string

const (
	ServerTypeOpenVPN   ServerType = "openvpn"
	ServerTypeWireGuard ServerType = "wireguard"
)

func (t ServerType) Valid() bool {
	return t == ServerTypeOpenVPN || t == ServerTypeWireGuard
}

const defaultOpenVPNStatusPath = "/run/openvpn/server.status"

// Server is one monitored VPN server reachable over SSH.
type Server struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	Type            ServerType `db:"type" json:"type"`
	Address         string     `db:"address" json:"address"`
	SSHUser         string     `db:"ssh_user" json:"ssh_user"`
	StatusPath      string     `db:"status_path" json:"status_path,omitempty"`
	PollIntervalSec int        `db:"poll_interval_sec" json:"poll_interval_sec"`
	Enabled         bool       `db:"enabled" json:"enabled"`
	LastPolledAt    *time.Time `db:"last_polled_at" json:"last_polled_at,omitempty"`
	LastPollError   *string    `db:"last_poll_error" json:"last_poll_error,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

func (s *Server) PollInterval() time.Duration {
	if s == nil || s.PollIntervalSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.PollIntervalSec) * time.Second
}

// StatusCommand is the shell command executed on the remote host to obtain
// one raw status snapshot.
func (s *Server) StatusCommand() string {
	switch s.Type {
	case ServerTypeWireGuard:
		return "wg show all dump"
	default:
		path := s.StatusPath
		if path == "" {
			path = defaultOpenVPNStatusPath
		}
		return "cat " + path
	}
}
