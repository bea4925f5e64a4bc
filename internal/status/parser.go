// Package status normalizes the loosely structured status dumps produced by
// OpenVPN and WireGuard daemons into per-client counter records.
package status

import (
	"fmt"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/model"
)

// ClientCounterRecord carries one connected client's cumulative byte counters
// as reported in a single snapshot. Records are produced fresh on every parse
// and are not retained by the parser.
type ClientCounterRecord struct {
	ClientID  string
	IPAddress string
	BytesIn   uint64
	BytesOut  uint64
}

// Parser turns one raw status snapshot into normalized counter records.
// Implementations are stateless. Malformed lines are skipped, never reported:
// a snapshot with zero recognizable records is a valid empty result.
type Parser interface {
	Parse(raw string) []ClientCounterRecord
}

// ParserForType selects the parser for a server's declared type. Selection
// happens once per server, not per snapshot.
func ParserForType(serverType model.ServerType) (Parser, error) {
	switch serverType {
	case model.ServerTypeOpenVPN:
		return OpenVPNParser{}, nil
	case model.ServerTypeWireGuard:
		return WireGuardParser{}, nil
	default:
		return nil, fmt.Errorf("no status parser for server type %q", serverType)
	}
}
