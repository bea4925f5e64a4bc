package status

import (
	"strconv"
	"strings"
)

const wireguardNoEndpoint = "(none)"

// WireGuardParser reads `wg show all dump` output. Each peer row is
// tab-separated:
//
// <interface>\t<public key>\t<preshared key>\t<endpoint>\t<allowed ips>\t
// <latest handshake>\t<rx bytes>\t<tx bytes>\t<keepalive>
//
// The per-interface header row has fewer fields and falls out of the
// field-count check. A peer whose endpoint is "(none)" has no established
// connection and contributes nothing to this cycle.
type WireGuardParser struct{}

var _ Parser = WireGuardParser{}

func (WireGuardParser) Parse(raw string) []ClientCounterRecord {
	var records []ClientCounterRecord

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		fields := strings.Split(line, "\t")
		if len(fields) < 8 {
			continue
		}

		endpoint := fields[3]
		if endpoint == wireguardNoEndpoint {
			continue
		}

		bytesIn, err := strconv.ParseUint(fields[6], 10, 64)
		if err != nil {
			continue
		}
		bytesOut, err := strconv.ParseUint(fields[7], 10, 64)
		if err != nil {
			continue
		}

		// Endpoints are ip:port; split on the last colon so bracketed
		// IPv6 endpoints keep their address part intact.
		if idx := strings.LastIndex(endpoint, ":"); idx >= 0 {
			endpoint = endpoint[:idx]
		}

		records = append(records, ClientCounterRecord{
			ClientID:  fields[1],
			IPAddress: endpoint,
			BytesIn:   bytesIn,
			BytesOut:  bytesOut,
		})
	}

	return records
}
