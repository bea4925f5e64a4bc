package status

import (
	"strconv"
	"strings"
)

const openVPNClientPrefix = "CLIENT_LIST"

// OpenVPNParser reads the management-interface status-log format. Only
// CLIENT_LIST rows carry per-client counters; header, routing table and
// GLOBAL_STATS rows are ignored.
//
// CLIENT_LIST,<common name>,<real ip:port>,<virtual ip>,<virtual ipv6>,
// <bytes received>,<bytes sent>,<connected since>,...
type OpenVPNParser struct{}

var _ Parser = OpenVPNParser{}

func (OpenVPNParser) Parse(raw string) []ClientCounterRecord {
	var records []ClientCounterRecord

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, openVPNClientPrefix) {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) < 7 {
			continue
		}

		bytesIn, err := strconv.ParseUint(fields[5], 10, 64)
		if err != nil {
			continue
		}
		bytesOut, err := strconv.ParseUint(fields[6], 10, 64)
		if err != nil {
			continue
		}

		realAddr := fields[2]
		if idx := strings.Index(realAddr, ":"); idx >= 0 {
			realAddr = realAddr[:idx]
		}

		records = append(records, ClientCounterRecord{
			ClientID:  fields[1],
			IPAddress: realAddr,
			BytesIn:   bytesIn,
			BytesOut:  bytesOut,
		})
	}

	return records
}
