//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/model"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/repository"
)

func TestAPIRequiresInternalToken(t *testing.T) {
	resp := performRequest(t, http.MethodGet, "/api/v1/servers", nil)
	mustStatus(t, resp, http.StatusUnauthorized)

	resp = performRequest(t, http.MethodGet, "/api/v1/servers", map[string]string{
		"X-Internal-Token": "wrong-token",
	})
	mustStatus(t, resp, http.StatusUnauthorized)

	resp = performRequest(t, http.MethodGet, "/api/v1/servers", authHeader())
	mustStatus(t, resp, http.StatusOK)
}

func TestAPIListAndGetServers(t *testing.T) {
	server := seedServer(t, model.ServerTypeOpenVPN)

	resp := performRequest(t, http.MethodGet, "/api/v1/servers?type=openvpn", authHeader())
	mustStatus(t, resp, http.StatusOK)

	envelope := decodeEnvelope(t, resp)
	if envelope.Code != 0 {
		t.Fatalf("unexpected envelope code %d", envelope.Code)
	}

	var servers []*model.Server
	if err := json.Unmarshal(envelope.Data, &servers); err != nil {
		t.Fatalf("decode servers payload: %v", err)
	}
	found := false
	for _, s := range servers {
		if s.ID == server.ID {
			found = true
		}
		if s.Type != model.ServerTypeOpenVPN {
			t.Fatalf("type filter leaked server of type %q", s.Type)
		}
	}
	if !found {
		t.Fatal("seeded server missing from list response")
	}

	resp = performRequest(t, http.MethodGet, "/api/v1/servers/"+server.ID.String(), authHeader())
	mustStatus(t, resp, http.StatusOK)

	envelope = decodeEnvelope(t, resp)
	var fetched model.Server
	if err := json.Unmarshal(envelope.Data, &fetched); err != nil {
		t.Fatalf("decode server payload: %v", err)
	}
	if fetched.Name != server.Name {
		t.Fatalf("unexpected server name %q, want %q", fetched.Name, server.Name)
	}
}

func TestAPIThroughputEndpoints(t *testing.T) {
	server := seedServer(t, model.ServerTypeWireGuard)
	now := time.Now().UTC().Truncate(time.Millisecond)

	seedSamples(t, server.ID, []*model.ThroughputSample{
		{ClientName: "peer-a", IPAddr: "[2001:db8::10]", BytesInPerSec: 400, BytesOutPerSec: 200, MeasuredAt: now.Add(-time.Minute)},
		{ClientName: "peer-b", IPAddr: "203.0.113.7", BytesInPerSec: 40, BytesOutPerSec: 20, MeasuredAt: now.Add(-time.Minute)},
	})

	path := fmt.Sprintf("/api/v1/servers/%s/throughput?since=%s", server.ID, now.Add(-time.Hour).Format(time.RFC3339))
	resp := performRequest(t, http.MethodGet, path, authHeader())
	mustStatus(t, resp, http.StatusOK)

	envelope := decodeEnvelope(t, resp)
	var samples []*model.ThroughputSample
	if err := json.Unmarshal(envelope.Data, &samples); err != nil {
		t.Fatalf("decode samples payload: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}

	resp = performRequest(t, http.MethodGet, fmt.Sprintf("/api/v1/servers/%s/top?hours=1", server.ID), authHeader())
	mustStatus(t, resp, http.StatusOK)

	envelope = decodeEnvelope(t, resp)
	var top []*repository.ClientThroughputAgg
	if err := json.Unmarshal(envelope.Data, &top); err != nil {
		t.Fatalf("decode top clients payload: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(top))
	}
	if top[0].ClientName != "peer-a" {
		t.Fatalf("expected peer-a ranked first, got %q", top[0].ClientName)
	}
}

func TestAPIBadRequests(t *testing.T) {
	resp := performRequest(t, http.MethodGet, "/api/v1/servers/not-a-uuid", authHeader())
	mustStatus(t, resp, http.StatusBadRequest)

	server := seedServer(t, model.ServerTypeOpenVPN)

	resp = performRequest(t, http.MethodGet, "/api/v1/servers/"+server.ID.String()+"/throughput?since=yesterday", authHeader())
	mustStatus(t, resp, http.StatusBadRequest)

	resp = performRequest(t, http.MethodGet, "/api/v1/servers/"+server.ID.String()+"/top?hours=0", authHeader())
	mustStatus(t, resp, http.StatusBadRequest)
}
