//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/model"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/repository"
)

func TestServerRepositoryLifecycle(t *testing.T) {
	env := getEnv(t)
	ctx := context.Background()

	server := seedServer(t, model.ServerTypeOpenVPN)

	found, err := env.serverRepo.FindByID(ctx, server.ID)
	if err != nil {
		t.Fatalf("find by id failed: %v", err)
	}
	if found.Name != server.Name {
		t.Fatalf("unexpected name %q, want %q", found.Name, server.Name)
	}
	if found.Type != model.ServerTypeOpenVPN {
		t.Fatalf("unexpected type %q", found.Type)
	}

	byName, err := env.serverRepo.FindByName(ctx, server.Name)
	if err != nil {
		t.Fatalf("find by name failed: %v", err)
	}
	if byName.ID != server.ID {
		t.Fatalf("find by name returned id %s, want %s", byName.ID, server.ID)
	}

	found.PollIntervalSec = 60
	found.Enabled = false
	if err := env.serverRepo.Update(ctx, found); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	updated, err := env.serverRepo.FindByID(ctx, server.ID)
	if err != nil {
		t.Fatalf("find after update failed: %v", err)
	}
	if updated.PollIntervalSec != 60 || updated.Enabled {
		t.Fatalf("update not persisted: interval=%d enabled=%v", updated.PollIntervalSec, updated.Enabled)
	}

	if err := env.serverRepo.Delete(ctx, server.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := env.serverRepo.FindByID(ctx, server.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestServerRepositoryPollStatus(t *testing.T) {
	env := getEnv(t)
	ctx := context.Background()

	server := seedServer(t, model.ServerTypeWireGuard)
	polledAt := time.Now().UTC().Truncate(time.Millisecond)
	pollErr := "ssh: connection refused"

	if err := env.serverRepo.UpdatePollStatus(ctx, server.ID, polledAt, &pollErr); err != nil {
		t.Fatalf("update poll status failed: %v", err)
	}

	found, err := env.serverRepo.FindByID(ctx, server.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found.LastPolledAt == nil || !found.LastPolledAt.Equal(polledAt) {
		t.Fatalf("unexpected last_polled_at %v, want %v", found.LastPolledAt, polledAt)
	}
	if found.LastPollError == nil || *found.LastPollError != pollErr {
		t.Fatalf("unexpected last_poll_error %v", found.LastPollError)
	}

	if err := env.serverRepo.UpdatePollStatus(ctx, server.ID, polledAt.Add(time.Minute), nil); err != nil {
		t.Fatalf("clear poll error failed: %v", err)
	}
	found, err = env.serverRepo.FindByID(ctx, server.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found.LastPollError != nil {
		t.Fatalf("expected poll error cleared, got %q", *found.LastPollError)
	}

	if err := env.serverRepo.UpdatePollStatus(ctx, uuid.New(), polledAt, nil); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing server, got %v", err)
	}
}

func TestServerRepositoryListFilters(t *testing.T) {
	env := getEnv(t)
	ctx := context.Background()

	openvpn := seedServer(t, model.ServerTypeOpenVPN)
	wireguard := seedServer(t, model.ServerTypeWireGuard)

	wgType := model.ServerTypeWireGuard
	servers, err := env.serverRepo.List(ctx, repository.ServerListFilter{
		Type:       &wgType,
		Pagination: repository.Pagination{Limit: 500},
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	foundWG := false
	for _, server := range servers {
		if server.Type != model.ServerTypeWireGuard {
			t.Fatalf("type filter leaked server %s of type %q", server.Name, server.Type)
		}
		if server.ID == wireguard.ID {
			foundWG = true
		}
	}
	if !foundWG {
		t.Fatal("expected seeded wireguard server in filtered list")
	}

	enabled, err := env.serverRepo.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("list enabled failed: %v", err)
	}
	foundOpen := false
	for _, server := range enabled {
		if !server.Enabled {
			t.Fatalf("list enabled returned disabled server %s", server.Name)
		}
		if server.ID == openvpn.ID {
			foundOpen = true
		}
	}
	if !foundOpen {
		t.Fatal("expected seeded openvpn server in enabled list")
	}
}

func TestThroughputRepositoryInsertAndQuery(t *testing.T) {
	env := getEnv(t)
	ctx := context.Background()

	server := seedServer(t, model.ServerTypeOpenVPN)
	now := time.Now().UTC().Truncate(time.Millisecond)

	seedSamples(t, server.ID, []*model.ThroughputSample{
		{ClientName: "alice", IPAddr: "10.8.0.2", BytesInPerSec: 100, BytesOutPerSec: 50, MeasuredAt: now.Add(-2 * time.Minute)},
		{ClientName: "alice", IPAddr: "10.8.0.2", BytesInPerSec: 300, BytesOutPerSec: 150, MeasuredAt: now.Add(-time.Minute)},
		{ClientName: "bob", IPAddr: "10.8.0.3", BytesInPerSec: 10, BytesOutPerSec: 5, MeasuredAt: now.Add(-time.Minute)},
	})

	recent, err := env.sampleRepo.RecentByServer(ctx, server.ID, now.Add(-time.Hour), repository.Pagination{Limit: 100})
	if err != nil {
		t.Fatalf("recent by server failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(recent))
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].MeasuredAt.After(recent[i-1].MeasuredAt) {
			t.Fatal("samples not ordered by measured_at descending")
		}
	}

	top, err := env.sampleRepo.TopClients(ctx, server.ID, now.Add(-time.Hour), now, 10)
	if err != nil {
		t.Fatalf("top clients failed: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 aggregated clients, got %d", len(top))
	}
	if top[0].ClientName != "alice" {
		t.Fatalf("expected alice first, got %q", top[0].ClientName)
	}
	if top[0].AvgInPerSec != 200 {
		t.Fatalf("unexpected avg in for alice: %v", top[0].AvgInPerSec)
	}
	if top[0].PeakInPerSec != 300 {
		t.Fatalf("unexpected peak in for alice: %v", top[0].PeakInPerSec)
	}
	if top[0].SampleCount != 2 {
		t.Fatalf("unexpected sample count for alice: %d", top[0].SampleCount)
	}
}

func TestThroughputRepositoryDeleteOlderThan(t *testing.T) {
	env := getEnv(t)
	ctx := context.Background()

	server := seedServer(t, model.ServerTypeWireGuard)
	now := time.Now().UTC()

	seedSamples(t, server.ID, []*model.ThroughputSample{
		{ClientName: "stale", BytesInPerSec: 1, BytesOutPerSec: 1, MeasuredAt: now.Add(-48 * time.Hour)},
		{ClientName: "fresh", BytesInPerSec: 1, BytesOutPerSec: 1, MeasuredAt: now},
	})

	deleted, err := env.sampleRepo.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete older than failed: %v", err)
	}
	if deleted < 1 {
		t.Fatalf("expected at least 1 deleted sample, got %d", deleted)
	}

	remaining, err := env.sampleRepo.RecentByServer(ctx, server.ID, now.Add(-72*time.Hour), repository.Pagination{Limit: 100})
	if err != nil {
		t.Fatalf("recent by server failed: %v", err)
	}
	for _, sample := range remaining {
		if sample.ClientName == "stale" {
			t.Fatal("stale sample survived retention delete")
		}
	}
}

func TestThroughputCascadeOnServerDelete(t *testing.T) {
	env := getEnv(t)
	ctx := context.Background()

	server := seedServer(t, model.ServerTypeOpenVPN)
	now := time.Now().UTC()

	seedSamples(t, server.ID, []*model.ThroughputSample{
		{ClientName: "alice", BytesInPerSec: 1, BytesOutPerSec: 1, MeasuredAt: now},
	})

	if err := env.serverRepo.Delete(ctx, server.ID); err != nil {
		t.Fatalf("delete server failed: %v", err)
	}

	samples, err := env.sampleRepo.RecentByServer(ctx, server.ID, now.Add(-time.Hour), repository.Pagination{Limit: 10})
	if err != nil {
		t.Fatalf("recent by server failed: %v", err)
	}
	if len(samples) != 0 {
		t.Fatalf("expected cascade delete of samples, got %d", len(samples))
	}
}
