package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/api/middleware"
	v1 "github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/api/v1"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/repository"
)

type PollerCounter interface {
	Size() int
}

type Deps struct {
	Servers       repository.ServerRepository
	Samples       repository.ThroughputRepository
	Pollers       PollerCounter
	InternalToken string
	Version       string
	StartedAt     time.Time
}

// RegisterV1Routes mounts the operator read API. Everything under /api/v1 is
// internal-token protected; there is no public surface.
func RegisterV1Routes(router gin.IRouter, deps Deps) {
	group := router.Group("/api/v1")
	group.Use(middleware.InternalTokenAuth(deps.InternalToken))

	v1.RegisterServerRoutes(group, deps.Servers)
	v1.RegisterThroughputRoutes(group, deps.Samples)
	v1.RegisterSystemRoutes(group, deps.Version, deps.StartedAt, deps.Pollers)
}
