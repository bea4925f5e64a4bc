package v1

import (
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/api/response"
)

type SystemStatus struct {
	Version        string    `json:"version"`
	StartedAt      time.Time `json:"started_at"`
	UptimeSeconds  int64     `json:"uptime_seconds"`
	ActivePollers  int       `json:"active_pollers"`
	Goroutines     int       `json:"goroutines"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemUsedPercent float64   `json:"mem_used_percent"`
}

type pollerCounter interface {
	Size() int
}

type SystemHandler struct {
	version   string
	startedAt time.Time
	pollers   pollerCounter
}

func NewSystemHandler(version string, startedAt time.Time, pollers pollerCounter) *SystemHandler {
	return &SystemHandler{
		version:   version,
		startedAt: startedAt,
		pollers:   pollers,
	}
}

func RegisterSystemRoutes(group *gin.RouterGroup, version string, startedAt time.Time, pollers pollerCounter) {
	handler := NewSystemHandler(version, startedAt, pollers)
	group.GET("/system/status", handler.Status)
}

func (h *SystemHandler) Status(c *gin.Context) {
	status := SystemStatus{
		Version:       h.version,
		StartedAt:     h.startedAt,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}
	if h.pollers != nil {
		status.ActivePollers = h.pollers.Size()
	}

	if percentages, err := cpu.PercentWithContext(c.Request.Context(), 0, false); err == nil && len(percentages) > 0 {
		status.CPUPercent = percentages[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(c.Request.Context()); err == nil {
		status.MemUsedPercent = vm.UsedPercent
	}

	response.Success(c, status)
}
