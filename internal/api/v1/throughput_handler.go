package v1

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/api/response"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/repository"
)

type ThroughputHandler struct {
	samples repository.ThroughputRepository
}

func NewThroughputHandler(samples repository.ThroughputRepository) *ThroughputHandler {
	return &ThroughputHandler{samples: samples}
}

func RegisterThroughputRoutes(group *gin.RouterGroup, samples repository.ThroughputRepository) {
	handler := NewThroughputHandler(samples)

	group.GET("/servers/:id/throughput", handler.Recent)
	group.GET("/servers/:id/top", handler.TopClients)
}

func (h *ThroughputHandler) Recent(c *gin.Context) {
	serverID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "invalid server id")
		return
	}

	since := time.Now().UTC().Add(-time.Hour)
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "invalid since timestamp")
			return
		}
		since = parsed
	}

	page := repository.Pagination{
		Limit:  parseInt32Query(c, "limit", 100),
		Offset: parseInt32Query(c, "offset", 0),
	}

	samples, err := h.samples.RecentByServer(c.Request.Context(), serverID, since, page)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "query samples failed")
		return
	}

	response.Success(c, samples)
}

func (h *ThroughputHandler) TopClients(c *gin.Context) {
	serverID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "invalid server id")
		return
	}

	hours := parseInt32Query(c, "hours", 24)
	if hours <= 0 || hours > 24*31 {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "hours out of range")
		return
	}
	limit := parseInt32Query(c, "limit", 10)

	end := time.Now().UTC()
	start := end.Add(-time.Duration(hours) * time.Hour)

	aggs, err := h.samples.TopClients(c.Request.Context(), serverID, start, end, limit)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "query top clients failed")
		return
	}

	response.Success(c, aggs)
}

func parseInt32Query(c *gin.Context, name string, fallback int32) int32 {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return fallback
	}
	return int32(value)
}
