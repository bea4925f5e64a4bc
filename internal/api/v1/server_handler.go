package v1

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/api/response"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/model"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/repository"
)

type ServerHandler struct {
	servers repository.ServerRepository
}

func NewServerHandler(servers repository.ServerRepository) *ServerHandler {
	return &ServerHandler{servers: servers}
}

func RegisterServerRoutes(group *gin.RouterGroup, servers repository.ServerRepository) {
	handler := NewServerHandler(servers)

	group.GET("/servers", handler.List)
	group.GET("/servers/:id", handler.Get)
}

func (h *ServerHandler) List(c *gin.Context) {
	filter := repository.ServerListFilter{}

	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		serverType := model.ServerType(raw)
		if !serverType.Valid() {
			response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "invalid server type")
			return
		}
		filter.Type = &serverType
	}
	if raw := strings.TrimSpace(c.Query("enabled")); raw != "" {
		enabled := raw == "true" || raw == "1"
		filter.Enabled = &enabled
	}

	servers, err := h.servers.List(c.Request.Context(), filter)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "list servers failed")
		return
	}

	response.Success(c, servers)
}

func (h *ServerHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "invalid server id")
		return
	}

	server, err := h.servers.FindByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		response.Fail(c, http.StatusNotFound, response.ErrServerNotFound, "server not found")
		return
	}
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "load server failed")
		return
	}

	response.Success(c, server)
}
