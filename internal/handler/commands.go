package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"scalpbot/internal/models"
	"scalpbot/internal/queue"
)

type CommandHandler struct {
	Queue *queue.Service
}

func (h *CommandHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/commands")
	group.POST("", h.enqueueCommand)
	group.GET("", h.listCommands)
	group.GET("/:id", h.getCommand)
	group.GET("/:id/audit", h.getCommandAudit)
}

type enqueueRequest struct {
	Type           string          `json:"type" binding:"required"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
	Actor          string          `json:"actor"`
}

func (h *CommandHandler) enqueueCommand(c *gin.Context) {
	if h.Queue == nil {
		Error(c, http.StatusInternalServerError, "queue unavailable", nil)
		return
	}
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = "api"
	}
	var key *string
	if k := strings.TrimSpace(req.IdempotencyKey); k != "" {
		key = &k
	}
	var payload datatypes.JSON
	if len(req.Payload) > 0 {
		payload = datatypes.JSON(req.Payload)
	}

	cmdType := models.CommandType(strings.ToUpper(strings.TrimSpace(req.Type)))
	id, err := h.Queue.Enqueue(c.Request.Context(), actor, cmdType, payload, key)
	if err != nil {
		if errors.Is(err, queue.ErrInvalidCommandType) {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{"id": id, "type": string(cmdType)}, nil)
}

func (h *CommandHandler) listCommands(c *gin.Context) {
	if h.Queue == nil {
		Error(c, http.StatusInternalServerError, "queue unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	items, err := h.Queue.ListRecent(c.Request.Context(), limit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *CommandHandler) getCommand(c *gin.Context) {
	if h.Queue == nil {
		Error(c, http.StatusInternalServerError, "queue unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Queue.Get(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "command not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *CommandHandler) getCommandAudit(c *gin.Context) {
	if h.Queue == nil {
		Error(c, http.StatusInternalServerError, "queue unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	items, err := h.Queue.AuditTrail(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}
