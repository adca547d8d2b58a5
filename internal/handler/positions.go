package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scalpbot/internal/repository"
)

type PositionHandler struct {
	Repo repository.Repository
}

func (h *PositionHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/positions")
	group.GET("", h.listPositions)
	group.GET("/:pair", h.getPosition)
}

func (h *PositionHandler) listPositions(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListOpenPositions(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *PositionHandler) getPosition(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	pair := c.Param("pair")
	item, err := h.Repo.GetOpenPosition(c.Request.Context(), pair)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "no open position for pair", nil)
		return
	}
	Ok(c, item, nil)
}
