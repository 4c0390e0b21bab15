package handler

import (
	"net/http"
	"strconv"

	"github.com/arkana-app/access-api/internal/metrics"
	"github.com/arkana-app/access-api/internal/service"
	"github.com/gin-gonic/gin"
)

type WaveHandler struct {
	service *service.WaveService
}

func NewWaveHandler(service *service.WaveService) *WaveHandler {
	return &WaveHandler{service: service}
}

// Current returns the open wave, or sold_out when every wave is full.
// GET /api/waves/current
func (h *WaveHandler) Current(c *gin.Context) {
	ctx := c.Request.Context()
	wave, err := h.service.CurrentWave(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if wave == nil {
		c.JSON(http.StatusOK, gin.H{"sold_out": true})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sold_out": false,
		"wave":     wave,
	})
}

// Join allocates a signup into the requested wave.
// POST /api/waves/join
func (h *WaveHandler) Join(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Name  string `json:"name"`
		Wave  *int   `json:"wave" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A valid email and wave number are required."})
		return
	}

	ctx := c.Request.Context()
	member, err := h.service.Allocate(ctx, req.Email, req.Name, *req.Wave)
	if err != nil {
		if accessErr, ok := service.AsAccessError(err); ok {
			metrics.SignupsTotal.WithLabelValues(strconv.Itoa(*req.Wave), string(accessErr.Kind)).Inc()
		}
		h.respondError(c, err)
		return
	}

	metrics.SignupsTotal.WithLabelValues(strconv.Itoa(member.Wave), "success").Inc()
	c.JSON(http.StatusCreated, gin.H{
		"member": member,
	})
}

// ListMembers returns allocated members.
// GET /admin/members
func (h *WaveHandler) ListMembers(c *gin.Context) {
	limit, offset := pagination(c)

	ctx := c.Request.Context()
	members, err := h.service.ListMembers(ctx, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, members)
}

// ListWaves returns every wave with occupancy.
// GET /admin/waves
func (h *WaveHandler) ListWaves(c *gin.Context) {
	ctx := c.Request.Context()
	waves, err := h.service.AllWaves(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, waves)
}

func (h *WaveHandler) respondError(c *gin.Context, err error) {
	if accessErr, ok := service.AsAccessError(err); ok {
		c.JSON(statusForKind(accessErr.Kind), gin.H{
			"error":   accessErr.Kind,
			"message": accessErr.Message,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong. Please try again."})
}
