package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/arkana-app/access-api/internal/metrics"
	"github.com/arkana-app/access-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type BetaHandler struct {
	service *service.BetaCodeService
}

func NewBetaHandler(service *service.BetaCodeService) *BetaHandler {
	return &BetaHandler{service: service}
}

// Validate redeems a beta code for the given identity.
// POST /api/beta/validate
func (h *BetaHandler) Validate(c *gin.Context) {
	var req struct {
		Code  string `json:"code" binding:"required"`
		Email string `json:"email" binding:"required,email"`
		Name  string `json:"name"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"valid":   false,
			"code":    service.KindInvalidCode,
			"message": "A code and a valid email are required.",
		})
		return
	}

	ctx := c.Request.Context()
	redemption, err := h.service.Validate(ctx, req.Code, req.Email, req.Name)
	if err != nil {
		if accessErr, ok := service.AsAccessError(err); ok {
			metrics.RedemptionsTotal.WithLabelValues(string(accessErr.Kind)).Inc()
			c.JSON(statusForKind(accessErr.Kind), gin.H{
				"valid":   false,
				"code":    accessErr.Kind,
				"message": accessErr.Message,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"valid":   false,
			"message": "Something went wrong. Please try again.",
		})
		return
	}

	metrics.RedemptionsTotal.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, gin.H{
		"valid":   true,
		"tier":    redemption.Tier,
		"message": "Welcome to the beta.",
	})
}

// CreateCode provisions a new beta code.
// POST /admin/codes
func (h *BetaHandler) CreateCode(c *gin.Context) {
	var req struct {
		Code      string     `json:"code" binding:"required"`
		Tier      string     `json:"tier"`
		MaxUses   int        `json:"max_uses" binding:"required,min=1"`
		ExpiresAt *time.Time `json:"expires_at"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	createdBy := c.GetString("email")

	ctx := c.Request.Context()
	code, err := h.service.CreateCode(ctx, req.Code, req.Tier, req.MaxUses, req.ExpiresAt, createdBy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, code)
}

// ListCodes returns all beta codes.
// GET /admin/codes
func (h *BetaHandler) ListCodes(c *gin.Context) {
	ctx := c.Request.Context()
	codes, err := h.service.ListCodes(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, codes)
}

// GetCode returns one beta code.
// GET /admin/codes/:id
func (h *BetaHandler) GetCode(c *gin.Context) {
	ctx := c.Request.Context()
	code, err := h.service.GetCode(ctx, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if code == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Beta code not found"})
		return
	}

	c.JSON(http.StatusOK, code)
}

// UpdateCode edits a code's caps, tier, expiry, or active flag. Codes are
// disabled, never deleted.
// PATCH /admin/codes/:id
func (h *BetaHandler) UpdateCode(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		Tier      *string    `json:"tier"`
		MaxUses   *int       `json:"max_uses"`
		IsActive  *bool      `json:"is_active"`
		ExpiresAt *time.Time `json:"expires_at"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := make(map[string]interface{})
	if req.Tier != nil {
		updates["tier"] = *req.Tier
	}
	if req.MaxUses != nil {
		if *req.MaxUses < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_uses must be at least 1"})
			return
		}
		updates["max_uses"] = *req.MaxUses
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.ExpiresAt != nil {
		updates["expires_at"] = *req.ExpiresAt
	}

	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No fields to update"})
		return
	}

	ctx := c.Request.Context()
	if err := h.service.UpdateCode(ctx, id, updates); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Beta code updated successfully"})
}

// ListCodeRedemptions returns redemptions for one code.
// GET /admin/codes/:id/redemptions
func (h *BetaHandler) ListCodeRedemptions(c *gin.Context) {
	codeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid code id"})
		return
	}

	limit, offset := pagination(c)

	ctx := c.Request.Context()
	redemptions, err := h.service.ListRedemptions(ctx, codeID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, redemptions)
}

// ListRedemptions returns redemptions across all codes.
// GET /admin/redemptions
func (h *BetaHandler) ListRedemptions(c *gin.Context) {
	limit, offset := pagination(c)

	ctx := c.Request.Context()
	redemptions, err := h.service.ListAllRedemptions(ctx, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, redemptions)
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 500 {
		limit = 50
	}

	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	return limit, offset
}
