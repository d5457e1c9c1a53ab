package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"finfare-backend/internal/access"
)

const (
	defaultWaterLimit = 100
	maxWaterLimit     = 1000
)

// ListWaterParameters returns the latest readings of an aquarium, newest first.
func (h *Handler) ListWaterParameters(c *gin.Context) {
	aquariumID, ok := idParam(c, "aquarium_id")
	if !ok {
		return
	}
	limit := defaultWaterLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxWaterLimit)
	}
	if _, ok := h.authorize(c, aquariumID, access.ViewWaterParameters); !ok {
		return
	}

	params, err := h.store.ListWaterParameters(c.Request.Context(), aquariumID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, params)
}
