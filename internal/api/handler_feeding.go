package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"finfare-backend/internal/access"
	"finfare-backend/internal/connection"
	"finfare-backend/internal/feeding"
	"finfare-backend/internal/model"
	"finfare-backend/internal/mw"
)

type feedNowRequest struct {
	FoodType string `json:"food_type"`
}

// FeedNow feeds the aquarium once. The body is optional.
func (h *Handler) FeedNow(c *gin.Context) {
	aquariumID, ok := idParam(c, "aquarium_id")
	if !ok {
		return
	}
	var req feedNowRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := h.authorize(c, aquariumID, access.ManageFeeding); !ok {
		return
	}

	log.Info().Str("user_id", mw.UserID(c)).Int64("aquarium_id", aquariumID).Msg("manual feed requested")
	result, err := h.feeder.FeedNow(c.Request.Context(), feeding.Request{
		AquariumID: aquariumID,
		FoodType:   req.FoodType,
		Source:     model.SourceManual,
	})
	c.JSON(feedStatus(err), feedResult(result, err))
}

func feedStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, feeding.ErrDeviceNotFound), errors.Is(err, feeding.ErrNoFoodPatch):
		return http.StatusNotFound
	case errors.Is(err, feeding.ErrDeviceInactive), errors.Is(err, feeding.ErrFoodDepleted), errors.Is(err, feeding.ErrFeedInFlight):
		return http.StatusConflict
	case errors.Is(err, connection.ErrDeviceNotConnected):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// feedResult hides transport and database details from callers.
func feedResult(result feeding.Result, err error) feeding.Result {
	switch feedStatus(err) {
	case http.StatusServiceUnavailable:
		result.Message = "device not connected"
	case http.StatusInternalServerError:
		log.Error().Err(err).Msg("feed failed")
		result.Message = "internal error"
	}
	return result
}
