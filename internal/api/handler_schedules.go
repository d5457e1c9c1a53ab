package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"finfare-backend/internal/access"
	"finfare-backend/internal/model"
	"finfare-backend/internal/parse"
)

type scheduleRequest struct {
	FoodType      string `json:"food_type" binding:"required"`
	ScheduledTime string `json:"scheduled_time" binding:"required"`
}

// normalize rewrites ScheduledTime as HH:MM:SS. It answers 400 on bad input.
func (r *scheduleRequest) normalize(c *gin.Context) bool {
	tod, err := parse.ParseTimeOfDay(r.ScheduledTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	r.ScheduledTime = tod.String()
	return true
}

func (h *Handler) ListFeedingSchedules(c *gin.Context) {
	aquariumID, ok := idParam(c, "aquarium_id")
	if !ok {
		return
	}
	if _, ok := h.authorize(c, aquariumID, access.ViewFeedingSchedules); !ok {
		return
	}

	schedules, err := h.store.ListAquariumSchedules(c.Request.Context(), aquariumID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, schedules)
}

// CreateFeedingSchedule adds a daily feed to an aquarium.
func (h *Handler) CreateFeedingSchedule(c *gin.Context) {
	aquariumID, ok := idParam(c, "aquarium_id")
	if !ok {
		return
	}
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.normalize(c) {
		return
	}
	if _, ok := h.authorize(c, aquariumID, access.ManageFeedingSchedules); !ok {
		return
	}

	s := &model.FeedingSchedule{AquariumID: aquariumID, FoodType: req.FoodType, ScheduledTime: req.ScheduledTime}
	if err := h.store.CreateFeedingSchedule(c.Request.Context(), s); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// schedule loads the schedule named in the path and authorizes the caller on its aquarium.
func (h *Handler) schedule(c *gin.Context, permission string) (*model.FeedingSchedule, bool) {
	scheduleID, ok := idParam(c, "schedule_id")
	if !ok {
		return nil, false
	}
	s, err := h.store.GetFeedingSchedule(c.Request.Context(), scheduleID)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if _, ok := h.authorize(c, s.AquariumID, permission); !ok {
		return nil, false
	}
	return s, true
}

func (h *Handler) GetFeedingSchedule(c *gin.Context) {
	s, ok := h.schedule(c, access.ViewFeedingSchedules)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s)
}

// UpdateFeedingSchedule changes the food type and time of a schedule.
// LastRunAt is kept, so moving the time earlier today does not feed twice.
func (h *Handler) UpdateFeedingSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.normalize(c) {
		return
	}
	s, ok := h.schedule(c, access.ManageFeedingSchedules)
	if !ok {
		return
	}

	s.FoodType, s.ScheduledTime = req.FoodType, req.ScheduledTime
	if err := h.store.UpdateFeedingSchedule(c.Request.Context(), s); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) DeleteFeedingSchedule(c *gin.Context) {
	s, ok := h.schedule(c, access.ManageFeedingSchedules)
	if !ok {
		return
	}
	if err := h.store.DeleteFeedingSchedule(c.Request.Context(), s.ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
