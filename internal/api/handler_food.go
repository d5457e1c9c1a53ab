package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"finfare-backend/internal/access"
	"finfare-backend/internal/model"
)

type foodPatchRequest struct {
	Name     string   `json:"name" binding:"required"`
	FoodType string   `json:"food_type" binding:"required"`
	Quantity *float64 `json:"quantity" binding:"required,min=0"`
}

// aquariumDevice authorizes the caller and loads the aquarium's device.
func (h *Handler) aquariumDevice(c *gin.Context, permission string) (*model.Device, bool) {
	aquariumID, ok := idParam(c, "aquarium_id")
	if !ok {
		return nil, false
	}
	if _, ok := h.authorize(c, aquariumID, permission); !ok {
		return nil, false
	}
	d, err := h.store.GetDeviceByAquarium(c.Request.Context(), aquariumID)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return d, true
}

// devicePatch loads a food patch and makes sure it is loaded in d.
func (h *Handler) devicePatch(c *gin.Context, d *model.Device) (*model.FoodPatch, bool) {
	patchID, ok := idParam(c, "patch_id")
	if !ok {
		return nil, false
	}
	p, err := h.store.GetFoodPatch(c.Request.Context(), patchID)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if p.DeviceID != d.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	return p, true
}

// ListFoodPatches returns the food loaded in the aquarium's device.
func (h *Handler) ListFoodPatches(c *gin.Context) {
	d, ok := h.aquariumDevice(c, access.ViewDevices)
	if !ok {
		return
	}
	patches, err := h.store.ListFoodPatches(c.Request.Context(), d.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, patches)
}

// CreateFoodPatch loads new food into the aquarium's device.
func (h *Handler) CreateFoodPatch(c *gin.Context) {
	var req foodPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, ok := h.aquariumDevice(c, access.ManageDevices)
	if !ok {
		return
	}

	p := &model.FoodPatch{Name: req.Name, FoodType: req.FoodType, Quantity: *req.Quantity, DeviceID: d.ID}
	if err := h.store.CreateFoodPatch(c.Request.Context(), p); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// UpdateFoodPatch replaces the name, food type and quantity of a patch.
func (h *Handler) UpdateFoodPatch(c *gin.Context) {
	var req foodPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, ok := h.aquariumDevice(c, access.ManageDevices)
	if !ok {
		return
	}
	p, ok := h.devicePatch(c, d)
	if !ok {
		return
	}

	p.Name, p.FoodType, p.Quantity = req.Name, req.FoodType, *req.Quantity
	if err := h.store.UpdateFoodPatch(c.Request.Context(), p); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteFoodPatch(c *gin.Context) {
	d, ok := h.aquariumDevice(c, access.ManageDevices)
	if !ok {
		return
	}
	p, ok := h.devicePatch(c, d)
	if !ok {
		return
	}
	if err := h.store.DeleteFoodPatch(c.Request.Context(), p.ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
