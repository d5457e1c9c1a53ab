package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"finfare-backend/internal/access"
	"finfare-backend/internal/model"
	"finfare-backend/internal/store"
)

type deviceResponse struct {
	model.Device
	Connected bool `json:"connected"`
}

type createDeviceRequest struct {
	UniqueAddress string `json:"unique_address" binding:"required"`
	IsActive      bool   `json:"is_active"`
}

type updateDeviceRequest struct {
	UniqueAddress *string `json:"unique_address"`
	AquariumID    *int64  `json:"aquarium_id"`
}

func (h *Handler) deviceResponse(d *model.Device) deviceResponse {
	return deviceResponse{Device: *d, Connected: h.registry.IsConnected(d.UniqueAddress)}
}

// CreateDevice provisions the device of an aquarium.
func (h *Handler) CreateDevice(c *gin.Context) {
	aquariumID, ok := idParam(c, "aquarium_id")
	if !ok {
		return
	}
	var req createDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := h.authorize(c, aquariumID, access.ManageDevices); !ok {
		return
	}

	d := &model.Device{UniqueAddress: req.UniqueAddress, AquariumID: aquariumID, IsActive: req.IsActive}
	if err := h.store.CreateDevice(c.Request.Context(), d); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.deviceResponse(d))
}

// GetDevice returns the device of an aquarium and whether it is online.
func (h *Handler) GetDevice(c *gin.Context) {
	aquariumID, ok := idParam(c, "aquarium_id")
	if !ok {
		return
	}
	if _, ok := h.authorize(c, aquariumID, access.ViewDevices); !ok {
		return
	}

	d, err := h.store.GetDeviceByAquarium(c.Request.Context(), aquariumID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.deviceResponse(d))
}

// UpdateDevice changes the address of a device or moves it to another aquarium.
func (h *Handler) UpdateDevice(c *gin.Context) {
	aquariumID, ok := idParam(c, "aquarium_id")
	if !ok {
		return
	}
	var req updateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UniqueAddress != nil && *req.UniqueAddress == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unique_address must not be empty"})
		return
	}
	if _, ok := h.authorize(c, aquariumID, access.ManageDevices); !ok {
		return
	}
	if req.AquariumID != nil && *req.AquariumID != aquariumID {
		if _, ok := h.authorize(c, *req.AquariumID, access.ManageDevices); !ok {
			return
		}
	}

	ctx := c.Request.Context()
	d, err := h.store.GetDeviceByAquarium(ctx, aquariumID)
	if err != nil {
		writeError(c, err)
		return
	}
	previousAddress := d.UniqueAddress

	d, err = h.store.UpdateDevice(ctx, d.ID, store.DeviceChanges{UniqueAddress: req.UniqueAddress, AquariumID: req.AquariumID})
	if err != nil {
		writeError(c, err)
		return
	}
	if d.UniqueAddress != previousAddress {
		// Drop the socket opened under the old address; the device reconnects with the new one.
		h.registry.Disconnect(previousAddress)
	}
	c.JSON(http.StatusOK, h.deviceResponse(d))
}

// ActivateDevice switches the device of an aquarium on.
func (h *Handler) ActivateDevice(c *gin.Context) {
	h.setActive(c, true)
}

// DeactivateDevice switches the device of an aquarium off.
func (h *Handler) DeactivateDevice(c *gin.Context) {
	h.setActive(c, false)
}

func (h *Handler) setActive(c *gin.Context, active bool) {
	aquariumID, ok := idParam(c, "aquarium_id")
	if !ok {
		return
	}
	if _, ok := h.authorize(c, aquariumID, access.ManageDevices); !ok {
		return
	}

	delivered, err := h.controller.SetActive(c.Request.Context(), aquariumID, active)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_active": active, "delivered": delivered})
}
