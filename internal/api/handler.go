package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"finfare-backend/internal/access"
	"finfare-backend/internal/connection"
	"finfare-backend/internal/device"
	"finfare-backend/internal/feeding"
	"finfare-backend/internal/model"
	"finfare-backend/internal/mw"
	"finfare-backend/internal/store"
)

// Feeder runs manual feeds.
type Feeder interface {
	FeedNow(ctx context.Context, req feeding.Request) (feeding.Result, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	access     access.Checker
	controller *device.Controller
	feeder     Feeder
	sessions   *device.Sessions
	registry   *connection.Registry
	webpush    *webpush.Options

	upgrader websocket.Upgrader
	wsConfig connection.WSConfig
	// baseCtx outlives single requests; device sessions run on it.
	baseCtx context.Context
}

// Deps lists what the API is built from.
type Deps struct {
	Store      store.Store
	Access     access.Checker
	Controller *device.Controller
	Feeder     Feeder
	Sessions   *device.Sessions
	Registry   *connection.Registry
	Webpush    *webpush.Options
	WSConfig   connection.WSConfig
	BaseCtx    context.Context
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	baseCtx := d.BaseCtx
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Handler{
		store:      d.Store,
		access:     d.Access,
		controller: d.Controller,
		feeder:     d.Feeder,
		sessions:   d.Sessions,
		registry:   d.Registry,
		webpush:    d.Webpush,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Devices are not browsers and send no Origin worth checking.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		wsConfig: d.WSConfig,
		baseCtx:  baseCtx,
	}
}

// idParam parses a positive integer path parameter, answering 400 otherwise.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// authorize loads the aquarium and checks that the caller holds permission in
// its company. It writes the error response and returns false on failure.
func (h *Handler) authorize(c *gin.Context, aquariumID int64, permission string) (*model.Aquarium, bool) {
	aquarium, err := h.store.GetAquarium(c.Request.Context(), aquariumID)
	if err != nil {
		writeError(c, err)
		return nil, false
	}

	ok, err := h.access.HasPermission(c.Request.Context(), mw.UserID(c), aquarium.CompanyID, permission)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
		return nil, false
	}
	return aquarium, true
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and answered with a generic 500.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, device.ErrUnknownDevice):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict"})
	case errors.Is(err, device.ErrAlreadyActive):
		c.JSON(http.StatusConflict, gin.H{"error": "device already active"})
	case errors.Is(err, device.ErrAlreadyInactive):
		c.JSON(http.StatusConflict, gin.H{"error": "device already inactive"})
	case errors.Is(err, store.ErrInsufficientFood):
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must not be negative"})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
