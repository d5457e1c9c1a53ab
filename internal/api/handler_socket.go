package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"finfare-backend/internal/connection"
)

// ServeDevice upgrades a device to a websocket and keeps its session until
// the socket closes. Only provisioned addresses are accepted.
func (h *Handler) ServeDevice(c *gin.Context) {
	address := c.Param("unique_address")
	if _, err := h.store.GetDeviceByAddress(c.Request.Context(), address); err != nil {
		writeError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the client.
		log.Warn().Err(err).Str("address", address).Msg("websocket upgrade failed")
		return
	}

	ch := connection.NewWSChannel(conn, h.wsConfig)
	if err := h.sessions.Serve(h.baseCtx, address, ch); err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			log.Debug().Int("code", closeErr.Code).Str("address", address).Msg("device socket closed")
			return
		}
		log.Warn().Err(err).Str("address", address).Msg("device session ended")
	}
}
