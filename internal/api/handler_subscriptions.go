package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"finfare-backend/internal/access"
	"finfare-backend/internal/model"
)

type putSubscriptionRequest struct {
	Endpoint            string  `json:"endpoint" binding:"required"`
	P256DH              string  `json:"p256dh" binding:"required"`
	Auth                string  `json:"auth" binding:"required"`
	SubscribedAquariums []int64 `json:"subscribed_aquariums"`
}

// PutSubscription creates or replaces a subscription and the aquariums it follows.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	// Push carries aquarium names and alerts, so every aquarium must be visible to the caller.
	for _, aquariumID := range req.SubscribedAquariums {
		if _, ok := h.authorize(c, aquariumID, access.ViewWaterParameters); !ok {
			return
		}
	}

	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	}
	if err := h.store.PutSubscription(c.Request.Context(), &subscription, req.SubscribedAquariums); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.store.DeleteSubscription(c.Request.Context(), req.Endpoint); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// rawQueryParam returns the value of key without URL decoding. Push
// endpoints are compared byte for byte.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

// GetSubscription handles the retrieval of a subscription.
func (h *Handler) GetSubscription(c *gin.Context) {
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}

	aquariumIDs, err := h.store.GetSubscriptionAquariums(c.Request.Context(), raw)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscribed_aquariums": aquariumIDs})
}

// GetVAPIDPublicKey returns the key browsers subscribe with. Push is
// optional, so a missing key is reported rather than treated as an error.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications are disabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
