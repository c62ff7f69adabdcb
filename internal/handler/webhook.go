package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/waveledger/internal/webhooks"
	"go.uber.org/zap"
)

// WebhookHandler handles HTTP requests for webhook subscriptions. Every route
// requires an actor token; subscriptions belong to that actor.
type WebhookHandler struct {
	svc    *webhooks.Service
	auth   gin.HandlerFunc
	logger *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(svc *webhooks.Service, auth gin.HandlerFunc, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{svc: svc, auth: auth, logger: logger}
}

// Register registers all webhook routes on the given router group.
func (h *WebhookHandler) Register(rg *gin.RouterGroup) {
	wh := rg.Group("/webhooks")
	wh.Use(h.auth)
	{
		wh.POST("", h.CreateSubscription)
		wh.GET("", h.ListSubscriptions)
		wh.DELETE("/:id", h.DeleteSubscription)
	}
}

// CreateSubscription handles POST /webhooks.
func (h *WebhookHandler) CreateSubscription(c *gin.Context) {
	var req webhooks.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.svc.Subscribe(c.Request.Context(), ActorFromCtx(c), &req)
	if err != nil {
		if errors.Is(err, webhooks.ErrUnknownEvent) || errors.Is(err, webhooks.ErrNoEvents) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("create webhook subscription", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create subscription"})
		return
	}

	// Return the secret once so the subscriber can verify signatures.
	c.JSON(http.StatusCreated, gin.H{
		"subscription": sub,
		"secret":       sub.Secret,
		"note":         "Store the secret securely. It will not be shown again.",
	})
}

// ListSubscriptions handles GET /webhooks, listing the actor's subscriptions.
func (h *WebhookHandler) ListSubscriptions(c *gin.Context) {
	subs, err := h.svc.ListByOwner(c.Request.Context(), ActorFromCtx(c))
	if err != nil {
		h.logger.Error("list webhook subscriptions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list subscriptions"})
		return
	}
	if subs == nil {
		subs = []*webhooks.WebhookSubscription{}
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs, "count": len(subs)})
}

// DeleteSubscription handles DELETE /webhooks/:id.
func (h *WebhookHandler) DeleteSubscription(c *gin.Context) {
	subID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription ID"})
		return
	}

	err = h.svc.Unsubscribe(c.Request.Context(), ActorFromCtx(c), subID)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, webhooks.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, webhooks.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		h.logger.Error("delete webhook subscription", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete subscription"})
	}
}
