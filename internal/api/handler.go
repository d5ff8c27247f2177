package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"laundromat-backend/internal/order"
	"laundromat-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	orders  *order.Manager
	store   store.Store
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(orders *order.Manager, s store.Store, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		orders:  orders,
		store:   s,
		webpush: webpushOptions,
	}
}

// userID returns the authenticated user id injected by the external auth
// layer, aborting with 401 when it is absent.
func userID(c *gin.Context) (string, bool) {
	id := c.GetHeader("X-User-ID")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return "", false
	}
	return id, true
}

// fail maps a core error to an HTTP status and short error body.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrInvalidPaymentMethod),
		errors.Is(err, order.ErrUnknownWashingMode),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrNoCapacity):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}
}
