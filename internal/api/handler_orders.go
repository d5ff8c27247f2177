package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"laundromat-backend/internal/model"
	"laundromat-backend/internal/store"
)

type createOrderRequest struct {
	WashingMode   string `json:"washingMode" binding:"required"`
	IsSoak        bool   `json:"isSoak"`
	PaymentMethod string `json:"paymentMethod" binding:"required"`
}

// CreateOrder handles POST /api/orders.
func (h *Handler) CreateOrder(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.orders.Create(c.Request.Context(), uid, req.WashingMode, req.IsSoak, req.PaymentMethod)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// ListOrders handles GET /api/orders, returning the caller's orders.
func (h *Handler) ListOrders(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	views, err := h.orders.OrdersForUser(c.Request.Context(), uid)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": views})
}

// GetOrder handles GET /api/orders/:id.
func (h *Handler) GetOrder(c *gin.Context) {
	view, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// SearchOrders handles GET /api/orders/search with name/authCode/status
// filters and page/limit pagination.
func (h *Handler) SearchOrders(c *gin.Context) {
	params := store.SearchParams{
		CustomerName: c.Query("name"),
		AuthCode:     c.Query("authCode"),
		Page:         intQuery(c, "page", 1),
		Limit:        intQuery(c, "limit", 20),
	}
	if raw := c.Query("status"); raw != "" {
		status, err := model.ParseOrderStatus(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		params.Status = status
	}

	result, err := h.orders.Search(c.Request.Context(), params)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orders": result.Orders,
		"pagination": gin.H{
			"total":      result.Total,
			"page":       result.Page,
			"limit":      result.Limit,
			"totalPages": result.TotalPages,
		},
	})
}

type updateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateOrderStatus handles PATCH /api/orders/:id/status, the manual
// administrative override.
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req updateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
