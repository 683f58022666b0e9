// internal/handlers/order.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/freshshare/freshshare-api/internal/services"
	"github.com/freshshare/freshshare-api/internal/utils"
)

type OrderHandler struct {
	orderService *services.OrderService
}

func NewOrderHandler(orderService *services.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// POST /orders/quick
func (h *OrderHandler) CreateQuickOrder(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req services.QuickOrderRequest
	if !bindJSON(c, &req, false) {
		return
	}

	result, err := h.orderService.CreateQuickOrder(c.Request.Context(), actor, &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, result)
}

// GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"order": order})
}

// POST /orders/:id/reorder
func (h *OrderHandler) Reorder(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	result, err := h.orderService.Reorder(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}
