// internal/handlers/group_product.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/freshshare/freshshare-api/internal/i18n"
	"github.com/freshshare/freshshare-api/internal/models"
	"github.com/freshshare/freshshare-api/internal/ranking"
	"github.com/freshshare/freshshare-api/internal/services"
	"github.com/freshshare/freshshare-api/internal/utils"
)

type GroupProductHandler struct {
	groupService *services.GroupProductService
}

func NewGroupProductHandler(groupService *services.GroupProductService) *GroupProductHandler {
	return &GroupProductHandler{groupService: groupService}
}

// POST /groups
func (h *GroupProductHandler) CreateGroup(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req services.CreateGroupRequest
	if !bindJSON(c, &req, false) {
		return
	}

	result, err := h.groupService.CreateGroup(c.Request.Context(), actor, &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, result)
}

// POST /groups/:id/join
func (h *GroupProductHandler) JoinGroup(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	group, err := h.groupService.JoinGroup(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"group": group})
}

// GET /groups/:id/products?status=&mine=&pinned=
func (h *GroupProductHandler) ListProducts(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	filter, ok := parseProductFilter(c)
	if !ok {
		return
	}

	composition, err := h.groupService.ListProducts(c.Request.Context(), actor, c.Param("id"), filter)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, composition)
}

// POST /groups/:id/products
func (h *GroupProductHandler) SuggestProduct(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req services.SuggestProductRequest
	if !bindJSON(c, &req, false) {
		return
	}

	result, err := h.groupService.Suggest(c.Request.Context(), actor, c.Param("id"), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, result)
}

// POST /groups/:id/products/:productId/vote
func (h *GroupProductHandler) Vote(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req services.VoteRequest
	if !bindJSON(c, &req, true) {
		return
	}

	result, err := h.groupService.Vote(c.Request.Context(), actor, c.Param("id"), c.Param("productId"), req.Vote)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}

// PATCH /groups/:id/products/:productId
func (h *GroupProductHandler) SetPinned(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req services.PinRequest
	if !bindJSON(c, &req, true) {
		return
	}

	result, err := h.groupService.SetPinned(c.Request.Context(), actor, c.Param("id"), c.Param("productId"), *req.Pinned)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}

// DELETE /groups/:id/products/:productId
func (h *GroupProductHandler) RemoveProduct(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	composition, err := h.groupService.Remove(c.Request.Context(), actor, c.Param("id"), c.Param("productId"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, composition)
}

// PUT /groups/:id/products/capacity
func (h *GroupProductHandler) SetCapacity(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req services.CapacityRequest
	if !bindJSON(c, &req, true) {
		return
	}

	composition, err := h.groupService.SetCapacity(c.Request.Context(), actor, c.Param("id"), *req.MaxActiveProducts)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, composition)
}

func parseProductFilter(c *gin.Context) (ranking.Filter, bool) {
	lang := utils.GetLangFromContext(c)
	var filter ranking.Filter

	switch status := models.ProductStatus(c.Query("status")); status {
	case "":
	case models.ProductStatusActive, models.ProductStatusRequested:
		filter.Status = status
	default:
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "status"), nil)
		return filter, false
	}

	if mineStr := c.Query("mine"); mineStr != "" {
		mine, err := strconv.ParseBool(mineStr)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "mine"), nil)
			return filter, false
		}
		filter.Mine = mine
	}

	if pinnedStr := c.Query("pinned"); pinnedStr != "" {
		pinned, err := strconv.ParseBool(pinnedStr)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "pinned"), nil)
			return filter, false
		}
		filter.Pinned = &pinned
	}

	return filter, true
}
