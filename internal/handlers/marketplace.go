// internal/handlers/marketplace.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/freshshare/freshshare-api/internal/i18n"
	"github.com/freshshare/freshshare-api/internal/services"
	"github.com/freshshare/freshshare-api/internal/utils"
)

type MarketplaceHandler struct {
	marketplaceService *services.MarketplaceService
}

func NewMarketplaceHandler(marketplaceService *services.MarketplaceService) *MarketplaceHandler {
	return &MarketplaceHandler{marketplaceService: marketplaceService}
}

// POST /marketplace
func (h *MarketplaceHandler) CreateListing(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req services.CreateListingRequest
	if !bindJSON(c, &req, false) {
		return
	}

	listing, err := h.marketplaceService.CreateListing(c.Request.Context(), actor, &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{"listing": listing})
}

// POST /marketplace/:id/pieces
func (h *MarketplaceHandler) SetPieces(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req services.SetPiecesRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Pieces == nil || *req.Pieces < 0 {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyPiecesInvalid), nil)
		return
	}

	result, err := h.marketplaceService.SetPieces(c.Request.Context(), actor, c.Param("id"), *req.Pieces)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}

// DELETE /marketplace/:id/pieces
func (h *MarketplaceHandler) CancelPieces(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	result, err := h.marketplaceService.CancelPieces(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}

// GET /marketplace/:id/pieces/status
func (h *MarketplaceHandler) PieceStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	status, err := h.marketplaceService.PieceStatus(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, status)
}
