// internal/handlers/common.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/freshshare/freshshare-api/internal/i18n"
	"github.com/freshshare/freshshare-api/internal/models"
	"github.com/freshshare/freshshare-api/internal/reservation"
	"github.com/freshshare/freshshare-api/internal/services"
	"github.com/freshshare/freshshare-api/internal/utils"
)

// actorFromContext builds the service caller from the claims set by AuthRequired.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists || userID == "" {
		utils.UnauthorizedResponse(c, "")
		return models.Actor{}, false
	}

	userType, _ := utils.GetUserTypeFromContext(c)
	return models.Actor{
		UserID:    userID,
		SiteAdmin: userType == string(models.UserTypeAdmin),
	}, true
}

// bindJSON decodes the body and, when validate is set, runs the struct tags.
// It writes the 400 response itself and reports whether the handler may go on.
func bindJSON(c *gin.Context, req interface{}, validate bool) bool {
	lang := utils.GetLangFromContext(c)
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}
	if !validate {
		return true
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}

// handleServiceError maps service sentinels onto the response envelope.
func handleServiceError(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)

	var notFound *services.NotFoundError
	switch {
	case errors.Is(err, services.ErrValidation):
		if validationErrors := utils.GetValidationErrors(err); len(validationErrors) > 0 {
			utils.ValidationErrorResponse(c, validationErrors)
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
	case errors.Is(err, services.ErrUnauthenticated):
		utils.UnauthorizedResponse(c, "")
	case errors.Is(err, services.ErrForbidden):
		utils.ForbiddenResponse(c, err.Error())
	case errors.As(err, &notFound):
		utils.NotFoundResponse(c, notFound.Resource)
	case errors.Is(err, services.ErrConflict):
		utils.ConflictResponse(c, err.Error())
	case errors.Is(err, reservation.ErrPieceOrderingDisabled):
		utils.UnprocessableEntityResponse(c, "PIECE_ORDERING_DISABLED", i18n.T(lang, i18n.KeyPieceOrderingDisabled))
	case errors.Is(err, services.ErrInvalidConfiguration):
		utils.UnprocessableEntityResponse(c, "INVALID_CONFIGURATION", i18n.T(lang, i18n.KeyInvalidConfiguration))
	default:
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).Error("Request failed")
		utils.InternalErrorResponse(c, "")
	}
}
