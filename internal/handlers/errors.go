package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"slide2video/internal/backend"
	"slide2video/internal/models"
	"slide2video/internal/wizard"
)

// respondError maps wizard and backend errors onto HTTP statuses.
func respondError(c *gin.Context, action string, err error) {
	status, resp := errorResponse(action, err)
	c.JSON(status, resp)
}

func errorResponse(action string, err error) (int, models.ErrorResponse) {
	resp := models.ErrorResponse{Error: action, Message: err.Error()}

	var validation *wizard.ValidationError
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &validation):
		resp.Message = validation.Message
		return http.StatusBadRequest, resp
	case errors.Is(err, wizard.ErrSceneNotFound):
		return http.StatusNotFound, resp
	case errors.Is(err, wizard.ErrBusy),
		errors.Is(err, wizard.ErrSceneBusy),
		errors.Is(err, wizard.ErrNoStagedFile),
		errors.Is(err, wizard.ErrNoBackground),
		errors.Is(err, wizard.ErrNoScenes),
		errors.Is(err, wizard.ErrNoCompositor),
		errors.Is(err, wizard.ErrSuperseded):
		return http.StatusConflict, resp
	case errors.As(err, &apiErr):
		resp.Message = apiErr.Message
		resp.Code = apiErr.Code
		return http.StatusBadGateway, resp
	default:
		return http.StatusInternalServerError, resp
	}
}
