package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"agroforward/internal/service"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, apiResponse{
		Code:    0,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// ServiceError maps the service error taxonomy onto distinct HTTP statuses.
// Losing an acceptance race (409) must stay distinguishable from an unknown
// id (404).
func ServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		Error(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, service.ErrNotFound):
		Error(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrConflict):
		Error(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, service.ErrDependency):
		Error(c, http.StatusBadGateway, err.Error(), nil)
	default:
		Error(c, http.StatusInternalServerError, err.Error(), nil)
	}
}
