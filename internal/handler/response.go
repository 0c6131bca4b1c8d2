package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/config-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// RespondError translates the application error taxonomy to transport
// status codes. Version conflicts carry expected/actual so callers can
// re-read and resubmit without a second round trip.
func RespondError(c *gin.Context, err error) {
	var conflict *apperrors.VersionConflictError
	if errors.As(err, &conflict) {
		c.JSON(http.StatusConflict, &Response{
			Status:  "error",
			Message: err.Error(),
			Data: gin.H{
				"expected_version": conflict.Expected,
				"actual_version":   conflict.Actual,
			},
		})
		return
	}

	status := http.StatusInternalServerError
	switch apperrors.Code(err) {
	case apperrors.ErrNotFound:
		status = http.StatusNotFound
	case apperrors.ErrBadRequest, apperrors.ErrInvalidScope:
		status = http.StatusBadRequest
	case apperrors.ErrAlreadyExists:
		status = http.StatusConflict
	}
	c.JSON(status, NewErrorResponse(err.Error()))
}
