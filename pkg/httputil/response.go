package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/servicebook/booking-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Status: "success",
		Data:   data,
	})
}

// RespondWithError sends an error response and records err on the context
// for the error logging middleware.
func RespondWithError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	message := "internal server error"
	code := errors.KindInternal.String()

	if appErr, ok := errors.As(err); ok {
		statusCode = appErr.StatusCode()
		code = appErr.Kind.String()
		if statusCode < http.StatusInternalServerError && appErr.Message != "" {
			message = appErr.Message
		} else if appErr.Kind == errors.KindTransactionAborted {
			message = appErr.Message
		}
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(statusCode, Response{
		Status:  "error",
		Message: message,
		Code:    code,
	})
}
