package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/servicebook/booking-api/internal/middleware"
	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/pkg/errors"
	"github.com/servicebook/booking-api/pkg/httputil"
)

// ParamID parses the positive integer path parameter name. On failure it
// writes a 400 and returns false.
func ParamID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		httputil.RespondWithError(c, errors.BadRequest("invalid "+name, err))
		return 0, false
	}
	return id, true
}

// QueryID parses an optional positive integer query parameter.
func QueryID(c *gin.Context, name string) (*int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httputil.RespondWithError(c, errors.BadRequest("invalid "+name, err))
		return nil, false
	}
	return &id, true
}

// BindJSON decodes and validates the request body into dst.
func BindJSON(c *gin.Context, dst interface{}) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	if fields, ok := middleware.ValidationErrors(err); ok {
		_ = c.Error(errors.BadRequest("validation failed", err))
		c.AbortWithStatusJSON(400, gin.H{
			"status":  "error",
			"code":    errors.KindBadRequest.String(),
			"message": "validation failed",
			"errors":  fields,
		})
		return false
	}
	httputil.RespondWithError(c, errors.BadRequest("invalid request body", err))
	return false
}

// Actor returns the authenticated caller. Routes using it sit behind
// Authenticate, so a missing actor is answered with 401.
func Actor(c *gin.Context) (model.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		httputil.RespondWithError(c, errors.Unauthorized(nil))
	}
	return actor, ok
}
