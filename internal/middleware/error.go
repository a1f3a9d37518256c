package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/servicebook/booking-api/pkg/errors"
	"github.com/servicebook/booking-api/pkg/httputil"
)

// ErrorHandler logs errors attached to the context and writes an error
// envelope when a handler attached one without responding.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			var ev *zerolog.Event
			if appErr, ok := errors.As(e.Err); ok && appErr.StatusCode() < 500 {
				ev = log.Debug()
			} else {
				ev = log.Error()
			}
			ev.Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("kind", errors.KindOf(e.Err).String()).
				Msg("Request error")
		}

		if !c.Writer.Written() {
			httputil.RespondWithError(c, c.Errors.Last().Err)
		}
	}
}
