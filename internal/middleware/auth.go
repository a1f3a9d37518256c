package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/pkg/auth"
	"github.com/servicebook/booking-api/pkg/errors"
	"github.com/servicebook/booking-api/pkg/httputil"
)

const ContextActor = "actor"

type AuthMiddleware struct {
	jwt auth.JWTService
}

func NewAuthMiddleware(jwt auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// Authenticate verifies the bearer token and stores the caller as a model.Actor
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			httputil.RespondWithError(c, errors.Unauthorized(nil).WithMessage("missing authorization header"))
			return
		}
		if !m.authenticate(c) {
			return
		}
		c.Next()
	}
}

// OptionalAuthenticate identifies the caller when a token is sent. A bad
// token is still rejected.
func (m *AuthMiddleware) OptionalAuthenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" && !m.authenticate(c) {
			return
		}
		c.Next()
	}
}

func (m *AuthMiddleware) authenticate(c *gin.Context) bool {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		httputil.RespondWithError(c, errors.Unauthorized(nil).WithMessage("invalid authorization format"))
		return false
	}

	claims, err := m.jwt.ValidateToken(parts[1])
	if err != nil {
		httputil.RespondWithError(c, errors.Unauthorized(err).WithMessage("invalid token"))
		return false
	}

	userID, err := claims.UserID()
	role := model.Role(claims.Role)
	if err != nil || !role.Valid() || role == model.RoleSystem {
		httputil.RespondWithError(c, errors.Unauthorized(err).WithMessage("invalid token claims"))
		return false
	}

	c.Set(ContextActor, model.Actor{UserID: userID, Role: role, Email: claims.Email})
	return true
}

// RequireRole aborts with 403 unless the authenticated caller has one of roles
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			httputil.RespondWithError(c, errors.Unauthorized(nil))
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, errors.Forbidden("insufficient role"))
	}
}

func ActorFromContext(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}
