package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/princeprakhar/movie-watchlist/internal/authz"
	"github.com/princeprakhar/movie-watchlist/internal/services"
	"github.com/princeprakhar/movie-watchlist/internal/types"
	"github.com/princeprakhar/movie-watchlist/internal/utils"
	"github.com/princeprakhar/movie-watchlist/pkg/logger"
)

const identityKey = "identity"

const (
	msgNotAuthenticated = "Authentication credentials were not provided."
	msgInvalidToken     = "Invalid token."
	msgInvalidHeader    = "Invalid token header. No credentials provided."
	msgNoPermission     = "You do not have permission to perform this action."
)

// Authenticator resolves a bearer token to the caller.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*types.Identity, error)
}

// Authenticate attaches the caller to the request when an Authorization
// header is present. Requests without one continue anonymously; a header
// that does not resolve is rejected.
func Authenticate(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		scheme, token, found := strings.Cut(header, " ")
		token = strings.TrimSpace(token)
		if !found || token == "" || (!strings.EqualFold(scheme, "Bearer") && !strings.EqualFold(scheme, "Token")) {
			utils.SendUnauthorized(c, msgInvalidHeader)
			c.Abort()
			return
		}

		identity, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, services.ErrInvalidToken) {
				utils.SendUnauthorized(c, msgInvalidToken)
			} else {
				logger.WithError(err).Error("Token lookup failed")
				utils.SendInternalError(c)
			}
			c.Abort()
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequireAuth rejects anonymous callers.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentIdentity(c) == nil {
			utils.SendUnauthorized(c, msgNotAuthenticated)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequirePermission lets the request through when the caller's role may
// perform action on object. Anonymous callers that lack it get 401, others 403.
func RequirePermission(enforcer *authz.Enforcer, object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := CurrentIdentity(c)
		if enforcer.Allowed(types.RoleName(identity), object, action) {
			c.Next()
			return
		}

		if identity == nil {
			utils.SendUnauthorized(c, msgNotAuthenticated)
		} else {
			utils.SendForbidden(c, msgNoPermission)
		}
		c.Abort()
	}
}

// CurrentIdentity returns the authenticated caller or nil.
func CurrentIdentity(c *gin.Context) *types.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, _ := v.(*types.Identity)
	return identity
}
