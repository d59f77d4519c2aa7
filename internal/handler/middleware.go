package handler

import (
	"auth_session/internal/auth"
	"auth_session/internal/models"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// AuthMiddleware accepts the access token from its cookie or, for non-browser
// clients, from an "Authorization: Bearer" header.
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := accessToken(c)
		if token == "" {
			newErrorResponse(c, http.StatusUnauthorized, "unauthorized")

			return
		}

		claims, err := h.serviceLayer.Authenticate(token)
		if err != nil {
			h.log.Debug("access denied", slog.String("path", c.FullPath()), slog.Any("error", err))

			newErrorResponse(c, http.StatusUnauthorized, "unauthorized")

			return
		}

		c.Set(claimsKey, claims)

		c.Next()
	}
}

// RequireRole must run after AuthMiddleware.
func RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := claimsFromContext(c)
		if !ok {
			newErrorResponse(c, http.StatusUnauthorized, "unauthorized")

			return
		}

		if claims.Role != role {
			newErrorResponse(c, http.StatusForbidden, "forbidden")

			return
		}

		c.Next()
	}
}

func accessToken(c *gin.Context) string {
	if token, err := c.Cookie(accessCookie); err == nil && token != "" {
		return token
	}

	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}

	return ""
}

func claimsFromContext(c *gin.Context) (auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return auth.Claims{}, false
	}

	claims, ok := v.(auth.Claims)
	return claims, ok
}
