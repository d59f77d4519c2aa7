package handler

import (
	"auth_session/internal/models"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// POST /auth/register
func (h *Handler) Register(c *gin.Context) {
	const op = "handler.Register"

	log := h.log.With(slog.String("op", op))

	var creds models.SignUpCredentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		log.Error("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "wrong request format")

		return
	}

	user, err := h.serviceLayer.Register(c.Request.Context(), creds)
	if err != nil {
		log.Info("failed to create user", slog.Any("error", err))

		h.writeServiceError(c, log, err)

		return
	}

	c.JSON(http.StatusCreated, user)
}

// POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	const op = "handler.Login"

	log := h.log.With(slog.String("op", op))

	var creds models.SignInCredentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		log.Error("failed to unmarshal credentials", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "wrong request format")

		return
	}

	pair, err := h.serviceLayer.Login(c.Request.Context(), creds)
	if err != nil {
		log.Info("login failed", slog.Any("error", err))

		h.writeServiceError(c, log, err)

		return
	}

	h.setSessionCookies(c, pair)
	c.JSON(http.StatusOK, sessionResponse{
		AccessExpiresAt:  pair.Access.ExpiresAt,
		RefreshExpiresAt: pair.Refresh.ExpiresAt,
	})
}

// POST /auth/refresh
func (h *Handler) RefreshTokens(c *gin.Context) {
	const op = "handler.RefreshTokens"

	log := h.log.With(slog.String("op", op))

	token, err := c.Cookie(refreshCookie)
	if err != nil || token == "" {
		log.Info("refresh cookie missing")

		newErrorResponse(c, http.StatusUnauthorized, "unauthorized")

		return
	}

	pair, err := h.serviceLayer.Refresh(c.Request.Context(), token)
	if err != nil {
		log.Info("refresh failed", slog.Any("error", err))

		h.writeServiceError(c, log, err)

		return
	}

	h.setSessionCookies(c, pair)
	c.JSON(http.StatusOK, sessionResponse{
		AccessExpiresAt:  pair.Access.ExpiresAt,
		RefreshExpiresAt: pair.Refresh.ExpiresAt,
	})
}

// POST /auth/logout
func (h *Handler) Logout(c *gin.Context) {
	const op = "handler.Logout"

	log := h.log.With(slog.String("op", op))

	h.expireSessionCookies(c, h.serviceLayer.Logout())

	log.Info("user logout")

	c.JSON(http.StatusOK, gin.H{"message": "Logout"})
}

// GET /auth/profile
func (h *Handler) GetProfile(c *gin.Context) {
	const op = "handler.GetProfile"

	log := h.log.With(slog.String("op", op))

	claims, ok := claimsFromContext(c)
	if !ok {
		log.Error("failed to get claims from context")

		newErrorResponse(c, http.StatusUnauthorized, "unauthorized")

		return
	}

	user, err := h.serviceLayer.GetProfile(c.Request.Context(), claims.Subject)
	if err != nil {
		log.Info("failed to get profile", slog.Any("error", err))

		h.writeServiceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, user)
}

type whoAmIResponse struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

// GET /admin/me
func (h *Handler) WhoAmI(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "unauthorized")

		return
	}

	c.JSON(http.StatusOK, whoAmIResponse{Email: claims.Subject, Role: claims.Role})
}
