package handler

import (
	"auth_session/internal/models"
	"auth_session/internal/service"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

type Options struct {
	SecureCookies bool
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

type Handler struct {
	serviceLayer service.Service
	log          *slog.Logger
	opts         Options
}

type errorResponse struct {
	Message string `json:"message"`
}

type sessionResponse struct {
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func newErrorResponse(c *gin.Context, statusCode int, errMessage string) {
	c.AbortWithStatusJSON(statusCode, errorResponse{Message: errMessage})
}

func NewHandler(srvc service.Service, lgr *slog.Logger, opts Options) *Handler {
	return &Handler{
		serviceLayer: srvc,
		log:          lgr,
		opts:         opts,
	}
}

func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.log))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.opts.Metrics))
	}

	auth := router.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.RefreshTokens)
		auth.POST("/logout", h.Logout)

		auth.GET("/profile", h.AuthMiddleware(), h.GetProfile)
	}
	admin := router.Group("/admin")
	admin.Use(h.AuthMiddleware(), RequireRole(models.RoleAdmin))
	{
		admin.GET("/me", h.WhoAmI)
	}

	return router
}

// writeServiceError maps service errors to responses. Every authentication
// failure gets the same status and body.
func (h *Handler) writeServiceError(c *gin.Context, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrAuthFailed):
		newErrorResponse(c, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, service.ErrTooManyAttempts):
		log.Warn("login throttled")
		newErrorResponse(c, http.StatusTooManyRequests, "too many attempts")
	case errors.Is(err, service.ErrUserExists):
		newErrorResponse(c, http.StatusConflict, "user already exists")
	case errors.Is(err, service.ErrInvalidInput):
		newErrorResponse(c, http.StatusBadRequest, "invalid user data")
	case errors.Is(err, service.ErrStorageUnavailable):
		log.Error("storage unavailable", slog.Any("error", err))
		newErrorResponse(c, http.StatusServiceUnavailable, "service unavailable")
	default:
		log.Error("internal error", slog.Any("error", err))
		newErrorResponse(c, http.StatusInternalServerError, "internal error")
	}
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request completed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
