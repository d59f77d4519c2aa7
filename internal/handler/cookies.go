package handler

import (
	"auth_session/internal/models"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *Handler) setSessionCookies(c *gin.Context, pair models.SessionPair) {
	h.setTokenCookie(c, accessCookie, pair.Access)
	h.setTokenCookie(c, refreshCookie, pair.Refresh)
}

func (h *Handler) setTokenCookie(c *gin.Context, name string, tok models.IssuedToken) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    tok.Value,
		Path:     "/",
		Expires:  tok.ExpiresAt.UTC(),
		MaxAge:   int(tok.ExpiresAt.Sub(tok.IssuedAt) / time.Second),
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// expireSessionCookies sets an already elapsed expiry instead of deleting
// the cookies, since deletion is not reliably honoured by clients.
func (h *Handler) expireSessionCookies(c *gin.Context, instr models.ExpiryInstruction) {
	for _, name := range []string{accessCookie, refreshCookie} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  instr.ExpiresAt.UTC(),
			HttpOnly: true,
			Secure:   h.opts.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
