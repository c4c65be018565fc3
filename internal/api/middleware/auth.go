package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/adamscao/ovpnbot/internal/audit"
	"github.com/adamscao/ovpnbot/internal/auth"
	"github.com/adamscao/ovpnbot/internal/models"
	"github.com/gin-gonic/gin"
)

// failureWindow is the period over which failed admin logins are counted
const failureWindow = 15 * time.Minute

// FailureCounter counts recent unsuccessful audit entries of one source
type FailureCounter interface {
	CountFailures(ctx context.Context, action, source string, since time.Time) (int, error)
}

// AdminAuthConfig configures AdminAuth
type AdminAuthConfig struct {
	Verifier *auth.AdminVerifier
	Trail    *audit.Trail
	// Failures and MaxFailures enable a lockout once MaxFailures failed API
	// attempts were recorded within the last 15 minutes. Refusals from other
	// sources (the chat allow-list) do not count. Either may be unset.
	Failures    FailureCounter
	MaxFailures int
}

// AdminAuth middleware checks the admin token and, when configured, the
// X-Admin-TOTP second factor. Authenticated requests carry the client as
// audit actor in their context.
func AdminAuth(cfg AdminAuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		clientIP := clientIP(c)

		if cfg.Failures != nil && cfg.MaxFailures > 0 {
			n, err := cfg.Failures.CountFailures(ctx, models.ActionAuthFailed, models.SourceAPI, time.Now().Add(-failureWindow))
			if err == nil && n >= cfg.MaxFailures {
				c.JSON(http.StatusTooManyRequests, gin.H{
					"error":   "too_many_attempts",
					"message": "Too many failed authentication attempts, try again later",
				})
				c.Abort()
				return
			}
		}

		err := cfg.Verifier.Verify(c.GetHeader("X-Admin-Token"), c.GetHeader("X-Admin-TOTP"))
		if err != nil {
			cfg.Trail.Record(ctx, &models.AuditLog{
				Action:   models.ActionAuthFailed,
				Actor:    clientIP,
				Source:   models.SourceAPI,
				Success:  false,
				ErrorMsg: err.Error(),
			})

			status, code := http.StatusForbidden, "forbidden"
			if errors.Is(err, auth.ErrTokenRequired) || errors.Is(err, auth.ErrTOTPRequired) {
				status, code = http.StatusUnauthorized, "unauthorized"
			}

			c.JSON(status, gin.H{
				"error":   code,
				"message": err.Error(),
			})
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(audit.WithActor(ctx, models.SourceAPI, clientIP))
		c.Next()
	}
}

func clientIP(c *gin.Context) string {
	if ip := c.GetHeader("X-Forwarded-For"); ip != "" {
		first, _, _ := strings.Cut(ip, ",")
		return strings.TrimSpace(first)
	}
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}
	return c.ClientIP()
}
