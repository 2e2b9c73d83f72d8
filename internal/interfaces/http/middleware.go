package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

// userIDKey is the gin context key holding the authenticated user id
const userIDKey = "user_id"

// AuthConfig configures bearer token verification
type AuthConfig struct {
	Secret   string
	Audience string
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// bodyLimitMiddleware caps request bodies; reads past the limit fail with
// *http.MaxBytesError.
func bodyLimitMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// authMiddleware accepts HS256 bearer tokens and stores the subject as the
// caller's user id
func authMiddleware(cfg AuthConfig, logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw := strings.TrimPrefix(header, "Bearer ")
		if header == "" || raw == header {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		userID, err := parseToken(cfg, raw)
		if err != nil {
			logger.Warn("Rejected bearer token", "error", err, "client_ip", c.ClientIP())
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func parseToken(cfg AuthConfig, raw string) (string, error) {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("token is not valid")
	}
	if cfg.Audience != "" && !claims.VerifyAudience(cfg.Audience, true) {
		return "", fmt.Errorf("unexpected audience %q", claims.Audience)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
		Success: false,
		Error:   msg,
	})
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
