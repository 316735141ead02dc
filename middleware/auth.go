package middleware

import (
	"context"
	"net/http"
	"strings"

	"teamquiz/services"

	"github.com/gin-gonic/gin"
)

const AdminSubjectKey = "admin_subject"

type AdminVerifier interface {
	VerifyToken(ctx context.Context, token string) (*services.AdminClaims, error)
}

// AdminAuth accepts only requests carrying a valid admin bearer token.
func AdminAuth(auth AdminVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing admin token"})
			return
		}

		claims, err := auth.VerifyToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid admin token"})
			return
		}

		c.Set(AdminSubjectKey, claims.Subject)
		c.Next()
	}
}
