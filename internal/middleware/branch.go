package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
	"github.com/noah-isme/sma-fee-ledger/pkg/logger"
	"github.com/noah-isme/sma-fee-ledger/pkg/response"
)

// BranchScope copies the branch claim onto the request so handlers and request logs share it.
// It must run after JWT.
func BranchScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if claims.BranchID == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "token is not scoped to a branch"))
			c.Abort()
			return
		}
		c.Set(logger.BranchContextKey, claims.BranchID)
		c.Next()
	}
}

// BranchID returns the branch the request is scoped to.
func BranchID(c *gin.Context) string {
	return c.GetString(logger.BranchContextKey)
}
