package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// Audit records an audit log entry after every successful ledger mutation. Write failures are
// logged and never change the response.
func Audit(repo auditWriter, logger *zap.Logger, action, resource string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if repo == nil || c.Writer.Status() >= 400 {
			return
		}

		entry := &models.AuditLog{
			BranchID:  BranchID(c),
			Action:    action,
			Resource:  resource,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		}
		if claims := Claims(c); claims != nil {
			userID := claims.UserID
			entry.UserID = &userID
		}
		if id := c.Param("id"); id != "" {
			entry.ResourceID = &id
		}
		entry.NewValues, _ = json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		if err := repo.Create(c.Request.Context(), entry); err != nil {
			logger.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
		}
	}
}
