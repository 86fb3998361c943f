package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fee-ledger/internal/middleware"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
)

const dateLayout = "2006-01-02"

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// scope returns the branch and actor of the authenticated caller.
func scope(c *gin.Context) (branchID, actorID string, err error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return "", "", appErrors.ErrUnauthorized
	}
	branchID = middleware.BranchID(c)
	if branchID == "" {
		return "", "", appErrors.Clone(appErrors.ErrForbidden, "token is not scoped to a branch")
	}
	return branchID, claims.UserID, nil
}

func bindJSON(c *gin.Context, dest interface{}) error {
	if err := c.ShouldBindJSON(dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
	}
	return nil
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

func parseQueryBool(c *gin.Context, key string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" must be a boolean")
	}
	return &val, nil
}

// parseDateParam reads a YYYY-MM-DD query value. endOfDay moves the bound to the next midnight
// so the day itself is included by an exclusive upper filter.
func parseDateParam(c *gin.Context, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" must use YYYY-MM-DD")
	}
	if endOfDay {
		parsed = parsed.Add(24 * time.Hour)
	}
	return &parsed, nil
}

func balanceKindParam(c *gin.Context) (models.BalanceKind, error) {
	kind := models.BalanceKind(strings.ToUpper(c.Param("kind")))
	if !kind.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "kind must be tuition or transport")
	}
	return kind, nil
}
