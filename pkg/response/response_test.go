package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
)

func TestListRendersEmptyArrayForNilSlice(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var items []string
	List(c, items, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())
}

func TestErrorExposesCodeAndResource(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, appErrors.WithResource(appErrors.ErrPromotionBlocked, "enr-1"))

	require.Equal(t, http.StatusConflict, w.Code)
	var body struct {
		Error struct {
			Code       string `json:"code"`
			ResourceID string `json:"resource_id"`
			Retryable  bool   `json:"retryable"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "PROMOTION_BLOCKED", body.Error.Code)
	assert.Equal(t, "enr-1", body.Error.ResourceID)
	assert.False(t, body.Error.Retryable)
}

func TestErrorWrapsUnknownErrorsAsInternal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}
