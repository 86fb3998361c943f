package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fee-ledger/internal/middleware"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
	"github.com/noah-isme/sma-fee-ledger/pkg/response"
)

type receiptOpener interface {
	Open(ctx context.Context, branchID, token string) (io.ReadCloser, string, error)
}

// ReceiptHandler streams rendered receipts.
type ReceiptHandler struct {
	receipts receiptOpener
}

// NewReceiptHandler constructs ReceiptHandler.
func NewReceiptHandler(receipts receiptOpener) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts}
}

// Download godoc
// @Summary Download a payment receipt via signed token
// @Tags Receipts
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /receipts/{token} [get]
func (h *ReceiptHandler) Download(c *gin.Context) {
	if h.receipts == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "receipts disabled"))
		return
	}
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, filename, err := h.receipts.Open(c.Request.Context(), middleware.BranchID(c), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=\"%s\"", filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, -1, "application/pdf", file, nil)
}
