package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"cloverBack/internal/models"
	"cloverBack/internal/refund"
)

type Reverser interface {
	Preview(ctx context.Context, paymentID int64) (models.ReversalPreview, error)
	Reverse(ctx context.Context, req models.RefundRequest) (models.RefundOutcome, error)
}

type RefundHandler struct {
	Refunds Reverser
	Logger  *slog.Logger
}

func NewRefundHandler(r Reverser, logger *slog.Logger) *RefundHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefundHandler{Refunds: r, Logger: logger}
}

// Preview shows whether the payment would be voided or refunded.
func (h *RefundHandler) Preview(w http.ResponseWriter, r *http.Request) {
	id, ok := getIDParam(r, "payment_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid payment_id")
		return
	}
	p, err := h.Refunds.Preview(r.Context(), id)
	if err != nil {
		writeError(w, refund.HTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *RefundHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req models.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PaymentID <= 0 {
		writeError(w, http.StatusBadRequest, "payment_id is required")
		return
	}

	out, err := h.Refunds.Reverse(r.Context(), req)
	if err != nil {
		h.Logger.Warn("refund failed", "payment_id", req.PaymentID, "err", err)
		msg := out.Message
		if msg == "" {
			msg = err.Error()
		}
		writeError(w, refund.HTTPStatus(err), msg)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
