package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"cloverBack/internal/clover"
	"cloverBack/internal/models"
	"cloverBack/internal/recurring"
)

type JobRunner interface {
	Run(ctx context.Context, params models.JobParams) (models.JobResult, error)
}

type PaymentExecutor interface {
	DoPayment(ctx context.Context, req recurring.PaymentRequest) (recurring.Outcome, error)
}

type RecurringHandler struct {
	Job      JobRunner
	Payments PaymentExecutor
	Logger   *slog.Logger
	validate *validator.Validate
}

func NewRecurringHandler(job JobRunner, payments PaymentExecutor, logger *slog.Logger) *RecurringHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecurringHandler{Job: job, Payments: payments, Logger: logger, validate: validator.New()}
}

// RunJob triggers one recurring run. An empty body runs with defaults.
func (h *RecurringHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	var params models.JobParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.CycleDay < 0 || params.CycleDay > 31 {
		writeError(w, http.StatusBadRequest, "cycle_day must be between 1 and 31")
		return
	}

	res, err := h.Job.Run(r.Context(), params)
	if err != nil {
		h.Logger.Error("recurring job failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type chargeRequest struct {
	ContributionID int64           `json:"contribution_id" validate:"required,gt=0"`
	SeriesID       int64           `json:"contribution_recur_id" validate:"gte=0"`
	ContactID      int64           `json:"contact_id" validate:"gte=0"`
	ProcessorID    int64           `json:"payment_processor_id" validate:"required,gt=0"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency" validate:"omitempty,len=3,alpha"`
	Token          string          `json:"token" validate:"required"`
	IsRecur        bool            `json:"is_recur"`
	InvoiceID      string          `json:"invoice_id" validate:"max=255"`
	Name           string          `json:"billing_name" validate:"max=255"`
	Email          string          `json:"email" validate:"omitempty,email"`
	Address        string          `json:"street_address"`
	City           string          `json:"city"`
	Postal         string          `json:"postal_code"`
	Region         string          `json:"state_province"`
	Country        string          `json:"country" validate:"omitempty,max=3"`
}

type chargeResponse struct {
	Status        models.ContributionStatus `json:"contribution_status"`
	TrxnID        string                    `json:"trxn_id,omitempty"`
	PanTruncation string                    `json:"pan_truncation,omitempty"`
	ResultCode    string                    `json:"trxn_result_code,omitempty"`
	Message       string                    `json:"message,omitempty"`
}

// Charge runs a cardholder-initiated payment for a pending contribution.
func (h *RecurringHandler) Charge(w http.ResponseWriter, r *http.Request) {
	if h.Payments == nil {
		writeError(w, http.StatusInternalServerError, "payments not initialized")
		return
	}
	var req chargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "amount must not be negative")
		return
	}

	out, err := h.Payments.DoPayment(r.Context(), recurring.PaymentRequest{
		ContributionID: req.ContributionID,
		SeriesID:       req.SeriesID,
		ContactID:      req.ContactID,
		ProcessorID:    req.ProcessorID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Token:          req.Token,
		IsRecur:        req.IsRecur,
		InvoiceID:      req.InvoiceID,
		Billing: recurring.Billing{
			Name: req.Name, Email: req.Email, Address: req.Address, City: req.City,
			Postal: req.Postal, Region: req.Region, Country: req.Country,
		},
	})
	if err != nil {
		h.Logger.Error("charge not recorded", "contribution_id", req.ContributionID, "err", err)
	}

	resp := chargeResponse{
		Status:        out.Result.Status,
		TrxnID:        out.Result.TrxnID,
		PanTruncation: out.Result.PanTruncation,
		ResultCode:    out.Result.ResultCode,
		Message:       out.Result.Message,
	}
	switch {
	case err != nil && resp.Status == "":
		writeError(w, chargeRejectStatus(err), err.Error())
	case out.Kind == recurring.FatalError:
		writeJSON(w, chargeErrorStatus(out.Err), resp)
	case out.Kind == recurring.RecoverableFailure:
		writeJSON(w, http.StatusPaymentRequired, resp)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// chargeRejectStatus maps errors raised before the gateway was called.
func chargeRejectStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrNoRecord):
		return http.StatusNotFound
	case errors.Is(err, models.ErrChargeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrContributionNotPending), errors.Is(err, models.ErrLockNotAcquired):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func chargeErrorStatus(err error) int {
	var apiErr *clover.Error
	switch {
	case errors.Is(err, clover.ErrUnsupportedCurrency), errors.Is(err, models.ErrUnsupportedCurrency):
		return http.StatusBadRequest
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}
