package refund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"cloverBack/internal/clover"
	"cloverBack/internal/lock"
	"cloverBack/internal/models"
)

type Action string

const (
	ActionVoid   Action = "void"
	ActionRefund Action = "refund"
)

// Gateway is the reversal side of the card gateway.
type Gateway interface {
	Inquire(ctx context.Context, retref string) (*clover.InquireResult, error)
	Void(ctx context.Context, retref string) (*clover.VoidResult, error)
	Refund(ctx context.Context, retref string) (*clover.RefundResult, error)
}

type GatewayFactory func(p models.PaymentProcessor, currency string) (Gateway, error)

type PaymentStore interface {
	GetPayment(ctx context.Context, paymentID int64) (models.FinancialTrxn, error)
	RefundRecorded(ctx context.Context, contributionID int64, trxnID string, amount decimal.Decimal) (bool, error)
	RecordRefund(ctx context.Context, t models.FinancialTrxn, status models.ContributionStatus) (models.FinancialTrxn, error)
}

type ProcessorStore interface {
	Get(ctx context.Context, id int64) (models.PaymentProcessor, error)
}

// Canceller cancels records paid by a contribution.
type Canceller interface {
	CancelForContribution(ctx context.Context, contributionID int64) (int, error)
}

type Locker interface {
	Acquire(ctx context.Context, name string) (bool, error)
	Release(ctx context.Context, name string) error
}

type Deps struct {
	Payments     PaymentStore
	Processors   ProcessorStore
	Memberships  Canceller
	Participants Canceller
	Locker       Locker
	Gateways     GatewayFactory
	Currency     string
	Logger       *slog.Logger
	Now          func() time.Time
}

// Decider reverses a captured payment with a void or a refund, whichever the
// gateway currently allows.
type Decider struct {
	d Deps
}

func NewDecider(d Deps) (*Decider, error) {
	switch {
	case d.Payments == nil:
		return nil, errors.New("refund deps: Payments is required")
	case d.Processors == nil:
		return nil, errors.New("refund deps: Processors is required")
	case d.Locker == nil:
		return nil, errors.New("refund deps: Locker is required")
	case d.Gateways == nil:
		return nil, errors.New("refund deps: Gateways is required")
	}
	if d.Currency == "" {
		d.Currency = clover.DefaultCurrency
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Decider{d: d}, nil
}

// Decide picks the reversal for an inquiry. Void wins when both are allowed.
func Decide(inq *clover.InquireResult) (Action, error) {
	switch {
	case inq == nil:
		return "", fmt.Errorf("%w: empty inquiry", clover.ErrUnexpectedResponse)
	case inq.Voidable:
		return ActionVoid, nil
	case inq.Refundable:
		return ActionRefund, nil
	default:
		return "", models.ErrNotReversible
	}
}

// ValidateAmount accepts only the full captured amount.
func ValidateAmount(requested, captured decimal.Decimal) error {
	if !requested.IsPositive() || requested.GreaterThan(captured) {
		return fmt.Errorf("%w: requested %s, captured %s", models.ErrInvalidRefundAmount, requested.StringFixed(2), captured.StringFixed(2))
	}
	if !requested.Equal(captured) {
		return fmt.Errorf("%w: requested %s, captured %s", models.ErrPartialRefund, requested.StringFixed(2), captured.StringFixed(2))
	}
	return nil
}

// Preview reports which reversal the gateway would accept right now.
func (r *Decider) Preview(ctx context.Context, paymentID int64) (models.ReversalPreview, error) {
	payment, err := r.loadPayment(ctx, paymentID)
	if err != nil {
		return models.ReversalPreview{}, err
	}
	gw, err := r.gatewayFor(ctx, payment)
	if err != nil {
		return models.ReversalPreview{}, err
	}
	inq, err := gw.Inquire(ctx, payment.TrxnID)
	if err != nil {
		return models.ReversalPreview{}, err
	}
	action, err := Decide(inq)
	if err != nil {
		return models.ReversalPreview{}, err
	}
	return models.ReversalPreview{
		PaymentID:      payment.ID,
		ContributionID: payment.ContributionID,
		Action:         string(action),
		Amount:         payment.TotalAmount,
		Currency:       payment.Currency,
	}, nil
}

// Reverse voids or refunds the full amount of a payment and records the
// reversal against its contribution.
func (r *Decider) Reverse(ctx context.Context, req models.RefundRequest) (models.RefundOutcome, error) {
	payment, err := r.loadPayment(ctx, req.PaymentID)
	if err != nil {
		return models.RefundOutcome{}, err
	}
	if req.ContributionID != 0 && payment.ContributionID != req.ContributionID {
		return models.RefundOutcome{}, fmt.Errorf("%w: payment %d does not belong to contribution %d", models.ErrNoRecord, req.PaymentID, req.ContributionID)
	}
	if err := ValidateAmount(req.RefundAmount, payment.TotalAmount); err != nil {
		return models.RefundOutcome{}, err
	}

	gw, err := r.gatewayFor(ctx, payment)
	if err != nil {
		return models.RefundOutcome{}, err
	}
	logger := r.d.Logger.With("payment_id", payment.ID, "contribution_id", payment.ContributionID, "retref", payment.TrxnID)

	inq, err := gw.Inquire(ctx, payment.TrxnID)
	if err != nil {
		return models.RefundOutcome{}, err
	}
	action, err := Decide(inq)
	if err != nil {
		return models.RefundOutcome{}, err
	}

	out := models.RefundOutcome{Action: string(action), TrxnDate: r.d.Now(), FeeAmount: decimal.Zero}
	contributionStatus := models.ContributionRefunded
	switch action {
	case ActionVoid:
		res, err := gw.Void(ctx, payment.TrxnID)
		if err != nil {
			return out, err
		}
		out.Status = models.ContributionFailed
		if res.Reversed() {
			out.Status = models.ContributionCompleted
		}
		out.RefundTrxnID = res.RetRef
		if out.RefundTrxnID == "" {
			out.RefundTrxnID = payment.TrxnID
		}
		contributionStatus = models.ContributionCancelled
	case ActionRefund:
		res, err := gw.Refund(ctx, payment.TrxnID)
		if err != nil {
			return out, err
		}
		out.Status = models.ContributionFailed
		if res.Accepted() {
			out.Status = models.ContributionCompleted
		}
		out.RefundTrxnID = res.RetRef
		out.FeeAmount = res.FeeAmount
	}
	logger.Info("reversal executed", "action", action, "status", out.Status, "refund_retref", out.RefundTrxnID)

	if out.Status != models.ContributionCompleted {
		out.Message = fmt.Sprintf("Refund status '%s' is not supported at this time and was not recorded", out.Status)
		return out, fmt.Errorf("%w: %s", models.ErrRefundNotRecorded, out.Message)
	}

	// the gateway already reversed the money, so the ledger must follow
	wctx := context.WithoutCancel(ctx)
	if err := r.record(wctx, payment, out, req.RefundAmount, contributionStatus); err != nil {
		logger.Error("reversal not recorded", "err", err)
		out.Message = "The payment was reversed at the gateway but could not be recorded"
		return out, err
	}

	if req.CancelMemberships && r.d.Memberships != nil {
		n, err := r.d.Memberships.CancelForContribution(wctx, payment.ContributionID)
		if err != nil {
			logger.Error("memberships not cancelled", "err", err)
		}
		out.CancelledMemberships = n
	}
	if req.CancelParticipants && r.d.Participants != nil {
		n, err := r.d.Participants.CancelForContribution(wctx, payment.ContributionID)
		if err != nil {
			logger.Error("participants not cancelled", "err", err)
		}
		out.CancelledParticipants = n
	}

	out.Message = fmt.Sprintf("The %s of %s %s was processed", action, req.RefundAmount.StringFixed(2), payment.Currency)
	return out, nil
}

func (r *Decider) loadPayment(ctx context.Context, paymentID int64) (models.FinancialTrxn, error) {
	payment, err := r.d.Payments.GetPayment(ctx, paymentID)
	if err != nil {
		return models.FinancialTrxn{}, fmt.Errorf("load payment %d: %w", paymentID, err)
	}
	if payment.TrxnID == "" {
		return models.FinancialTrxn{}, fmt.Errorf("%w: payment %d has no gateway reference", models.ErrNotReversible, paymentID)
	}
	return payment, nil
}

// gatewayFor builds a client from the settings of the processor that took
// the payment.
func (r *Decider) gatewayFor(ctx context.Context, payment models.FinancialTrxn) (Gateway, error) {
	proc, err := r.d.Processors.Get(ctx, payment.PaymentProcessorID)
	if err != nil {
		return nil, fmt.Errorf("load processor %d: %w", payment.PaymentProcessorID, err)
	}
	return r.d.Gateways(proc, r.d.Currency)
}

// record stores the reversal once, under the contribution lock.
func (r *Decider) record(ctx context.Context, payment models.FinancialTrxn, out models.RefundOutcome, amount decimal.Decimal, status models.ContributionStatus) error {
	name := lock.ContributionLockName(payment.ContributionID)
	ok, err := r.d.Locker.Acquire(ctx, name)
	if err != nil {
		return fmt.Errorf("lock contribution %d: %w", payment.ContributionID, err)
	}
	if !ok {
		return fmt.Errorf("%w: contribution %d", models.ErrLockNotAcquired, payment.ContributionID)
	}
	defer func() {
		if err := r.d.Locker.Release(ctx, name); err != nil {
			r.d.Logger.Error("contribution lock release failed", "lock", name, "err", err)
		}
	}()

	exists, err := r.d.Payments.RefundRecorded(ctx, payment.ContributionID, out.RefundTrxnID, amount)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = r.d.Payments.RecordRefund(ctx, models.FinancialTrxn{
		ContributionID:     payment.ContributionID,
		TrxnID:             out.RefundTrxnID,
		TotalAmount:        amount.Neg(),
		FeeAmount:          out.FeeAmount,
		Currency:           payment.Currency,
		PaymentProcessorID: payment.PaymentProcessorID,
		OrderReference:     payment.TrxnID,
		TrxnDate:           out.TrxnDate,
		Status:             string(status),
	}, status)
	return err
}

// HTTPStatus maps reversal errors onto operator-facing status codes.
func HTTPStatus(err error) int {
	var apiErr *clover.Error
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, models.ErrNoRecord):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidRefundAmount), errors.Is(err, models.ErrPartialRefund):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotReversible), errors.Is(err, models.ErrRefundNotRecorded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrLockNotAcquired):
		return http.StatusConflict
	case errors.Is(err, clover.ErrConfig), errors.Is(err, models.ErrProcessorConfig):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr), errors.Is(err, clover.ErrUnexpectedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Clover wires the HTTP gateway client as the production factory.
func Clover(timeout time.Duration, logger *slog.Logger) GatewayFactory {
	if timeout <= 0 {
		timeout = clover.DefaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}
	return func(p models.PaymentProcessor, currency string) (Gateway, error) {
		c, err := clover.NewFromProcessor(p, currency, httpClient, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
