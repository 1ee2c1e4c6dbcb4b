package refund

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloverBack/internal/clover"
	"cloverBack/internal/lock"
	"cloverBack/internal/models"
)

type stubPayments struct {
	mu       sync.Mutex
	payment  models.FinancialTrxn
	recorded []models.FinancialTrxn
	statuses []models.ContributionStatus
}

func (s *stubPayments) GetPayment(ctx context.Context, id int64) (models.FinancialTrxn, error) {
	if id != s.payment.ID {
		return models.FinancialTrxn{}, models.ErrNoRecord
	}
	return s.payment, nil
}

func (s *stubPayments) RefundRecorded(ctx context.Context, contributionID int64, trxnID string, amount decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recorded {
		if r.ContributionID == contributionID && r.TrxnID == trxnID && r.TotalAmount.Equal(amount.Neg()) {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubPayments) RecordRefund(ctx context.Context, t models.FinancialTrxn, status models.ContributionStatus) (models.FinancialTrxn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = int64(len(s.recorded) + 100)
	s.recorded = append(s.recorded, t)
	s.statuses = append(s.statuses, status)
	return t, nil
}

type stubProcessors struct{}

func (stubProcessors) Get(ctx context.Context, id int64) (models.PaymentProcessor, error) {
	return models.PaymentProcessor{ID: id, ClassName: models.CloverClassName, UserName: "u", Password: "p", Signature: "m", URLAPI: "https://example.test"}, nil
}

type stubCanceller struct{ calls []int64 }

func (s *stubCanceller) CancelForContribution(ctx context.Context, contributionID int64) (int, error) {
	s.calls = append(s.calls, contributionID)
	return 1, nil
}

type stubGateway struct {
	inquiry *clover.InquireResult
	void    *clover.VoidResult
	refund  *clover.RefundResult
	calls   []string
}

func (g *stubGateway) Inquire(ctx context.Context, retref string) (*clover.InquireResult, error) {
	g.calls = append(g.calls, "inquire:"+retref)
	return g.inquiry, nil
}

func (g *stubGateway) Void(ctx context.Context, retref string) (*clover.VoidResult, error) {
	g.calls = append(g.calls, "void:"+retref)
	return g.void, nil
}

func (g *stubGateway) Refund(ctx context.Context, retref string) (*clover.RefundResult, error) {
	g.calls = append(g.calls, "refund:"+retref)
	return g.refund, nil
}

type fixture struct {
	payments     *stubPayments
	gw           *stubGateway
	memberships  *stubCanceller
	participants *stubCanceller
	mr           *miniredis.Miniredis
	rdb          *redis.Client
	decider      *Decider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		payments: &stubPayments{payment: models.FinancialTrxn{
			ID: 11, ContributionID: 5, TrxnID: "T100", TotalAmount: decimal.RequireFromString("10.00"),
			Currency: "USD", PaymentProcessorID: 4, Status: "Completed",
		}},
		gw:           &stubGateway{},
		memberships:  &stubCanceller{},
		participants: &stubCanceller{},
		mr:           mr,
		rdb:          rdb,
	}
	d, err := NewDecider(Deps{
		Payments:     f.payments,
		Processors:   stubProcessors{},
		Memberships:  f.memberships,
		Participants: f.participants,
		Locker:       lock.NewRedisLocker(rdb, time.Minute),
		Gateways: func(p models.PaymentProcessor, currency string) (Gateway, error) {
			return f.gw, nil
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	f.decider = d
	return f
}

func inquiry(voidable, refundable string) *clover.InquireResult {
	var inq clover.InquireResult
	body, _ := json.Marshal(map[string]string{"retref": "T100", "voidable": voidable, "refundable": refundable})
	if err := json.Unmarshal(body, &inq); err != nil {
		panic(err)
	}
	return &inq
}

func TestDecide(t *testing.T) {
	cases := []struct {
		voidable, refundable string
		want                 Action
		err                  error
	}{
		{"Y", "Y", ActionVoid, nil},
		{"Y", "N", ActionVoid, nil},
		{"N", "Y", ActionRefund, nil},
		{"N", "N", "", models.ErrNotReversible},
	}
	for _, tc := range cases {
		got, err := Decide(inquiry(tc.voidable, tc.refundable))
		if tc.err != nil {
			assert.ErrorIs(t, err, tc.err, "voidable=%s refundable=%s", tc.voidable, tc.refundable)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "voidable=%s refundable=%s", tc.voidable, tc.refundable)
	}
}

func TestValidateAmount(t *testing.T) {
	captured := decimal.RequireFromString("10.00")
	assert.NoError(t, ValidateAmount(decimal.RequireFromString("10"), captured))
	assert.ErrorIs(t, ValidateAmount(decimal.Zero, captured), models.ErrInvalidRefundAmount)
	assert.ErrorIs(t, ValidateAmount(decimal.RequireFromString("-1"), captured), models.ErrInvalidRefundAmount)
	assert.ErrorIs(t, ValidateAmount(decimal.RequireFromString("10.01"), captured), models.ErrInvalidRefundAmount)
	assert.ErrorIs(t, ValidateAmount(decimal.RequireFromString("4"), captured), models.ErrPartialRefund)
}

func TestReverseRefundsSettledPayment(t *testing.T) {
	f := newFixture(t)
	f.gw.inquiry = inquiry("N", "Y")
	f.gw.refund = &clover.RefundResult{RespStat: "A", RetRef: "R200", FeeAmount: decimal.RequireFromString("0.35")}

	out, err := f.decider.Reverse(context.Background(), models.RefundRequest{
		PaymentID: 11, ContributionID: 5, RefundAmount: decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "refund", out.Action)
	assert.Equal(t, models.ContributionCompleted, out.Status)
	assert.Equal(t, "R200", out.RefundTrxnID)
	assert.Equal(t, []string{"inquire:T100", "refund:T100"}, f.gw.calls)

	require.Len(t, f.payments.recorded, 1)
	rec := f.payments.recorded[0]
	assert.Equal(t, "-10", rec.TotalAmount.String())
	assert.Equal(t, "0.35", rec.FeeAmount.String())
	assert.Equal(t, "R200", rec.TrxnID)
	assert.Equal(t, "T100", rec.OrderReference)
	assert.Equal(t, models.ContributionRefunded, f.payments.statuses[0])

	assert.False(t, f.mr.Exists("lock:data.contribute.contribution.5"), "contribution lock must be released")
	assert.Empty(t, f.memberships.calls)
}

func TestReverseVoidsWhenBothAllowed(t *testing.T) {
	f := newFixture(t)
	f.gw.inquiry = inquiry("Y", "Y")
	f.gw.void = &clover.VoidResult{AuthCode: "REVERS", RespStat: "A", RetRef: "T100"}

	out, err := f.decider.Reverse(context.Background(), models.RefundRequest{
		PaymentID: 11, RefundAmount: decimal.RequireFromString("10"), CancelMemberships: true, CancelParticipants: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "void", out.Action)
	assert.Equal(t, []string{"inquire:T100", "void:T100"}, f.gw.calls)
	assert.Equal(t, models.ContributionCancelled, f.payments.statuses[0])
	assert.Equal(t, []int64{5}, f.memberships.calls)
	assert.Equal(t, []int64{5}, f.participants.calls)
	assert.Equal(t, 1, out.CancelledMemberships)
}

func TestReverseRejectsAmountAboveCaptured(t *testing.T) {
	f := newFixture(t)
	f.gw.inquiry = inquiry("N", "Y")

	_, err := f.decider.Reverse(context.Background(), models.RefundRequest{PaymentID: 11, RefundAmount: decimal.RequireFromString("10.50")})
	require.ErrorIs(t, err, models.ErrInvalidRefundAmount)
	assert.Empty(t, f.gw.calls, "gateway must not be called")
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestReverseNotReversible(t *testing.T) {
	f := newFixture(t)
	f.gw.inquiry = inquiry("N", "N")

	_, err := f.decider.Reverse(context.Background(), models.RefundRequest{PaymentID: 11, RefundAmount: decimal.RequireFromString("10")})
	require.ErrorIs(t, err, models.ErrNotReversible)
	assert.Equal(t, []string{"inquire:T100"}, f.gw.calls)
	assert.Empty(t, f.payments.recorded)
}

func TestReverseUnsupportedStatusIsNotRecorded(t *testing.T) {
	f := newFixture(t)
	f.gw.inquiry = inquiry("Y", "N")
	f.gw.void = &clover.VoidResult{AuthCode: "", RespStat: "C"}

	out, err := f.decider.Reverse(context.Background(), models.RefundRequest{PaymentID: 11, RefundAmount: decimal.RequireFromString("10")})
	require.ErrorIs(t, err, models.ErrRefundNotRecorded)
	assert.Equal(t, "Refund status 'Failed' is not supported at this time and was not recorded", out.Message)
	assert.Empty(t, f.payments.recorded)
}

func TestReverseRecordsOnce(t *testing.T) {
	f := newFixture(t)
	f.gw.inquiry = inquiry("N", "Y")
	f.gw.refund = &clover.RefundResult{RespStat: "A", RetRef: "R200"}
	req := models.RefundRequest{PaymentID: 11, RefundAmount: decimal.RequireFromString("10")}

	_, err := f.decider.Reverse(context.Background(), req)
	require.NoError(t, err)
	_, err = f.decider.Reverse(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, f.payments.recorded, 1)
}

func TestReverseWaitsForContributionLock(t *testing.T) {
	f := newFixture(t)
	f.gw.inquiry = inquiry("N", "Y")
	f.gw.refund = &clover.RefundResult{RespStat: "A", RetRef: "R200"}
	require.NoError(t, f.mr.Set("lock:data.contribute.contribution.5", "someone-else"))

	_, err := f.decider.Reverse(context.Background(), models.RefundRequest{PaymentID: 11, RefundAmount: decimal.RequireFromString("10")})
	require.ErrorIs(t, err, models.ErrLockNotAcquired)
	assert.Empty(t, f.payments.recorded)
	assert.Equal(t, http.StatusConflict, HTTPStatus(err))
}

func TestReverseWrongContribution(t *testing.T) {
	f := newFixture(t)
	_, err := f.decider.Reverse(context.Background(), models.RefundRequest{PaymentID: 11, ContributionID: 6, RefundAmount: decimal.RequireFromString("10")})
	require.ErrorIs(t, err, models.ErrNoRecord)
	assert.Empty(t, f.gw.calls)
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	f.gw.inquiry = inquiry("N", "Y")

	p, err := f.decider.Preview(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, "refund", p.Action)
	assert.Equal(t, int64(5), p.ContributionID)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("10")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(models.ErrNoRecord))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(models.ErrNotReversible))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(&clover.Error{StatusCode: 500}))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(clover.ErrConfig))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
