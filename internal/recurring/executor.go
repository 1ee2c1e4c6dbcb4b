package recurring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cloverBack/internal/clover"
	"cloverBack/internal/lock"
	"cloverBack/internal/models"
	"cloverBack/internal/timeutil"
)

const (
	activityType    = "Contribution"
	activitySubject = "Attempted Clover Recurring Contribution for %s"
	sourceFormat    = "Clover Recurring Contribution (id=%d)"
)

type Billing struct {
	Name    string
	Email   string
	Address string
	City    string
	Postal  string
	Region  string
	Country string
}

// PaymentRequest describes one charge. It is built once and not changed
// while the charge is processed.
type PaymentRequest struct {
	ContributionID int64
	SeriesID       int64
	ContactID      int64
	ProcessorID    int64
	Amount         decimal.Decimal
	Currency       string
	// Token is a one-time tokenizer value or a vaulted token.
	Token   string
	Expiry  *time.Time
	IsRecur bool
	// Scheduled marks merchant-initiated charges made by the batch.
	Scheduled bool
	InvoiceID string
	Billing   Billing
	// OriginalContributionID is the earlier installment the new one was
	// copied from, zero when the series has none of the same amount.
	OriginalContributionID int64
}

// ExecutionContext holds what changes while a PaymentRequest is processed.
type ExecutionContext struct {
	PreviousDate time.Time
	AdvancedDate time.Time
	Advanced     bool
	TokenID      *int64
	VaultToken   string
	Outcome      Outcome
}

// SeriesResult reports one processed series.
type SeriesResult struct {
	SeriesID               int64
	ContactID              int64
	ContributionID         int64
	OriginalContributionID int64
	Outcome                Outcome
	// ActivityFailed is set when the attempt could not be logged as an
	// activity; the run counts it as an error.
	ActivityFailed bool
	Log            []string
}

type Executor struct {
	locker        Locker
	series        SeriesStore
	contributions ContributionStore
	memberships   MembershipStore
	activities    ActivityStore
	processors    ProcessorStore
	currency      CurrencySource
	gateways      GatewayFactory
	vault         *Vault
	logger        *slog.Logger
	now           func() time.Time

	threshold       int
	defaultCurrency string
}

func NewExecutor(d Deps, cfg Config) *Executor {
	cfg = cfg.withDefaults()
	return &Executor{
		locker:          d.Locker,
		series:          d.Series,
		contributions:   d.Contributions,
		memberships:     d.Memberships,
		activities:      d.Activities,
		processors:      d.Processors,
		currency:        d.Currency,
		gateways:        d.Gateways,
		vault:           NewVault(d.Tokens, d.Series, d.Logger, d.Now),
		logger:          d.Logger,
		now:             d.Now,
		threshold:       cfg.FailureThreshold,
		defaultCurrency: cfg.DefaultCurrency,
	}
}

// ProcessSeries charges the due installment of one series. The returned
// error covers ledger failures only; gateway results are in the Outcome.
func (e *Executor) ProcessSeries(ctx context.Context, s models.RecurringSeries, params models.JobParams, now time.Time) (SeriesResult, error) {
	out := SeriesResult{SeriesID: s.ID, ContactID: s.ContactID}
	logger := e.logger.With("series_id", s.ID, "contact_id", s.ContactID)

	currency, err := e.settlementCurrency(ctx)
	if err != nil {
		return out, err
	}
	if s.Currency == "" {
		s.Currency = currency
	}

	// Campaign, amount level and tax come from an installment of the same
	// amount; membership follows the latest installment whatever its amount.
	tmpl, err := e.contributions.Latest(ctx, s.ID, &s.Amount, nil)
	if err != nil && !errors.Is(err, models.ErrNoRecord) {
		return out, fmt.Errorf("template for series %d: %w", s.ID, err)
	}
	out.OriginalContributionID = tmpl.ID
	var membershipID int64
	if !params.IgnoreMembership {
		membershipID, err = e.latestMembership(ctx, s)
		if err != nil {
			return out, err
		}
	}

	receive := ReceiveDate(s, params, now)
	c := models.Contribution{
		ContactID:           s.ContactID,
		RecurID:             &s.ID,
		Amount:              s.Amount,
		NetAmount:           s.Amount,
		Currency:            s.Currency,
		ReceiveDate:         receive,
		Status:              models.ContributionPending,
		InvoiceID:           newInvoiceID(),
		Source:              fmt.Sprintf(sourceFormat, s.ID),
		PaymentInstrumentID: s.PaymentInstrumentID,
		FinancialTypeID:     s.FinancialTypeID,
		PaymentProcessorID:  s.PaymentProcessorID,
		IsTest:              s.IsTest,
	}
	if tmpl.ID > 0 {
		c.CampaignID = tmpl.CampaignID
		c.AmountLevel = tmpl.AmountLevel
		c.TaxAmount = tmpl.TaxAmount
		c.FinancialTypeID = tmpl.FinancialTypeID
	}
	c, err = e.contributions.Create(ctx, c)
	if err != nil {
		return out, fmt.Errorf("create installment for series %d: %w", s.ID, err)
	}
	out.ContributionID = c.ID
	if membershipID > 0 {
		if err := e.memberships.LinkPayment(ctx, membershipID, c.ID); err != nil {
			logger.Warn("membership link failed", "membership_id", membershipID, "err", err)
		}
	}

	// The schedule moves forward before the gateway is called so a crash or
	// hang can never lead to a second charge for this slot.
	ectx := &ExecutionContext{PreviousDate: s.NextScheduledDate}
	next := timeutil.AddInterval(receive, s.FrequencyInterval, s.FrequencyUnit)
	if err := e.series.Update(ctx, s.ID, models.SeriesUpdate{NextScheduledDate: &next}); err != nil {
		fail := failed(fmt.Errorf("advance schedule: %w", err), "", true)
		if ferr := e.contributions.Finalize(ctx, c.ID, fail.Result); ferr != nil {
			logger.Error("finalize after advance failure", "err", ferr)
		}
		out.Outcome = fail
		return out, fmt.Errorf("advance series %d: %w", s.ID, err)
	}
	ectx.AdvancedDate = next
	ectx.Advanced = true

	req := PaymentRequest{
		ContributionID: c.ID,
		SeriesID:       s.ID,
		ContactID:      s.ContactID,
		ProcessorID:    s.PaymentProcessorID,
		Amount:         s.Amount,
		Currency:       s.Currency,
		Token:          s.Token,
		IsRecur:        true,
		Scheduled:      true,
		InvoiceID:      c.InvoiceID,

		OriginalContributionID: tmpl.ID,
	}
	ectx.Outcome = e.execute(ctx, req, ectx, currency)
	out.Outcome = ectx.Outcome

	// the gateway has answered; its result is written even if the run is
	// being cancelled
	wctx := context.WithoutCancel(ctx)
	applyErr := e.apply(wctx, s, c.ID, ectx)

	line := fmt.Sprintf("Contact id %d: contribution %d %s", s.ContactID, c.ID, strings.ToLower(string(ectx.Outcome.Result.Status)))
	if !ectx.Outcome.OK() && ectx.Outcome.Result.Message != "" {
		line += ": " + ectx.Outcome.Result.Message
	}
	out.Log = append(out.Log, line)

	if err := e.recordActivity(wctx, s, c, ectx.Outcome); err != nil {
		logger.Error("activity not recorded", "err", err)
		out.ActivityFailed = true
		out.Log = append(out.Log, fmt.Sprintf("An error occurred while creating activity record for contact id %d: %v", s.ContactID, err))
	} else {
		out.Log = append(out.Log, fmt.Sprintf("Created activity record for contact id %d", s.ContactID))
	}

	logger.Info("installment processed",
		"contribution_id", c.ID,
		"original_contribution_id", req.OriginalContributionID,
		"outcome", ectx.Outcome.Kind.String(),
		"next_scheduled_date", next,
	)
	return out, applyErr
}

// DoPayment charges an existing pending contribution from an interactive
// form. Recurring first payments board the card before the charge. The
// contribution lock is held from the pending check until the result is
// written, so a contribution is charged at most once.
func (e *Executor) DoPayment(ctx context.Context, req PaymentRequest) (Outcome, error) {
	if req.ContributionID <= 0 {
		return Outcome{}, errors.New("recurring: contribution id is required")
	}

	name := lock.ContributionLockName(req.ContributionID)
	ok, err := e.locker.Acquire(ctx, name)
	if err != nil {
		return Outcome{}, fmt.Errorf("lock contribution %d: %w", req.ContributionID, err)
	}
	if !ok {
		return Outcome{}, fmt.Errorf("%w: contribution %d", models.ErrLockNotAcquired, req.ContributionID)
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseWait)
		defer cancel()
		if err := e.locker.Release(rctx, name); err != nil {
			e.logger.Error("contribution lock release failed", "lock", name, "err", err)
		}
	}()

	currency, err := e.settlementCurrency(ctx)
	if err != nil {
		return Outcome{}, err
	}
	req, err = e.matchContribution(ctx, req, currency)
	if err != nil {
		return Outcome{}, err
	}

	ectx := &ExecutionContext{}
	ectx.Outcome = e.execute(ctx, req, ectx, currency)

	var errs []error
	wctx := context.WithoutCancel(ctx)
	if err := e.contributions.Finalize(wctx, req.ContributionID, ectx.Outcome.Result); err != nil {
		errs = append(errs, fmt.Errorf("finalize contribution %d: %w", req.ContributionID, err))
	}
	if ectx.Outcome.OK() && req.SeriesID > 0 {
		st := models.RecurInProgress
		if err := e.series.Update(wctx, req.SeriesID, models.SeriesUpdate{Status: &st}); err != nil {
			errs = append(errs, fmt.Errorf("start series %d: %w", req.SeriesID, err))
		}
	}
	return ectx.Outcome, errors.Join(errs...)
}

// matchContribution checks the stored contribution against the request and
// fills amount and currency when the request leaves them out.
func (e *Executor) matchContribution(ctx context.Context, req PaymentRequest, currency string) (PaymentRequest, error) {
	c, err := e.contributions.Get(ctx, req.ContributionID)
	if err != nil {
		return req, fmt.Errorf("load contribution %d: %w", req.ContributionID, err)
	}
	if c.Status != models.ContributionPending {
		return req, fmt.Errorf("%w: contribution %d is %s", models.ErrContributionNotPending, c.ID, c.Status)
	}
	if req.SeriesID > 0 && c.RecurID != nil && *c.RecurID != req.SeriesID {
		return req, fmt.Errorf("%w: contribution %d belongs to series %d", models.ErrChargeMismatch, c.ID, *c.RecurID)
	}

	if req.Amount.IsZero() {
		req.Amount = c.Amount
	}
	if !req.Amount.Equal(c.Amount) {
		return req, fmt.Errorf("%w: amount %s, contribution %d is %s", models.ErrChargeMismatch, req.Amount.StringFixed(2), c.ID, c.Amount.StringFixed(2))
	}

	stored := strings.ToUpper(strings.TrimSpace(c.Currency))
	if stored == "" {
		stored = currency
	}
	if req.Currency == "" {
		req.Currency = stored
	}
	if !strings.EqualFold(req.Currency, stored) {
		return req, fmt.Errorf("%w: currency %s, contribution %d is %s", models.ErrChargeMismatch, req.Currency, c.ID, stored)
	}
	return req, nil
}

func (e *Executor) execute(ctx context.Context, req PaymentRequest, ectx *ExecutionContext, currency string) Outcome {
	proc, err := e.processors.Get(ctx, req.ProcessorID)
	if errors.Is(err, models.ErrNoRecord) {
		return fatal(fmt.Errorf("%w: processor %d not found", clover.ErrConfig, req.ProcessorID))
	}
	if err != nil {
		return failed(fmt.Errorf("load processor %d: %w", req.ProcessorID, err), "", true)
	}
	gw, err := e.gateways(proc, currency)
	if err != nil {
		return Classify(nil, err)
	}

	account := strings.TrimSpace(req.Token)
	if account == "" {
		return Classify(nil, models.ErrMissingToken)
	}

	if req.IsRecur && req.SeriesID > 0 {
		n, err := e.vault.CheckForSavedToken(ctx, proc.ID, account, req.SeriesID)
		if err != nil {
			return failed(err, "", true)
		}
		if n == 0 {
			tok, res, err := e.vault.BoardToken(ctx, gw, req)
			switch {
			case err != nil && tok.ID == 0:
				// nothing was captured by a zero-amount authorization
				o := Classify(nil, err)
				if o.Kind == RecoverableFailure {
					o.Definitive = true
				}
				return o
			case err != nil:
				e.logger.Warn("token stored but not linked", "series_id", req.SeriesID, "err", err)
			case !res.Approved():
				return Classify(res, nil)
			}
			id := tok.ID
			ectx.TokenID = &id
			account = tok.Token
		}
	}
	ectx.VaultToken = account

	cof := "C"
	if req.Scheduled {
		cof = "M"
	}
	scheduled := "N"
	if req.IsRecur {
		scheduled = "Y"
	}
	res, err := gw.Authorize(ctx, clover.AuthorizeRequest{
		Amount:       req.Amount,
		Currency:     req.Currency,
		Account:      account,
		Expiry:       req.Expiry,
		Name:         req.Billing.Name,
		Email:        req.Billing.Email,
		Address:      req.Billing.Address,
		City:         req.Billing.City,
		Postal:       req.Billing.Postal,
		Region:       req.Billing.Region,
		Country:      req.Billing.Country,
		COF:          cof,
		COFScheduled: scheduled,
		Capture:      true,
		OrderID:      req.InvoiceID,
	})
	return Classify(res, err)
}

// apply writes the outcome to the installment and the series.
func (e *Executor) apply(ctx context.Context, s models.RecurringSeries, contributionID int64, ectx *ExecutionContext) error {
	var errs []error
	if err := e.contributions.Finalize(ctx, contributionID, ectx.Outcome.Result); err != nil {
		errs = append(errs, fmt.Errorf("finalize contribution %d: %w", contributionID, err))
	}

	var u models.SeriesUpdate
	switch ectx.Outcome.Kind {
	case Success:
		if s.Status == models.RecurPending {
			st := models.RecurInProgress
			u.Status = &st
		}
	case RecoverableFailure:
		fc := s.FailureCount + 1
		u.FailureCount = &fc
		if ectx.Outcome.Definitive && ectx.Advanced && s.FailureCount < e.threshold {
			prev := ectx.PreviousDate
			u.NextScheduledDate = &prev
		}
	case FatalError:
		if ectx.Advanced {
			prev := ectx.PreviousDate
			u.NextScheduledDate = &prev
		}
	}
	if u != (models.SeriesUpdate{}) {
		if err := e.series.Update(ctx, s.ID, u); err != nil {
			errs = append(errs, fmt.Errorf("update series %d: %w", s.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Executor) latestMembership(ctx context.Context, s models.RecurringSeries) (int64, error) {
	isTest := s.IsTest
	latest, err := e.contributions.Latest(ctx, s.ID, nil, &isTest)
	if errors.Is(err, models.ErrNoRecord) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("latest installment for series %d: %w", s.ID, err)
	}
	id, err := e.memberships.ForContribution(ctx, latest.ID)
	if errors.Is(err, models.ErrNoRecord) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("membership for contribution %d: %w", latest.ID, err)
	}
	return id, nil
}

func (e *Executor) recordActivity(ctx context.Context, s models.RecurringSeries, c models.Contribution, o Outcome) error {
	status := "Completed"
	if !o.OK() {
		status = "Failed"
	}
	_, err := e.activities.Create(ctx, models.Activity{
		ActivityType:      activityType,
		SourceContactID:   s.ContactID,
		SourceRecordID:    c.ID,
		AssigneeContactID: s.ContactID,
		Subject:           fmt.Sprintf(activitySubject, formatMoney(c.Amount, c.Currency)),
		Status:            status,
		ActivityDateTime:  e.now(),
	})
	return err
}

func (e *Executor) settlementCurrency(ctx context.Context) (string, error) {
	if e.currency == nil {
		return e.defaultCurrency, nil
	}
	cur, err := e.currency.DefaultCurrency(ctx, e.defaultCurrency)
	if err != nil {
		return "", fmt.Errorf("default currency: %w", err)
	}
	return cur, nil
}

func formatMoney(amount decimal.Decimal, currency string) string {
	if currency == "USD" {
		return "$" + amount.StringFixed(2)
	}
	return amount.StringFixed(2) + " " + currency
}

func newInvoiceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
