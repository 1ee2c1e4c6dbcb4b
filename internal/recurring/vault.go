package recurring

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cloverBack/internal/clover"
	"cloverBack/internal/models"
)

// Vault boards reusable card tokens for recurring series.
type Vault struct {
	tokens TokenStore
	series SeriesStore
	logger *slog.Logger
	now    func() time.Time
}

func NewVault(tokens TokenStore, series SeriesStore, logger *slog.Logger, now func() time.Time) *Vault {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Vault{tokens: tokens, series: series, logger: logger, now: now}
}

// CheckForSavedToken counts tokens of processorID with the given value that
// are already linked to the series.
func (v *Vault) CheckForSavedToken(ctx context.Context, processorID int64, token string, seriesID int64) (int, error) {
	n, err := v.tokens.CountSaved(ctx, processorID, token, seriesID)
	if err != nil {
		return 0, fmt.Errorf("check saved token: %w", err)
	}
	return n, nil
}

// BoardToken runs a zero-amount authorization asking the gateway to keep the
// card, stores the returned token and links it to the series. When the
// gateway does not approve, the result is returned with a zero token and no
// error.
func (v *Vault) BoardToken(ctx context.Context, gw Gateway, req PaymentRequest) (models.PaymentToken, *clover.AuthorizeResult, error) {
	res, err := gw.Authorize(ctx, clover.AuthorizeRequest{
		Amount:       decimal.Zero,
		Currency:     req.Currency,
		Account:      req.Token,
		Expiry:       req.Expiry,
		Name:         req.Billing.Name,
		Email:        req.Billing.Email,
		Address:      req.Billing.Address,
		City:         req.Billing.City,
		Postal:       req.Billing.Postal,
		Region:       req.Billing.Region,
		Country:      req.Billing.Country,
		COF:          "C",
		COFScheduled: "Y",
		Capture:      false,
		Profile:      true,
	})
	if err != nil {
		return models.PaymentToken{}, nil, fmt.Errorf("board token: %w", err)
	}
	if !res.Approved() {
		v.logger.Warn("token boarding declined", "series_id", req.SeriesID, "resptext", res.RespText)
		return models.PaymentToken{}, res, nil
	}

	token := res.VaultToken()
	if token == "" {
		token = req.Token
	}
	expiry := parseExpiry(res.Expiry)
	if expiry == nil {
		expiry = req.Expiry
	}

	saved, err := v.tokens.Create(ctx, models.PaymentToken{
		ContactID:          req.ContactID,
		PaymentProcessorID: req.ProcessorID,
		Token:              token,
		Expiry:             expiry,
		MaskedAccount:      maskAccount(res.LastFour()),
		CreatedAt:          v.now(),
	})
	if err != nil {
		return models.PaymentToken{}, res, fmt.Errorf("store token: %w", err)
	}

	if req.SeriesID > 0 {
		id := saved.ID
		if err := v.series.Update(ctx, req.SeriesID, models.SeriesUpdate{PaymentTokenID: &id}); err != nil {
			return saved, res, fmt.Errorf("link token to series %d: %w", req.SeriesID, err)
		}
	}
	v.logger.Info("token boarded", "series_id", req.SeriesID, "token_id", saved.ID)
	return saved, res, nil
}

// parseExpiry accepts MMYY and YYYYMM and returns the first day of that month.
func parseExpiry(s string) *time.Time {
	s = strings.TrimSpace(s)
	var year, month int
	switch len(s) {
	case 4:
		m, err1 := strconv.Atoi(s[:2])
		y, err2 := strconv.Atoi(s[2:])
		if err1 != nil || err2 != nil {
			return nil
		}
		year, month = 2000+y, m
	case 6:
		y, err1 := strconv.Atoi(s[:4])
		m, err2 := strconv.Atoi(s[4:])
		if err1 != nil || err2 != nil {
			return nil
		}
		year, month = y, m
	default:
		return nil
	}
	if month < 1 || month > 12 {
		return nil
	}
	t := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return &t
}

func maskAccount(last4 string) string {
	if last4 == "" {
		return ""
	}
	return "************" + last4
}
