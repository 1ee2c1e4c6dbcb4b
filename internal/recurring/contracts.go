package recurring

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"cloverBack/internal/clover"
	"cloverBack/internal/models"
)

// Gateway is the subset of the card gateway the engine charges through.
type Gateway interface {
	Authorize(ctx context.Context, req clover.AuthorizeRequest) (*clover.AuthorizeResult, error)
}

// GatewayFactory builds a gateway for one processor. It is called per
// installment so credentials are always read fresh from the ledger.
type GatewayFactory func(p models.PaymentProcessor, currency string) (Gateway, error)

type SeriesStore interface {
	Get(ctx context.Context, id int64) (models.RecurringSeries, error)
	ListDue(ctx context.Context, f models.DueFilter) ([]models.RecurringSeries, error)
	ListProgress(ctx context.Context, statuses []models.RecurStatus, processorIDs []int64) ([]models.SeriesProgress, error)
	Update(ctx context.Context, id int64, u models.SeriesUpdate) error
}

type ContributionStore interface {
	Get(ctx context.Context, id int64) (models.Contribution, error)
	// Latest filters on is_test only when isTest is set.
	Latest(ctx context.Context, recurID int64, amount *decimal.Decimal, isTest *bool) (models.Contribution, error)
	Create(ctx context.Context, c models.Contribution) (models.Contribution, error)
	Finalize(ctx context.Context, id int64, res models.ContributionResult) error
}

type TokenStore interface {
	CountSaved(ctx context.Context, processorID int64, token string, seriesID int64) (int, error)
	Create(ctx context.Context, t models.PaymentToken) (models.PaymentToken, error)
}

type MembershipStore interface {
	ForContribution(ctx context.Context, contributionID int64) (int64, error)
	LinkPayment(ctx context.Context, membershipID, contributionID int64) error
}

type ActivityStore interface {
	Create(ctx context.Context, a models.Activity) (models.Activity, error)
}

type ProcessorStore interface {
	IDsByClass(ctx context.Context, className string) ([]int64, error)
	Get(ctx context.Context, id int64) (models.PaymentProcessor, error)
}

type CurrencySource interface {
	DefaultCurrency(ctx context.Context, fallback string) (string, error)
}

type Locker interface {
	Acquire(ctx context.Context, name string) (bool, error)
	Release(ctx context.Context, name string) error
}

// Deps groups the collaborators of the recurring job.
type Deps struct {
	Locker        Locker
	Series        SeriesStore
	Contributions ContributionStore
	Tokens        TokenStore
	Memberships   MembershipStore
	Activities    ActivityStore
	Processors    ProcessorStore
	Currency      CurrencySource
	Gateways      GatewayFactory
	Logger        *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Validate ensures required dependencies are provided.
func (d *Deps) Validate() error {
	switch {
	case d.Locker == nil:
		return errors.New("recurring deps: Locker is required")
	case d.Series == nil:
		return errors.New("recurring deps: Series is required")
	case d.Contributions == nil:
		return errors.New("recurring deps: Contributions is required")
	case d.Tokens == nil:
		return errors.New("recurring deps: Tokens is required")
	case d.Memberships == nil:
		return errors.New("recurring deps: Memberships is required")
	case d.Activities == nil:
		return errors.New("recurring deps: Activities is required")
	case d.Processors == nil:
		return errors.New("recurring deps: Processors is required")
	case d.Gateways == nil:
		return errors.New("recurring deps: Gateways is required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return nil
}

type Config struct {
	LockName         string
	FailureThreshold int
	FailureCeiling   int
	DefaultCurrency  string
}

func (c Config) withDefaults() Config {
	if c.LockName == "" {
		c.LockName = "civicrm.job.Cloverrecurring"
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.FailureCeiling <= 0 {
		c.FailureCeiling = 3
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = clover.DefaultCurrency
	}
	return c
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
