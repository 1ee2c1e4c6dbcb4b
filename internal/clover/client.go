package clover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cloverBack/internal/models"
)

// DefaultTimeout matches the gateway's expectation of short synchronous calls.
const DefaultTimeout = 2 * time.Second

// DefaultCurrency is the only settlement currency the merchant accounts use.
const DefaultCurrency = "USD"

var (
	ErrConfig              = errors.New("clover: gateway is not configured")
	ErrUnsupportedCurrency = errors.New("clover: currency is not supported")
	ErrUnexpectedResponse  = errors.New("clover: unexpected response shape")
)

type Config struct {
	// REST base, e.g. https://<site>.cardconnect.com/cardconnect/rest
	// A trailing /auth (as stored in processor settings) is tolerated.
	BaseURL    string
	Username   string
	Password   string
	MerchantID string
	Currency   string

	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

// Client is a stateless CardPointe REST client bound to one merchant.
type Client struct {
	username   string
	password   string
	merchantID string
	currency   string
	baseURL    *url.URL

	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Username) == "" ||
		strings.TrimSpace(cfg.Password) == "" ||
		strings.TrimSpace(cfg.MerchantID) == "" ||
		strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: username/password/merchant_id/base_url are required", ErrConfig)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	u, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("%w: parse base url: %v", ErrConfig, err)
	}
	u.Path = strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/auth")

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}

	return &Client{
		username:   cfg.Username,
		password:   cfg.Password,
		merchantID: cfg.MerchantID,
		currency:   currency,
		baseURL:    u,
		httpClient: client,
		logger:     logger.With("gateway", "clover", "merchid", cfg.MerchantID),
	}, nil
}

// NewFromProcessor builds a client from ledger processor settings.
func NewFromProcessor(p models.PaymentProcessor, currency string, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if err := p.CheckConfig(); err != nil {
		return nil, fmt.Errorf("%w: processor %d: %v", ErrConfig, p.ID, err)
	}
	return NewClient(Config{
		BaseURL:    p.URLAPI,
		Username:   p.UserName,
		Password:   p.Password,
		MerchantID: p.Signature,
		Currency:   currency,
		Client:     httpClient,
		Logger:     logger,
	})
}

// ------- AUTH -------

// AuthorizeRequest is the input of an authorization. Capture is always
// requested by the recurring engine since this processor auto-captures.
type AuthorizeRequest struct {
	Amount   decimal.Decimal
	Currency string
	// Account is a one-time iframe token or a vaulted token.
	Account string
	Expiry  *time.Time

	Name    string
	Email   string
	Address string
	City    string
	Postal  string
	Region  string
	Country string

	ECOMInd string
	// COF is "C" for cardholder-initiated and "M" for merchant-initiated.
	COF string
	// COFScheduled is "Y" for a scheduled (recurring) charge, "N" otherwise.
	COFScheduled string
	Capture      bool
	// Profile asks the gateway to store the card and return a reusable token.
	Profile bool
	OrderID string
}

type authRequest struct {
	MerchID      string `json:"merchid"`
	Amount       string `json:"amount"`
	Account      string `json:"account"`
	Currency     string `json:"currency"`
	Expiry       string `json:"expiry,omitempty"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	Address      string `json:"address,omitempty"`
	City         string `json:"city,omitempty"`
	Postal       string `json:"postal,omitempty"`
	Region       string `json:"region,omitempty"`
	Country      string `json:"country,omitempty"`
	ECOMInd      string `json:"ecomind,omitempty"`
	COF          string `json:"cof,omitempty"`
	COFScheduled string `json:"cofscheduled,omitempty"`
	Capture      string `json:"capture,omitempty"`
	Profile      string `json:"profile,omitempty"`
	OrderID      string `json:"orderid,omitempty"`
}

func (c *Client) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = c.currency
	}
	if currency != c.currency {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}

	body := authRequest{
		MerchID:      c.merchantID,
		Amount:       req.Amount.StringFixed(2),
		Account:      req.Account,
		Currency:     currency,
		Name:         req.Name,
		Email:        req.Email,
		Address:      req.Address,
		City:         req.City,
		Postal:       req.Postal,
		Region:       twoCharCode(req.Region),
		Country:      twoCharCode(req.Country),
		ECOMInd:      req.ECOMInd,
		COF:          req.COF,
		COFScheduled: req.COFScheduled,
		Capture:      yesNo(req.Capture),
		OrderID:      req.OrderID,
	}
	if req.Expiry != nil {
		body.Expiry = req.Expiry.Format("200601")
	}
	if req.Profile {
		body.Profile = "Y"
	}

	var out AuthorizeResult
	raw, err := c.do(ctx, http.MethodPost, "auth", "auth", body, &out)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.RespText) == "" && strings.TrimSpace(out.RespStat) == "" {
		return nil, fmt.Errorf("%w: auth: missing resptext/respstat", ErrUnexpectedResponse)
	}
	out.Raw = raw
	return &out, nil
}

// ------- INQUIRE / VOID / REFUND -------

func (c *Client) Inquire(ctx context.Context, retref string) (*InquireResult, error) {
	if strings.TrimSpace(retref) == "" {
		return nil, errors.New("clover: inquire: empty retref")
	}
	var out InquireResult
	p := path.Join("inquire", url.PathEscape(retref), url.PathEscape(c.merchantID))
	raw, err := c.do(ctx, http.MethodGet, "inquire", p, nil, &out)
	if err != nil {
		return nil, err
	}
	if !out.flagsPresent {
		return nil, fmt.Errorf("%w: inquire: missing voidable/refundable", ErrUnexpectedResponse)
	}
	out.Raw = raw
	return &out, nil
}

type reversalRequest struct {
	MerchID string `json:"merchid"`
	RetRef  string `json:"retref"`
}

func (c *Client) Void(ctx context.Context, retref string) (*VoidResult, error) {
	var out VoidResult
	raw, err := c.do(ctx, http.MethodPost, "void", "void", reversalRequest{MerchID: c.merchantID, RetRef: retref}, &out)
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

func (c *Client) Refund(ctx context.Context, retref string) (*RefundResult, error) {
	var out RefundResult
	raw, err := c.do(ctx, http.MethodPost, "refund", "refund", reversalRequest{MerchID: c.merchantID, RetRef: retref}, &out)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.RespStat) == "" {
		return nil, fmt.Errorf("%w: refund: missing respstat", ErrUnexpectedResponse)
	}
	out.Raw = raw
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, op, rel string, in, out any) (json.RawMessage, error) {
	logger := c.logger.With("op", op)

	endpoint := *c.baseURL
	endpoint.Path = path.Join(endpoint.Path, rel)

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("clover %s: encode: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("clover %s: build request: %w", op, err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("request failed", "err", err, "elapsed", time.Since(started))
		return nil, fmt.Errorf("clover %s request: %w", op, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	logger.Debug("raw response", "status", resp.Status, "body", trim(string(b), 2000), "elapsed", time.Since(started))

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Status: resp.Status, Body: string(b)}
	}
	if err := json.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnexpectedResponse, op, err)
	}
	return json.RawMessage(b), nil
}

// ---------- helpers ----------

func yesNo(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

// twoCharCode keeps only values the gateway accepts for region/country.
func twoCharCode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 2 {
		return ""
	}
	return s
}

func trim(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

type Error struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	bt := strings.TrimSpace(e.Body)
	if bt == "" {
		return fmt.Sprintf("clover %s error: %s", e.Op, e.Status)
	}
	return fmt.Sprintf("clover %s error: %s: %s", e.Op, e.Status, trim(bt, 500))
}
