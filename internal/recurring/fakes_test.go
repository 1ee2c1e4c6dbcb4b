package recurring

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cloverBack/internal/clover"
	"cloverBack/internal/models"
)

// ledger is an in-memory stand-in for the MySQL repositories.
type ledger struct {
	mu            sync.Mutex
	series        map[int64]*models.RecurringSeries
	contributions []models.Contribution
	tokens        []models.PaymentToken
	activities    []models.Activity
	memberships   map[int64]int64
	links         map[int64]int64
	processors    map[int64]models.PaymentProcessor
	updates       []seriesUpdateCall
	activityErr   error
}

type seriesUpdateCall struct {
	id int64
	u  models.SeriesUpdate
}

func newLedger() *ledger {
	return &ledger{
		series:      map[int64]*models.RecurringSeries{},
		memberships: map[int64]int64{},
		links:       map[int64]int64{},
		processors:  map[int64]models.PaymentProcessor{},
	}
}

func (l *ledger) getSeries(id int64) models.RecurringSeries {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.series[id]
}

func (l *ledger) contribution(id int64) models.Contribution {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.contributions[id-1]
}

func (l *ledger) contributionsFor(seriesID int64) []models.Contribution {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Contribution
	for _, c := range l.contributions {
		if c.RecurID != nil && *c.RecurID == seriesID {
			out = append(out, c)
		}
	}
	return out
}

func (l *ledger) doneLocked(seriesID int64) int {
	n := 0
	for _, c := range l.contributions {
		if c.RecurID != nil && *c.RecurID == seriesID && c.Status == models.ContributionCompleted {
			n++
		}
	}
	return n
}

type seriesFake struct{ *ledger }

func (f seriesFake) Get(ctx context.Context, id int64) (models.RecurringSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.series[id]
	if !ok {
		return models.RecurringSeries{}, models.ErrNoRecord
	}
	return *s, nil
}

func (f seriesFake) ListDue(ctx context.Context, flt models.DueFilter) ([]models.RecurringSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RecurringSeries
	for _, s := range f.series {
		if !containsStatus(flt.Statuses, s.Status) || !containsID(flt.ProcessorIDs, s.PaymentProcessorID) {
			continue
		}
		if s.NextScheduledDate.After(flt.DueBy) {
			continue
		}
		if flt.CycleDay > 0 && s.CycleDay != flt.CycleDay {
			continue
		}
		if flt.MaxFailureCount != nil && s.FailureCount > *flt.MaxFailureCount {
			continue
		}
		cp := *s
		for _, t := range f.tokens {
			if s.PaymentTokenID != nil && t.ID == *s.PaymentTokenID {
				cp.Token = t.Token
			}
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f seriesFake) ListProgress(ctx context.Context, statuses []models.RecurStatus, processorIDs []int64) ([]models.SeriesProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SeriesProgress
	for _, s := range f.series {
		if s.Installments <= 0 || !containsStatus(statuses, s.Status) || !containsID(processorIDs, s.PaymentProcessorID) {
			continue
		}
		out = append(out, models.SeriesProgress{
			ID:               s.ID,
			Installments:     s.Installments,
			InstallmentsDone: f.doneLocked(s.ID),
			Status:           s.Status,
			EndDate:          s.EndDate,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f seriesFake) Update(ctx context.Context, id int64, u models.SeriesUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.series[id]
	if !ok {
		return models.ErrNoRecord
	}
	f.updates = append(f.updates, seriesUpdateCall{id: id, u: u})
	if u.NextScheduledDate != nil {
		s.NextScheduledDate = *u.NextScheduledDate
	}
	if u.FailureCount != nil {
		s.FailureCount = *u.FailureCount
	}
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.ClearEndDate {
		s.EndDate = nil
	} else if u.EndDate != nil {
		end := *u.EndDate
		s.EndDate = &end
	}
	if u.PaymentTokenID != nil {
		id := *u.PaymentTokenID
		s.PaymentTokenID = &id
	}
	return nil
}

type contributionsFake struct{ *ledger }

func (f contributionsFake) Get(ctx context.Context, id int64) (models.Contribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id < 1 || int(id) > len(f.contributions) {
		return models.Contribution{}, models.ErrNoRecord
	}
	return f.contributions[id-1], nil
}

func (f contributionsFake) Latest(ctx context.Context, recurID int64, amount *decimal.Decimal, isTest *bool) (models.Contribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var (
		best  models.Contribution
		found bool
	)
	for _, c := range f.contributions {
		if c.RecurID == nil || *c.RecurID != recurID || (isTest != nil && c.IsTest != *isTest) {
			continue
		}
		if amount != nil && !c.Amount.Equal(*amount) {
			continue
		}
		if !found || !c.ReceiveDate.Before(best.ReceiveDate) {
			best, found = c, true
		}
	}
	if !found {
		return models.Contribution{}, models.ErrNoRecord
	}
	return best, nil
}

func (f contributionsFake) Create(ctx context.Context, c models.Contribution) (models.Contribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = int64(len(f.contributions) + 1)
	f.contributions = append(f.contributions, c)
	return c, nil
}

func (f contributionsFake) Finalize(ctx context.Context, id int64, res models.ContributionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id < 1 || int(id) > len(f.contributions) {
		return models.ErrNoRecord
	}
	c := &f.contributions[id-1]
	if c.Status != models.ContributionPending {
		return models.ErrNoRecord
	}
	c.Status = res.Status
	c.TrxnID = res.TrxnID
	c.PanTruncation = res.PanTruncation
	c.ResultCode = res.ResultCode
	return nil
}

type tokensFake struct{ *ledger }

func (f tokensFake) CountSaved(ctx context.Context, processorID int64, token string, seriesID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.series[seriesID]
	if !ok || s.PaymentTokenID == nil {
		return 0, nil
	}
	n := 0
	for _, t := range f.tokens {
		if t.ID == *s.PaymentTokenID && t.PaymentProcessorID == processorID && t.Token == token {
			n++
		}
	}
	return n, nil
}

func (f tokensFake) Create(ctx context.Context, t models.PaymentToken) (models.PaymentToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = int64(100 + len(f.tokens))
	f.tokens = append(f.tokens, t)
	return t, nil
}

type membershipsFake struct{ *ledger }

func (f membershipsFake) ForContribution(ctx context.Context, contributionID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.memberships[contributionID]
	if !ok {
		return 0, models.ErrNoRecord
	}
	return id, nil
}

func (f membershipsFake) LinkPayment(ctx context.Context, membershipID, contributionID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[contributionID] = membershipID
	return nil
}

type activitiesFake struct{ *ledger }

func (f activitiesFake) Create(ctx context.Context, a models.Activity) (models.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activityErr != nil {
		return models.Activity{}, f.activityErr
	}
	a.ID = int64(len(f.activities) + 1)
	f.activities = append(f.activities, a)
	return a, nil
}

type processorsFake struct {
	*ledger
	err error
}

func (f processorsFake) IDsByClass(ctx context.Context, className string) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id, p := range f.processors {
		if p.ClassName == className && p.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f processorsFake) Get(ctx context.Context, id int64) (models.PaymentProcessor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.processors[id]
	if !ok {
		return models.PaymentProcessor{}, models.ErrNoRecord
	}
	return p, nil
}

type fakeGateway struct {
	mu     sync.Mutex
	calls  []clover.AuthorizeRequest
	answer func(call int, req clover.AuthorizeRequest) (*clover.AuthorizeResult, error)
}

func (g *fakeGateway) Authorize(ctx context.Context, req clover.AuthorizeRequest) (*clover.AuthorizeResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	n := len(g.calls)
	g.mu.Unlock()
	if g.answer == nil {
		return approval("T100", "9418594164540026"), nil
	}
	return g.answer(n, req)
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func approval(retref, account string) *clover.AuthorizeResult {
	return &clover.AuthorizeResult{RespStat: "A", RespText: "Approval", RespCode: "00", RetRef: retref, Account: account, Expiry: "1227"}
}

func decline() *clover.AuthorizeResult {
	return &clover.AuthorizeResult{RespStat: "C", RespText: "Decline", RespCode: "05", RetRef: "D1", Account: "9418594164540026"}
}

type fakeLocker struct {
	mu       sync.Mutex
	busy     bool
	held     map[string]bool
	acquired int
	released int
}

func (l *fakeLocker) Acquire(ctx context.Context, name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.busy || l.held[name] {
		return false, nil
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	l.held[name] = true
	l.acquired++
	return true, nil
}

func (l *fakeLocker) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, name)
	l.released++
	return nil
}

type harness struct {
	ledger     *ledger
	gw         *fakeGateway
	locker     *fakeLocker
	processors *processorsFake
	factoryErr error
	now        time.Time
	job        *Job
}

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	l := newLedger()
	l.processors[4] = models.PaymentProcessor{
		ID: 4, Name: "Clover", ClassName: models.CloverClassName,
		UserName: "user", Password: "key", Signature: "496160873888", URLAPI: "https://example.test/cardconnect/rest/auth",
		IsActive: true,
	}
	h := &harness{
		ledger:     l,
		gw:         &fakeGateway{},
		locker:     &fakeLocker{},
		processors: &processorsFake{ledger: l},
		now:        testNow,
	}
	job, err := NewJob(h.deps(), Config{})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	h.job = job
	return h
}

func (h *harness) deps() Deps {
	return Deps{
		Locker:        h.locker,
		Series:        seriesFake{h.ledger},
		Contributions: contributionsFake{h.ledger},
		Tokens:        tokensFake{h.ledger},
		Memberships:   membershipsFake{h.ledger},
		Activities:    activitiesFake{h.ledger},
		Processors:    h.processors,
		Gateways: func(p models.PaymentProcessor, currency string) (Gateway, error) {
			if h.factoryErr != nil {
				return nil, h.factoryErr
			}
			return h.gw, nil
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return h.now },
	}
}

// addSeries stores a monthly 10.00 USD series due at 09:00 today with a
// boarded token.
func (h *harness) addSeries(id int64, mutate ...func(*models.RecurringSeries)) *models.RecurringSeries {
	h.ledger.mu.Lock()
	defer h.ledger.mu.Unlock()
	tokenID := 900 + id
	h.ledger.tokens = append(h.ledger.tokens, models.PaymentToken{ID: tokenID, ContactID: 40 + id, PaymentProcessorID: 4, Token: "9418594164540026"})
	s := &models.RecurringSeries{
		ID:                  id,
		ContactID:           40 + id,
		Amount:              decimal.RequireFromString("10.00"),
		Currency:            "USD",
		FrequencyInterval:   1,
		FrequencyUnit:       "month",
		NextScheduledDate:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Status:              models.RecurInProgress,
		PaymentTokenID:      &tokenID,
		PaymentProcessorID:  4,
		PaymentInstrumentID: 1,
		FinancialTypeID:     1,
		CycleDay:            1,
	}
	for _, m := range mutate {
		m(s)
	}
	h.ledger.series[id] = s
	return s
}

func containsStatus(list []models.RecurStatus, st models.RecurStatus) bool {
	for _, v := range list {
		if v == st {
			return true
		}
	}
	return false
}

func containsID(list []int64, id int64) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
