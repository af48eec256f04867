package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/viscontia/expensefx/internal/config"
	"github.com/viscontia/expensefx/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		ProviderURL:          "https://rates.example/latest/{base}",
		ProviderTimeout:      5 * time.Second,
		ProviderRateLimit:    100,
		BaseCurrencies:       []string{"EUR", "USD"},
		TargetCurrencies:     []string{"EUR", "USD", "ZAR"},
		CacheCapacity:        100,
		StalenessHorizon:     time.Hour,
		ConversionWindowDays: 7,
		MigrationWindowDays:  30,
	}
}

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// mockRateStore implements store.RateStore with per-method hooks and an
// in-memory frozen/daily map for the common cases.
type mockRateStore struct {
	mu     sync.Mutex
	daily  map[string]*models.DailyRate
	frozen map[string]models.FrozenRate

	putDailyCalls  []models.RatePair
	batchPuts      [][]models.RatePair
	batchTimestamp time.Time
	cleared        bool
	existsForDay   bool
	existsErr      error
	nearest        *models.NearestRate
	nearestErr     error
	findDailyErr   error
	putFrozenErr   error
	latest         *time.Time
}

func newMockRateStore() *mockRateStore {
	return &mockRateStore{
		daily:  make(map[string]*models.DailyRate),
		frozen: make(map[string]models.FrozenRate),
	}
}

func pairKey(from, to string) string { return from + "_" + to }

func frozenKey(expenseID int64, from, to string) string {
	return fmt.Sprintf("%d_%s_%s", expenseID, from, to)
}

func (m *mockRateStore) PutDaily(ctx context.Context, from, to string, rate decimal.Decimal, sampleDate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := models.RatePair{FromCurrency: from, ToCurrency: to, Rate: rate}
	m.putDailyCalls = append(m.putDailyCalls, p)
	m.daily[pairKey(from, to)] = &models.DailyRate{
		FromCurrency: from, ToCurrency: to, Rate: rate,
		SampleDate: sampleDate, Day: models.DateOnly(sampleDate),
	}
	return nil
}

func (m *mockRateStore) BatchPutDaily(ctx context.Context, pairs []models.RatePair, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchPuts = append(m.batchPuts, pairs)
	m.batchTimestamp = ts
	for _, p := range pairs {
		m.daily[pairKey(p.FromCurrency, p.ToCurrency)] = &models.DailyRate{
			FromCurrency: p.FromCurrency, ToCurrency: p.ToCurrency, Rate: p.Rate,
			SampleDate: ts, Day: models.DateOnly(ts),
		}
	}
	return nil
}

func (m *mockRateStore) ClearAllDaily(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = true
	m.daily = make(map[string]*models.DailyRate)
	return nil
}

func (m *mockRateStore) ListCurrencies(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (m *mockRateStore) LatestDailyUpdate(ctx context.Context) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, nil
}

func (m *mockRateStore) FindDaily(ctx context.Context, from, to string, recentWithin time.Duration) (*models.DailyRate, error) {
	if m.findDailyErr != nil {
		return nil, m.findDailyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.daily[pairKey(from, to)]
	if !ok || time.Since(r.SampleDate) > recentWithin {
		return nil, nil
	}
	return r, nil
}

func (m *mockRateStore) FindAnyDaily(ctx context.Context, from, to string) (*models.DailyRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.daily[pairKey(from, to)], nil
}

func (m *mockRateStore) FindNearestDaily(ctx context.Context, from, to string, targetDay time.Time, windowDays int) (*models.NearestRate, error) {
	return m.nearest, m.nearestErr
}

func (m *mockRateStore) ExistsRatesForDay(ctx context.Context, ts time.Time) (bool, error) {
	return m.existsForDay, m.existsErr
}

func (m *mockRateStore) PutFrozen(ctx context.Context, expenseID int64, pairs []models.RatePair, capturedAt time.Time) error {
	if m.putFrozenErr != nil {
		return m.putFrozenErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range pairs {
		key := frozenKey(expenseID, p.FromCurrency, p.ToCurrency)
		if _, exists := m.frozen[key]; exists {
			continue
		}
		m.frozen[key] = models.FrozenRate{
			ExpenseID: expenseID, FromCurrency: p.FromCurrency, ToCurrency: p.ToCurrency,
			Rate: p.Rate, CapturedAt: capturedAt,
		}
	}
	return nil
}

func (m *mockRateStore) FindFrozen(ctx context.Context, expenseID int64, from, to string) (*models.FrozenRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.frozen[frozenKey(expenseID, from, to)]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *mockRateStore) CountFrozen(ctx context.Context, expenseID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, r := range m.frozen {
		if r.ExpenseID == expenseID {
			count++
		}
	}
	return count, nil
}

func (m *mockRateStore) DeleteFrozenByExpenseIDs(ctx context.Context, expenseIDs []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, r := range m.frozen {
		for _, id := range expenseIDs {
			if r.ExpenseID == id {
				delete(m.frozen, key)
				n++
			}
		}
	}
	return n, nil
}

func (m *mockRateStore) DistinctFrozenExpenseIDs(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int64]bool)
	var ids []int64
	for _, r := range m.frozen {
		if !seen[r.ExpenseID] {
			seen[r.ExpenseID] = true
			ids = append(ids, r.ExpenseID)
		}
	}
	return ids, nil
}

// mockExpenseStore implements store.ExpenseStore over a map.
type mockExpenseStore struct {
	mu       sync.Mutex
	expenses map[int64]*models.Expense
	nextID   int64
}

func newMockExpenseStore() *mockExpenseStore {
	return &mockExpenseStore{expenses: make(map[int64]*models.Expense), nextID: 1}
}

func (m *mockExpenseStore) Create(ctx context.Context, e *models.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.nextID
	m.nextID++
	cp := *e
	m.expenses[e.ID] = &cp
	return nil
}

func (m *mockExpenseStore) GetByID(ctx context.Context, id int64) (*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.expenses[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (m *mockExpenseStore) List(ctx context.Context, filter *models.ExpenseFilter) ([]*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Expense
	for _, e := range m.expenses {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockExpenseStore) Update(ctx context.Context, e *models.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.expenses[e.ID] = &cp
	return nil
}

func (m *mockExpenseStore) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expenses, id)
	return nil
}

func (m *mockExpenseStore) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.expenses), nil
}

func (m *mockExpenseStore) ListBatchAfter(ctx context.Context, afterID int64, limit int) ([]*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Expense
	for id := afterID + 1; len(out) < limit && id < m.nextID; id++ {
		if e, ok := m.expenses[id]; ok {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// mockProvider implements RateProvider with canned rate maps per base.
type mockProvider struct {
	mu         sync.Mutex
	rates      map[string]map[string]decimal.Decimal
	err        error
	fetchCalls int
}

func newMockProvider() *mockProvider {
	return &mockProvider{rates: make(map[string]map[string]decimal.Decimal)}
}

func (p *mockProvider) setRate(from, to string, rate decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rates[from] == nil {
		p.rates[from] = make(map[string]decimal.Decimal)
	}
	p.rates[from][to] = rate
}

func (p *mockProvider) FetchLatest(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchCalls++
	if p.err != nil {
		return nil, p.err
	}
	m, ok := p.rates[base]
	if !ok {
		return nil, fmt.Errorf("no rates for base %s", base)
	}
	out := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

func (p *mockProvider) LatestRates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	return p.FetchLatest(ctx, base)
}

func (p *mockProvider) CurrentRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	rates, err := p.FetchLatest(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}
	if r, ok := rates[to]; ok {
		return r, nil
	}
	return decimal.Zero, fmt.Errorf("rate not found for %s to %s", from, to)
}
