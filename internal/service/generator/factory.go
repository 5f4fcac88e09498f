package generator

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/records"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/sanctions"
)

var (
	counterparties = []string{
		"Acme Industrial Supply", "Harbor Freight Partners", "Blue Ridge Consulting",
		"Olivia Thompson", "Samuel Okafor", "Nordic Timber AB", "Pacific Rim Logistics",
		"Grace Mwangi", "Lucas Moreau", "Sakura Electronics KK", "Evergreen Foods Ltd",
		"Daniel Schmidt", "Priya Raman", "Cedar Point Capital",
	}
	currencies   = []string{"USD", "EUR", "GBP", "JPY", "CHF"}
	channels     = []string{"wire", "ach", "card", "swift", "internal"}
	countries    = []string{"us", "gb", "de", "fr", "jp", "sg", "ae", "br", "za", "in"}
	txTypes      = []string{"payment", "transfer", "refund", "settlement"}
	departments  = []string{"Retail Banking", "Corporate Banking", "Treasury", "Operations", "Technology", "Compliance"}
	budgetLines  = []string{"personnel", "infrastructure", "licensing", "marketing", "travel", "consulting"}
	projectNames = []string{"Core Banking Migration", "Mobile App Refresh", "Payments Hub", "KYC Automation", "Data Lake", "Branch Modernisation"}
	projectState = []string{"planning", "in_progress", "at_risk", "on_hold", "completed"}
	regulations  = []string{"AML", "KYC", "GDPR", "PCI-DSS", "SOX", "Basel III", "MiFID II"}
	riskKinds    = []string{"market", "credit", "operational", "liquidity", "cyber", "compliance"}
	severities   = []string{"low", "medium", "high", "critical"}
)

// Factory synthesises internally consistent records. It is safe for
// concurrent use; a fixed seed yields a repeatable sequence.
type Factory struct {
	mu        sync.Mutex
	rng       *rand.Rand
	clock     clockwork.Clock
	watchlist []string
	hitRatio  float64
}

// NewFactory creates a factory. A zero seed picks one from the clock.
// hitRatio is the fraction of transactions whose counterparty is a
// watchlist name.
func NewFactory(seed int64, hitRatio float64, watchlist []string, clock clockwork.Clock) *Factory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if seed == 0 {
		seed = clock.Now().UnixNano()
	}
	if hitRatio < 0 {
		hitRatio = 0
	}
	if hitRatio > 1 {
		hitRatio = 1
	}
	if len(watchlist) == 0 {
		watchlist = sanctions.SampleNames()
	}
	return &Factory{
		rng:       rand.New(rand.NewSource(seed)),
		clock:     clock,
		watchlist: append([]string(nil), watchlist...),
		hitRatio:  hitRatio,
	}
}

func (f *Factory) pick(options []string) string {
	return options[f.rng.Intn(len(options))]
}

// between returns a value in [lo, hi)
func (f *Factory) between(lo, hi float64) float64 {
	return lo + f.rng.Float64()*(hi-lo)
}

func (f *Factory) money(lo, hi float64) decimal.Decimal {
	return decimal.NewFromFloat(f.between(lo, hi)).Round(2)
}

func newID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

// Transaction returns a routine transaction. Some fraction carry a
// watchlist counterparty.
func (f *Factory) Transaction() sanctions.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()

	counterparty := f.pick(counterparties)
	if f.rng.Float64() < f.hitRatio {
		counterparty = f.pick(f.watchlist)
	}
	return f.transaction(counterparty, f.money(10, 25000))
}

// SanctionedTransaction uses an exact watchlist name
func (f *Factory) SanctionedTransaction() sanctions.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transaction(f.pick(f.watchlist), f.money(5000, 150000))
}

// LargeTransaction is a routine counterparty moving an unusual amount
func (f *Factory) LargeTransaction() sanctions.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transaction(f.pick(counterparties), f.money(250000, 1000000))
}

func (f *Factory) transaction(counterparty string, amount decimal.Decimal) sanctions.Transaction {
	return sanctions.Transaction{
		ID:           newID("TXN"),
		Counterparty: counterparty,
		Amount:       amount,
		Currency:     f.pick(currencies),
		Channel:      f.pick(channels),
		Country:      f.pick(countries),
		Type:         f.pick(txTypes),
		Timestamp:    f.clock.Now().UTC(),
	}
}

// Budget returns a budget update with utilization between 20% and 90%
func (f *Factory) Budget() records.BudgetUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.budget(0.2, 0.9)
}

// BudgetCrisis returns a budget update with utilization of at least 95%
func (f *Factory) BudgetCrisis() records.BudgetUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.budget(0.96, 1.0)
}

func (f *Factory) budget(lo, hi float64) records.BudgetUpdate {
	allocated := decimal.NewFromInt(int64(f.between(100, 5000)) * 1000)
	spent := allocated.Mul(decimal.NewFromFloat(f.between(lo, hi))).Round(2)
	return records.NewBudgetUpdate(newID("BUD"), f.pick(departments), f.pick(budgetLines), "USD", allocated, spent, f.clock.Now())
}

func (f *Factory) Project() records.ProjectUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()

	budget := decimal.NewFromInt(int64(f.between(250, 10000)) * 1000)
	progress := f.rng.Intn(101)
	spent := budget.Mul(decimal.NewFromFloat(f.between(0.1, 1.1))).Round(2)
	score := roundScore(f.between(0, 100))
	return records.ProjectUpdate{
		ID:        newID("PRJ"),
		Name:      f.pick(projectNames),
		Status:    f.pick(projectState),
		Progress:  progress,
		Budget:    budget,
		Spent:     spent,
		RiskScore: score,
		RiskLevel: records.RiskLevelFor(score),
		Timestamp: f.clock.Now().UTC(),
	}
}

func (f *Factory) Compliance() records.ComplianceAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.compliance(f.pick(severities))
}

// CriticalCompliance is a compliance breach
func (f *Factory) CriticalCompliance() records.ComplianceAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.compliance("critical")
}

func (f *Factory) compliance(severity string) records.ComplianceAlert {
	regulation := f.pick(regulations)
	department := f.pick(departments)
	return records.ComplianceAlert{
		ID:          newID("CMP"),
		Regulation:  regulation,
		Severity:    severity,
		Description: fmt.Sprintf("%s control exception reported by %s", regulation, department),
		Department:  department,
		Timestamp:   f.clock.Now().UTC(),
	}
}

func (f *Factory) Risk() records.RiskEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.risk(f.pick(riskKinds), 0, 100)
}

// HighRisk is a market event scoring at least 80
func (f *Factory) HighRisk() records.RiskEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.risk("market", 80, 100)
}

func (f *Factory) risk(kind string, lo, hi float64) records.RiskEvent {
	score := roundScore(f.between(lo, hi))
	level := records.RiskLevelFor(score)
	return records.RiskEvent{
		ID:          newID("RSK"),
		Category:    kind,
		Score:       score,
		Level:       level,
		Description: fmt.Sprintf("%s risk indicator at %s level", kind, level),
		Timestamp:   f.clock.Now().UTC(),
	}
}

func roundScore(v float64) float64 {
	return float64(int(v*100)) / 100
}
