package generator_test

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/records"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/sanctions"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/generator"
)

func TestFactory_SeedIsRepeatable(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := generator.NewFactory(7, 0.5, nil, clock)
	b := generator.NewFactory(7, 0.5, nil, clock)

	for i := 0; i < 20; i++ {
		ta, tb := a.Transaction(), b.Transaction()
		assert.Equal(t, ta.Counterparty, tb.Counterparty)
		assert.True(t, ta.Amount.Equal(tb.Amount))
	}
}

func TestFactory_HitRatio(t *testing.T) {
	clock := clockwork.NewFakeClock()
	watchlist := []string{"Juan Perez"}

	always := generator.NewFactory(1, 1, watchlist, clock)
	never := generator.NewFactory(1, 0, watchlist, clock)
	for i := 0; i < 50; i++ {
		assert.Equal(t, "Juan Perez", always.Transaction().Counterparty)
		assert.NotEqual(t, "Juan Perez", never.Transaction().Counterparty)
	}
}

func TestFactory_RecordsAreConsistent(t *testing.T) {
	f := generator.NewFactory(3, 0, nil, clockwork.NewFakeClock())

	for i := 0; i < 100; i++ {
		b := f.Budget()
		assert.True(t, b.Spent.LessThanOrEqual(b.Allocated))
		assert.LessOrEqual(t, b.Utilization, 100.0)

		p := f.Project()
		assert.Equal(t, records.RiskLevelFor(p.RiskScore), p.RiskLevel)
		assert.GreaterOrEqual(t, p.Progress, 0)
		assert.LessOrEqual(t, p.Progress, 100)

		r := f.Risk()
		assert.Equal(t, records.RiskLevelFor(r.Score), r.Level)

		tx := f.Transaction()
		assert.True(t, tx.HasCounterparty())
		assert.True(t, tx.Amount.IsPositive())

		assert.Contains(t, sanctions.SampleNames(), f.SanctionedTransaction().Counterparty)
		assert.True(t, f.LargeTransaction().Amount.GreaterThanOrEqual(decimal.NewFromInt(250000)))
	}
}
