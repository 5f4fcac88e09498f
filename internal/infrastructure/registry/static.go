package registry

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/sanctions"
)

// StaticFetcher serves the built-in sample watchlist when no registry API
// is configured
type StaticFetcher struct {
	clock clockwork.Clock
}

func NewStaticFetcher(clock clockwork.Clock) *StaticFetcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StaticFetcher{clock: clock}
}

func (s *StaticFetcher) FetchEntities(ctx context.Context) ([]sanctions.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sanctions.SampleWatchlist(s.clock.Now()), nil
}

func (s *StaticFetcher) Source() string {
	return "builtin-sample"
}
