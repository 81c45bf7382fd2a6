package engine

import (
	"context"

	"github.com/albapepper/matchpipe/internal/adapter"
)

// adapterFacade implements adapter.EngineFacade bound to one adapter and
// engine instance, so an adapter's DiscoverEvents/ScrapeEvent hooks can
// call back into fetch/discovery capability without the adapter package
// importing engine (avoids the cycle — see adapter.EngineFacade's doc).
type adapterFacade struct {
	engine *Engine
	a      *adapter.Adapter
}

func (f adapterFacade) FetchHTML(ctx context.Context, url string) (string, error) {
	return f.engine.fetchHTML(ctx, f.a, url)
}

func (f adapterFacade) FetchJSON(ctx context.Context, url string) ([]byte, error) {
	return f.engine.fetchJSON(ctx, f.a, url)
}

func (f adapterFacade) DiscoverFromDatabase(ctx context.Context, sourcePrefix string, lookbackDays, forwardDays int) ([]adapter.Event, error) {
	return f.engine.discoverFromDatabase(ctx, sourcePrefix, lookbackDays, forwardDays)
}
