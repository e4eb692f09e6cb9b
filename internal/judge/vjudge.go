package judge

import (
	"log/slog"
	"sync"

	"github.com/fairyhunter13/vjudge/internal/domain"
)

// Engine owns the two handler loops. One Engine per process.
type Engine struct {
	deps    *Deps
	submits *SubmitterHandler
	crawls  *CrawlerHandler
	wg      sync.WaitGroup
}

// New validates the wiring and builds the engine. A missing accounts file is
// tolerated so the crawl-only path still works, but it is loudly logged.
func New(deps Deps) *Engine {
	deps.Cfg = deps.Cfg.withDefaults()
	if deps.Accounts.Empty() {
		slog.Warn("no judge accounts configured, submissions will fail")
	}
	d := &deps
	return &Engine{
		deps:    d,
		submits: NewSubmitterHandler(d),
		crawls:  NewCrawlerHandler(d),
	}
}

// Start runs both handler loops until ctx ends.
func (e *Engine) Start(ctx domain.Context) {
	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.submits.Run(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.crawls.Run(ctx)
	}()
	slog.Info("judge engine started")
}

// Wait blocks until both handler loops have exited.
func (e *Engine) Wait() {
	e.wg.Wait()
	slog.Info("judge engine stopped")
}
