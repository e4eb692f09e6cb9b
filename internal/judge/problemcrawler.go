package judge

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/vjudge/internal/adapter/observability"
	"github.com/fairyhunter13/vjudge/internal/domain"
)

// ProblemCrawler drains one per-OJ problem queue and refreshes problem
// records with an anonymous site client. There is exactly one crawler per
// OJ, so refreshes of that OJ never run concurrently.
type ProblemCrawler struct {
	client domain.SiteClient
	name   string
	queue  *memQueue[string]
	deps   *Deps

	stopFlag atomic.Bool
	done     chan struct{}
}

// NewProblemCrawler binds an anonymous client to a problem queue.
func NewProblemCrawler(client domain.SiteClient, queue *memQueue[string], deps *Deps) *ProblemCrawler {
	return &ProblemCrawler{
		client: client,
		name:   client.Name(),
		queue:  queue,
		deps:   deps,
		done:   make(chan struct{}),
	}
}

// Start boots the drain loop.
func (c *ProblemCrawler) Start(ctx context.Context) { go c.run(ctx) }

// Stop asks the drain loop to exit; idempotent.
func (c *ProblemCrawler) Stop() { c.stopFlag.Store(true) }

// Alive reports whether the drain loop still runs.
func (c *ProblemCrawler) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *ProblemCrawler) run(ctx context.Context) {
	defer close(c.done)
	log := slog.With(slog.String("oj_name", c.name))
	log.Info("started problem crawler")
	for {
		problemID, ok := c.queue.pop(ctx, c.deps.Cfg.SubmitPopTimeout)
		if !ok {
			if c.stopFlag.Load() || ctx.Err() != nil {
				break
			}
			continue
		}
		c.refresh(ctx, problemID, log)
	}
	log.Info("stopped problem crawler")
}

// refresh fetches one problem and upserts it; connection failures and
// unknown problems are dropped, updates are idempotent on the key.
func (c *ProblemCrawler) refresh(ctx context.Context, problemID string, log *slog.Logger) {
	p, err := c.client.Problem(ctx, problemID)
	if err != nil {
		if !errors.Is(err, domain.ErrConnection) {
			log.Error("fetch problem failed", slog.String("problem_id", problemID), slog.Any("error", err))
		}
		return
	}
	if p == nil {
		return
	}
	p.OJName = c.name
	p.ProblemID = problemID
	p.LastUpdate = time.Now().UTC()
	if err := c.deps.Problems.Upsert(ctx, *p); err != nil {
		log.Error("problem upsert failed", slog.String("problem_id", problemID), slog.Any("error", err))
		return
	}
	observability.ProblemRefreshed(c.name)
	log.Info("problem updated", slog.String("problem_id", problemID), slog.String("title", p.Title))
}
