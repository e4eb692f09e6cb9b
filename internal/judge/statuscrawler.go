package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/vjudge/internal/adapter/observability"
	"github.com/fairyhunter13/vjudge/internal/domain"
)

// StatusCrawler multiplexes many in-flight status polls over one
// authenticated site client. Each submission handed in via AddTask becomes
// an independent poll task; tasks sleep between polls with a linear
// back-off, so a slow submission never delays a fast one. The shared client
// is serialized with a mutex because site clients are not concurrency safe.
//
// Lifecycle: Start boots the crawler, AddTask is callable from any
// goroutine afterwards, Stop is one-shot and waits for outstanding tasks.
type StatusCrawler struct {
	client domain.SiteClient
	name   string
	userID string
	deps   *Deps

	ctx      context.Context
	started  chan struct{}
	stopping chan struct{}
	stopped  bool

	mu       sync.Mutex // guards started/stopping transitions
	clientMu sync.Mutex // serializes site-client calls across poll tasks
	tasks    sync.WaitGroup
}

// NewStatusCrawler builds a crawler around an authenticated client.
func NewStatusCrawler(client domain.SiteClient, deps *Deps) (*StatusCrawler, error) {
	userID, err := client.UserID()
	if err != nil {
		return nil, fmt.Errorf("op=statuscrawler.new: %w", err)
	}
	return &StatusCrawler{
		client:   client,
		name:     client.Name(),
		userID:   userID,
		deps:     deps,
		started:  make(chan struct{}),
		stopping: make(chan struct{}),
	}, nil
}

// Start arms the crawler; poll tasks inherit ctx and exit early when it ends.
func (c *StatusCrawler) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.started:
		return
	default:
	}
	c.ctx = ctx
	close(c.started)
}

// WaitStart blocks until the crawler is started or timeout elapses.
func (c *StatusCrawler) WaitStart(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.started:
		return true
	case <-t.C:
		return false
	}
}

// AddTask schedules one poll task for a submission. Callable from any
// goroutine once the crawler is started.
func (c *StatusCrawler) AddTask(submissionID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.started:
	default:
		return fmt.Errorf("op=statuscrawler.add_task: cannot add task before crawler is started")
	}
	select {
	case <-c.stopping:
		return fmt.Errorf("op=statuscrawler.add_task: cannot add task when crawler is stopping")
	default:
	}
	c.tasks.Add(1)
	go c.crawl(submissionID)
	return nil
}

// Stop refuses new tasks and waits for outstanding poll tasks to finish.
// It is one-shot: a second call is a programming error.
func (c *StatusCrawler) Stop() error {
	c.mu.Lock()
	select {
	case <-c.started:
	default:
		c.mu.Unlock()
		return fmt.Errorf("op=statuscrawler.stop: cannot stop crawler before it is started")
	}
	if c.stopped {
		c.mu.Unlock()
		return fmt.Errorf("op=statuscrawler.stop: crawler can only be stopped once")
	}
	c.stopped = true
	close(c.stopping)
	c.mu.Unlock()
	c.tasks.Wait()
	return nil
}

// crawl is one poll task: it polls the judge with a linear back-off until
// the verdict turns terminal, the attempt budget runs out, or the root
// context ends.
func (c *StatusCrawler) crawl(submissionID int64) {
	defer c.tasks.Done()
	ctx := c.ctx
	taskID := uuid.NewString()
	log := slog.With(
		slog.String("task_id", taskID),
		slog.Int64("submission_id", submissionID),
		slog.String("oj_name", c.name),
		slog.String("user_id", c.userID),
	)

	sub, err := c.deps.Submissions.Get(ctx, submissionID)
	if err != nil {
		log.Error("crawl status: load submission failed", slog.Any("error", err))
		return
	}
	if sub.RunID == "" || sub.OJName != c.name || sub.Verdict != domain.VerdictBeingJudged {
		return
	}

	base := c.deps.Cfg.PollBaseInterval
	for attempt := 0; attempt < c.deps.Cfg.PollAttempts; attempt++ {
		if !sleepCtx(ctx, time.Duration(attempt)*base) {
			return
		}
		c.clientMu.Lock()
		res, err := c.client.Status(ctx, sub.RunID, domain.StatusQuery{
			UserID:    sub.UserID,
			ProblemID: sub.ProblemID,
		})
		c.clientMu.Unlock()
		switch {
		case errors.Is(err, domain.ErrLoginExpired):
			c.clientMu.Lock()
			refreshErr := c.client.RefreshSession(ctx)
			c.clientMu.Unlock()
			if refreshErr != nil {
				log.Warn("status crawler re-login failed", slog.Any("error", refreshErr))
			} else {
				log.Debug("status crawler login expired, logged in again")
			}
			// Re-login does not count against the attempt budget.
			attempt--
			continue
		case err != nil:
			c.commitFailure(ctx, sub, log, err)
			return
		}
		if res.Verdict.Transient() {
			continue
		}
		if err := c.deps.Submissions.SetResult(ctx, sub.ID, res.Verdict, res.ExeTime, res.ExeMem); err != nil {
			log.Error("crawl status: commit failed", slog.Any("error", err))
			return
		}
		observability.VerdictCommitted(c.name, string(res.Verdict))
		observability.PollAttempts.Observe(float64(attempt + 1))
		c.deps.publishVerdict(ctx, sub, res.Verdict, res.ExeTime, res.ExeMem)
		log.Info("crawled status successfully", slog.String("verdict", string(res.Verdict)))
		return
	}
	c.commitFailure(ctx, sub, log, errors.New("timeout"))
}

func (c *StatusCrawler) commitFailure(ctx context.Context, sub domain.Submission, log *slog.Logger, cause error) {
	if err := c.deps.Submissions.SetVerdict(ctx, sub.ID, domain.VerdictJudgeFailed); err != nil {
		log.Error("crawl status: commit failed", slog.Any("error", err))
		return
	}
	observability.VerdictCommitted(c.name, string(domain.VerdictJudgeFailed))
	observability.SubmissionFailed(c.name, "judge")
	c.deps.publishVerdict(ctx, sub, domain.VerdictJudgeFailed, 0, 0)
	log.Error("crawled status failed", slog.Any("reason", cause))
}

// sleepCtx sleeps d unless ctx ends first; returns false on early exit.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
