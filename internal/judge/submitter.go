package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/vjudge/internal/adapter/observability"
	"github.com/fairyhunter13/vjudge/internal/domain"
)

// Submitter drains one per-OJ in-memory queue and relays each submission to
// the remote judge through its own authenticated client, then hands the
// submission to its paired StatusCrawler for polling. The pair shares
// credentials but never an HTTP session.
type Submitter struct {
	client  domain.SiteClient
	name    string
	userID  string
	queue   *memQueue[int64]
	crawler *StatusCrawler
	deps    *Deps

	stopFlag atomic.Bool
	done     chan struct{}

	// loginRetries bounds LoginExpired re-submits per submission so a
	// persistently broken session cannot loop hot.
	loginRetries map[int64]int
}

// NewSubmitter pairs an authenticated client with a queue and a crawler.
func NewSubmitter(client domain.SiteClient, queue *memQueue[int64], crawler *StatusCrawler, deps *Deps) (*Submitter, error) {
	userID, err := client.UserID()
	if err != nil {
		return nil, fmt.Errorf("op=submitter.new: %w", err)
	}
	return &Submitter{
		client:       client,
		name:         client.Name(),
		userID:       userID,
		queue:        queue,
		crawler:      crawler,
		deps:         deps,
		done:         make(chan struct{}),
		loginRetries: map[int64]int{},
	}, nil
}

// Start boots the paired crawler and the drain loop.
func (s *Submitter) Start(ctx context.Context) {
	s.crawler.Start(ctx)
	s.crawler.WaitStart(time.Second)
	go s.run(ctx)
}

// Stop asks the drain loop to exit after in-flight work; idempotent.
func (s *Submitter) Stop() { s.stopFlag.Store(true) }

// Alive reports whether the drain loop (and its paired crawler) still runs.
func (s *Submitter) Alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Submitter) run(ctx context.Context) {
	defer close(s.done)
	log := slog.With(slog.String("oj_name", s.name), slog.String("user_id", s.userID))
	log.Info("started submitter")
	for {
		id, ok := s.queue.pop(ctx, s.deps.Cfg.SubmitPopTimeout)
		if !ok {
			if s.stopFlag.Load() || ctx.Err() != nil {
				break
			}
			continue
		}
		s.process(ctx, id, log)
	}
	log.Info("stopping submitter")
	if err := s.crawler.Stop(); err != nil {
		log.Error("stop status crawler failed", slog.Any("error", err))
	}
	log.Info("stopped submitter")
}

// process routes one dequeued submission id.
func (s *Submitter) process(ctx context.Context, id int64, log *slog.Logger) {
	sub, err := s.deps.Submissions.Get(ctx, id)
	if err != nil {
		log.Error("submission not found", slog.Int64("submission_id", id), slog.Any("error", err))
		return
	}
	switch sub.Verdict {
	case domain.VerdictBeingJudged:
		// Recovery path: already submitted on a previous run, go straight
		// to polling.
		if err := s.crawler.AddTask(sub.ID); err != nil {
			log.Error("hand off to status crawler failed", slog.Int64("submission_id", id), slog.Any("error", err))
		}
		return
	case domain.VerdictQueuing:
	default:
		// Late-arriving stale id; terminal verdicts are never re-run.
		return
	}

	runID, err := s.client.Submit(ctx, sub.ProblemID, sub.Language, sub.SourceCode)
	switch {
	case errors.Is(err, domain.ErrLoginExpired):
		s.retryAfterRelogin(ctx, sub, log)
		return
	case err != nil:
		s.fail(ctx, sub, log, err)
		return
	}

	delete(s.loginRetries, sub.ID)
	if err := s.deps.Submissions.MarkSubmitted(ctx, sub.ID, runID, s.userID); err != nil {
		log.Error("commit submitted state failed", slog.Int64("submission_id", id), slog.Any("error", err))
		return
	}
	observability.SubmissionSubmitted(s.name)
	log.Info("submission submitted successfully",
		slog.Int64("submission_id", sub.ID), slog.String("run_id", runID))
	if err := s.crawler.AddTask(sub.ID); err != nil {
		log.Error("hand off to status crawler failed", slog.Int64("submission_id", id), slog.Any("error", err))
	}
}

// retryAfterRelogin refreshes the session and re-enqueues the submission at
// the tail of this submitter's own queue, at most LoginRetryLimit times.
func (s *Submitter) retryAfterRelogin(ctx context.Context, sub domain.Submission, log *slog.Logger) {
	if s.loginRetries[sub.ID] >= s.deps.Cfg.LoginRetryLimit {
		delete(s.loginRetries, sub.ID)
		s.fail(ctx, sub, log, fmt.Errorf("%w: login retry limit reached", domain.ErrLoginExpired))
		return
	}
	if err := s.client.RefreshSession(ctx); err != nil {
		delete(s.loginRetries, sub.ID)
		s.fail(ctx, sub, log, err)
		return
	}
	s.loginRetries[sub.ID]++
	s.queue.push(ctx, sub.ID)
	log.Debug("submitter login expired, logged in again", slog.Int64("submission_id", sub.ID))
}

func (s *Submitter) fail(ctx context.Context, sub domain.Submission, log *slog.Logger, cause error) {
	if err := s.deps.Submissions.SetVerdict(ctx, sub.ID, domain.VerdictSubmitFailed); err != nil {
		log.Error("commit submit failure failed", slog.Int64("submission_id", sub.ID), slog.Any("error", err))
		return
	}
	observability.VerdictCommitted(s.name, string(domain.VerdictSubmitFailed))
	observability.SubmissionFailed(s.name, "submit")
	s.deps.publishVerdict(ctx, sub, domain.VerdictSubmitFailed, 0, 0)
	log.Error("submission submit failed", slog.Int64("submission_id", sub.ID), slog.Any("reason", cause))
}
