// Package judge is the dispatch-and-judging engine: the long-lived workers,
// per-OJ queues, and the handlers that route every persisted submission from
// the durable ingress queue through account-aware submission, asynchronous
// status polling, and the final verdict commit.
package judge

import (
	"log/slog"
	"time"

	"github.com/fairyhunter13/vjudge/internal/domain"
)

// Config carries the engine's tunables. Zero values are replaced by the
// defaults below, so tests can set only what they shorten.
type Config struct {
	// HandlerPopTimeout bounds each blocking pop of the durable queues; the
	// timeout path drives the idle reaper and the periodic problem refresh.
	HandlerPopTimeout time.Duration
	// SubmitPopTimeout bounds how long a submitter waits on its in-memory
	// queue before re-checking its stop flag.
	SubmitPopTimeout time.Duration
	// SubmitterIdleTTL is the age at which a submitter group is reaped.
	SubmitterIdleTTL time.Duration
	// CleanupInterval is how often the reaper check may run.
	CleanupInterval time.Duration
	// PollAttempts caps status polls per submission; attempt i sleeps
	// i*PollBaseInterval first, so the cumulative deadline is
	// PollBaseInterval * sum(0..PollAttempts-1), roughly 2h by default.
	PollAttempts     int
	PollBaseInterval time.Duration
	// LoginRetryLimit bounds re-submits after LoginExpired per submission.
	LoginRetryLimit int
	// ProblemStaleAfter is the staleness window of cached problems.
	ProblemStaleAfter time.Duration
	// PrefetchCount successors of each OJ's max problem id get enqueued on
	// every periodic refresh.
	PrefetchCount int
}

// DefaultConfig returns the production tunables.
func DefaultConfig() Config {
	return Config{
		HandlerPopTimeout: 600 * time.Second,
		SubmitPopTimeout:  60 * time.Second,
		SubmitterIdleTTL:  time.Hour,
		CleanupInterval:   time.Hour,
		PollAttempts:      120,
		PollBaseInterval:  time.Second,
		LoginRetryLimit:   3,
		ProblemStaleAfter: 24 * time.Hour,
		PrefetchCount:     20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HandlerPopTimeout == 0 {
		c.HandlerPopTimeout = d.HandlerPopTimeout
	}
	if c.SubmitPopTimeout == 0 {
		c.SubmitPopTimeout = d.SubmitPopTimeout
	}
	if c.SubmitterIdleTTL == 0 {
		c.SubmitterIdleTTL = d.SubmitterIdleTTL
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.PollAttempts == 0 {
		c.PollAttempts = d.PollAttempts
	}
	if c.PollBaseInterval == 0 {
		c.PollBaseInterval = d.PollBaseInterval
	}
	if c.LoginRetryLimit == 0 {
		c.LoginRetryLimit = d.LoginRetryLimit
	}
	if c.ProblemStaleAfter == 0 {
		c.ProblemStaleAfter = d.ProblemStaleAfter
	}
	if c.PrefetchCount == 0 {
		c.PrefetchCount = d.PrefetchCount
	}
	return c
}

// Deps wires the engine to its collaborators. Events may be nil.
type Deps struct {
	Submissions  domain.SubmissionRepository
	Problems     domain.ProblemRepository
	SubmitQueue  domain.DurableQueue
	ProblemQueue domain.DurableQueue
	NewClient    domain.SiteClientFactory
	Accounts     domain.Accounts
	Events       domain.VerdictPublisher
	Cfg          Config
}

// publishVerdict fans a terminal commit out to the event bus, if configured.
func (d *Deps) publishVerdict(ctx domain.Context, s domain.Submission, v domain.Verdict, exeTime, exeMem int) {
	if d.Events == nil {
		return
	}
	d.Events.Publish(ctx, domain.VerdictEvent{
		ID:        s.ID,
		OJName:    s.OJName,
		ProblemID: s.ProblemID,
		Verdict:   v,
		ExeTime:   exeTime,
		ExeMem:    exeMem,
	})
	slog.Debug("verdict event published", slog.Int64("submission_id", s.ID), slog.String("verdict", string(v)))
}
