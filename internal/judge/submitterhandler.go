package judge

import (
	"context"
	"log/slog"
	"time"

	"github.com/fairyhunter13/vjudge/internal/adapter/observability"
	"github.com/fairyhunter13/vjudge/internal/domain"
)

// submitterGroup is the set of running submitters for one OJ plus the time
// the group was started, which the idle reaper keys on.
type submitterGroup struct {
	submitters map[string]*Submitter
	startTime  time.Time
}

// SubmitterHandler bridges the durable submit queue and the per-OJ
// submitters: it pops persisted submission ids, lazily starts a submitter
// group per OJ on first traffic, fans ids out to per-OJ in-memory queues,
// and periodically reaps groups that have outlived their TTL.
type SubmitterHandler struct {
	deps *Deps

	queues   map[string]*memQueue[int64]
	running  map[string]*submitterGroup
	stopping []*Submitter
}

// NewSubmitterHandler builds the handler; Run does the work.
func NewSubmitterHandler(deps *Deps) *SubmitterHandler {
	return &SubmitterHandler{
		deps:    deps,
		queues:  map[string]*memQueue[int64]{},
		running: map[string]*submitterGroup{},
	}
}

// Run drains the durable submit queue until ctx ends. It first replays all
// persisted non-terminal submissions (crash recovery; relative order may
// reshuffle, the verdict gate in the submitter keeps replays idempotent).
func (h *SubmitterHandler) Run(ctx context.Context) {
	h.recoverUnfinished(ctx)
	lastClean := time.Now()
	for ctx.Err() == nil {
		payload, ok, err := h.deps.SubmitQueue.Pop(ctx, h.deps.Cfg.HandlerPopTimeout)
		if time.Since(lastClean) > h.deps.Cfg.CleanupInterval {
			h.cleanFreeSubmitters()
			lastClean = time.Now()
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Error("submit queue pop failed", slog.Any("error", err))
			sleepCtx(ctx, time.Second)
			continue
		}
		if !ok {
			continue
		}
		h.dispatch(ctx, payload)
	}
	h.shutdown()
}

func (h *SubmitterHandler) dispatch(ctx context.Context, payload string) {
	id, err := domain.DecodeSubmissionID(payload)
	if err != nil {
		observability.CorruptPayload("submit")
		slog.Error("submitter handler received corrupt payload", slog.String("payload", payload))
		return
	}
	sub, err := h.deps.Submissions.Get(ctx, id)
	if err != nil {
		slog.Error("submission not found", slog.Int64("submission_id", id), slog.Any("error", err))
		return
	}
	q, ok := h.queues[sub.OJName]
	if !ok {
		q = newMemQueue[int64]()
		h.queues[sub.OJName] = q
	}
	if _, ok := h.running[sub.OJName]; !ok {
		if !h.startSubmitters(ctx, sub.OJName, q) {
			if err := h.deps.Submissions.SetVerdict(ctx, id, domain.VerdictSubmitFailed); err != nil {
				slog.Error("commit submit failure failed", slog.Int64("submission_id", id), slog.Any("error", err))
				return
			}
			observability.SubmissionFailed(sub.OJName, "no_submitter")
			h.deps.publishVerdict(ctx, sub, domain.VerdictSubmitFailed, 0, 0)
			slog.Error("cannot start submitters", slog.String("oj_name", sub.OJName), slog.Int64("submission_id", id))
			return
		}
	}
	q.push(ctx, id)
}

// recoverUnfinished replays every Queuing/Being Judged submission onto the
// durable queue.
func (h *SubmitterHandler) recoverUnfinished(ctx context.Context) {
	ids, err := h.deps.Submissions.ListUnfinished(ctx)
	if err != nil {
		slog.Error("scan unfinished submissions failed", slog.Any("error", err))
		return
	}
	for _, id := range ids {
		if err := h.deps.SubmitQueue.Push(ctx, domain.EncodeSubmissionID(id)); err != nil {
			slog.Error("replay submission failed", slog.Int64("submission_id", id), slog.Any("error", err))
		}
	}
	if len(ids) > 0 {
		slog.Info("replayed unfinished submissions", slog.Int("count", len(ids)))
	}
}

// startSubmitters builds one (Submitter, StatusCrawler) pair per account of
// the OJ, each pair on two independent authenticated sessions so polling
// never contends with submission. Accounts that fail to construct are
// skipped; the group starts if at least one pair came up.
func (h *SubmitterHandler) startSubmitters(ctx context.Context, ojName string, q *memQueue[int64]) bool {
	creds := h.deps.Accounts.For(ojName)
	if len(creds) == 0 {
		return false
	}
	group := &submitterGroup{submitters: map[string]*Submitter{}}
	for _, cred := range creds {
		cred := cred
		sm, err := h.buildPair(ojName, &cred, q)
		if err != nil {
			slog.Error("create submitter failed",
				slog.String("oj_name", ojName), slog.String("user_id", cred.Username), slog.Any("error", err))
			continue
		}
		sm.Start(ctx)
		group.submitters[cred.Username] = sm
	}
	if len(group.submitters) == 0 {
		return false
	}
	group.startTime = time.Now()
	h.running[ojName] = group
	observability.RunningSubmitters.WithLabelValues(ojName).Set(float64(len(group.submitters)))
	return true
}

func (h *SubmitterHandler) buildPair(ojName string, cred *domain.Credentials, q *memQueue[int64]) (*Submitter, error) {
	crawlerClient, err := h.deps.NewClient(ojName, cred)
	if err != nil {
		return nil, err
	}
	crawler, err := NewStatusCrawler(crawlerClient, h.deps)
	if err != nil {
		return nil, err
	}
	submitClient, err := h.deps.NewClient(ojName, cred)
	if err != nil {
		return nil, err
	}
	return NewSubmitter(submitClient, q, crawler, h.deps)
}

// cleanFreeSubmitters tears down groups older than the idle TTL and sweeps
// submitters that have finished stopping. Reclaims sessions gone cold; the
// next submission for the OJ starts a fresh group.
func (h *SubmitterHandler) cleanFreeSubmitters() {
	for ojName, group := range h.running {
		if time.Since(group.startTime) <= h.deps.Cfg.SubmitterIdleTTL {
			continue
		}
		for _, sm := range group.submitters {
			sm.Stop()
			h.stopping = append(h.stopping, sm)
		}
		delete(h.running, ojName)
		observability.RunningSubmitters.WithLabelValues(ojName).Set(0)
		slog.Info("no more tasks, stopping submitters", slog.String("oj_name", ojName))
	}
	alive := h.stopping[:0]
	for _, sm := range h.stopping {
		if sm.Alive() {
			alive = append(alive, sm)
		}
	}
	h.stopping = alive
	slog.Info("cleaned free submitters",
		slog.Int("running_groups", len(h.running)), slog.Int("stopping", len(h.stopping)))
}

// shutdown stops every running submitter on context cancellation.
func (h *SubmitterHandler) shutdown() {
	for ojName, group := range h.running {
		for _, sm := range group.submitters {
			sm.Stop()
		}
		delete(h.running, ojName)
		observability.RunningSubmitters.WithLabelValues(ojName).Set(0)
	}
}
