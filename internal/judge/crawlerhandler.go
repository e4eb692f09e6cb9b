package judge

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/fairyhunter13/vjudge/internal/adapter/observability"
	"github.com/fairyhunter13/vjudge/internal/domain"
)

// CrawlerHandler drains the durable problem queue and fans crawl requests out
// to per-OJ problem crawlers. When the queue stays silent for a full pop
// timeout it re-enqueues every stale problem plus a short run of successor
// ids past the highest numeric problem id of each OJ, so the catalogue keeps
// itself fresh without a separate scheduler.
type CrawlerHandler struct {
	deps *Deps

	queues   map[string]*memQueue[string]
	crawlers map[string]*ProblemCrawler
}

// NewCrawlerHandler builds the handler; Run does the work.
func NewCrawlerHandler(deps *Deps) *CrawlerHandler {
	return &CrawlerHandler{
		deps:     deps,
		queues:   map[string]*memQueue[string]{},
		crawlers: map[string]*ProblemCrawler{},
	}
}

// Run drains the durable problem queue until ctx ends.
func (h *CrawlerHandler) Run(ctx context.Context) {
	for ctx.Err() == nil {
		payload, ok, err := h.deps.ProblemQueue.Pop(ctx, h.deps.Cfg.HandlerPopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Error("problem queue pop failed", slog.Any("error", err))
			sleepCtx(ctx, time.Second)
			continue
		}
		if !ok {
			h.refreshProblems(ctx)
			continue
		}
		h.dispatch(ctx, payload)
	}
	h.shutdown()
}

func (h *CrawlerHandler) dispatch(ctx context.Context, payload string) {
	req, err := domain.DecodeCrawlRequest(payload)
	if err != nil {
		observability.CorruptPayload("problem")
		slog.Error("crawler handler received corrupt payload", slog.String("payload", payload))
		return
	}
	switch req.Type {
	case domain.CrawlTypeProblem:
		h.dispatchProblem(ctx, req)
	case domain.CrawlTypeContest:
		slog.Error("contest crawling is not supported",
			slog.String("oj_name", req.OJName), slog.String("contest_id", req.ContestID))
	default:
		slog.Error("unknown crawl type", slog.String("type", req.Type))
	}
}

func (h *CrawlerHandler) dispatchProblem(ctx context.Context, req domain.CrawlRequest) {
	if !h.deps.Accounts.Known(req.OJName) {
		slog.Error("crawl request for unknown judge", slog.String("oj_name", req.OJName))
		return
	}
	q, err := h.ensureCrawler(ctx, req.OJName)
	if err != nil {
		slog.Error("create problem crawler failed", slog.String("oj_name", req.OJName), slog.Any("error", err))
		return
	}
	if req.All {
		ids, err := h.deps.Problems.ListIDs(ctx, req.OJName)
		if err != nil {
			slog.Error("list problem ids failed", slog.String("oj_name", req.OJName), slog.Any("error", err))
			return
		}
		for _, id := range ids {
			q.push(ctx, id)
		}
		return
	}
	if req.ProblemID == "" {
		slog.Error("crawl request without problem id", slog.String("oj_name", req.OJName))
		return
	}
	q.push(ctx, req.ProblemID)
}

// ensureCrawler lazily starts one problem crawler per OJ, on an anonymous
// client since problem pages need no login.
func (h *CrawlerHandler) ensureCrawler(ctx context.Context, ojName string) (*memQueue[string], error) {
	if q, ok := h.queues[ojName]; ok {
		return q, nil
	}
	client, err := h.deps.NewClient(ojName, nil)
	if err != nil {
		return nil, err
	}
	q := newMemQueue[string]()
	c := NewProblemCrawler(client, q, h.deps)
	c.Start(ctx)
	h.queues[ojName] = q
	h.crawlers[ojName] = c
	return q, nil
}

// refreshProblems runs on idle: every problem not updated within the stale
// window is re-enqueued, and for each OJ a short run of ids past the current
// maximum is probed so newly published problems get picked up.
func (h *CrawlerHandler) refreshProblems(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-h.deps.Cfg.ProblemStaleAfter)
	stale, err := h.deps.Problems.ListStale(ctx, cutoff)
	if err != nil {
		slog.Error("list stale problems failed", slog.Any("error", err))
		return
	}
	enqueued := 0
	for _, key := range stale {
		if h.pushCrawl(ctx, key.OJName, key.ProblemID) {
			enqueued++
		}
	}
	maxIDs, err := h.deps.Problems.MaxIDs(ctx)
	if err != nil {
		slog.Error("list max problem ids failed", slog.Any("error", err))
		return
	}
	for ojName, maxID := range maxIDs {
		base, err := strconv.ParseInt(maxID, 10, 64)
		if err != nil {
			continue
		}
		for i := int64(1); i <= int64(h.deps.Cfg.PrefetchCount); i++ {
			if h.pushCrawl(ctx, ojName, strconv.FormatInt(base+i, 10)) {
				enqueued++
			}
		}
	}
	if enqueued > 0 {
		slog.Info("scheduled problem refresh", slog.Int("count", enqueued))
	}
}

func (h *CrawlerHandler) pushCrawl(ctx context.Context, ojName, problemID string) bool {
	payload, err := domain.EncodeCrawlRequest(domain.CrawlRequest{
		Type:      domain.CrawlTypeProblem,
		OJName:    ojName,
		ProblemID: problemID,
	})
	if err != nil {
		slog.Error("encode crawl request failed", slog.Any("error", err))
		return false
	}
	if err := h.deps.ProblemQueue.Push(ctx, payload); err != nil {
		slog.Error("enqueue crawl request failed",
			slog.String("oj_name", ojName), slog.String("problem_id", problemID), slog.Any("error", err))
		return false
	}
	return true
}

func (h *CrawlerHandler) shutdown() {
	for _, c := range h.crawlers {
		c.Stop()
	}
}
