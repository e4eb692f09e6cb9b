package judge

import (
	"fmt"
	"sync"
	"time"

	"github.com/fairyhunter13/vjudge/internal/domain"
)

// fakeSubmissions is an in-memory SubmissionRepository with the same
// terminal-verdict guard as the SQL implementation.
type fakeSubmissions struct {
	mu   sync.Mutex
	next int64
	subs map[int64]domain.Submission
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{subs: map[int64]domain.Submission{}}
}

func (f *fakeSubmissions) Create(_ domain.Context, s domain.Submission) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	s.ID = f.next
	f.subs[s.ID] = s
	return s.ID, nil
}

func (f *fakeSubmissions) Get(_ domain.Context, id int64) (domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return domain.Submission{}, fmt.Errorf("submission %d: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

func (f *fakeSubmissions) MarkSubmitted(_ domain.Context, id int64, runID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok || s.Verdict.Terminal() {
		return nil
	}
	s.RunID = runID
	s.UserID = userID
	s.Verdict = domain.VerdictBeingJudged
	f.subs[id] = s
	return nil
}

func (f *fakeSubmissions) SetVerdict(_ domain.Context, id int64, v domain.Verdict) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok || s.Verdict.Terminal() {
		return nil
	}
	s.Verdict = v
	f.subs[id] = s
	return nil
}

func (f *fakeSubmissions) SetResult(_ domain.Context, id int64, v domain.Verdict, exeTime, exeMem int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok || s.Verdict.Terminal() {
		return nil
	}
	s.Verdict = v
	s.ExeTime = exeTime
	s.ExeMem = exeMem
	f.subs[id] = s
	return nil
}

func (f *fakeSubmissions) ListUnfinished(_ domain.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id := int64(1); id <= f.next; id++ {
		if s, ok := f.subs[id]; ok && s.Verdict.Transient() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeSubmissions) verdict(id int64) domain.Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[id].Verdict
}

// fakeProblems is an in-memory ProblemRepository.
type fakeProblems struct {
	mu    sync.Mutex
	probs map[domain.ProblemKey]domain.Problem
	stale []domain.ProblemKey
	max   map[string]string
}

func newFakeProblems() *fakeProblems {
	return &fakeProblems{probs: map[domain.ProblemKey]domain.Problem{}, max: map[string]string{}}
}

func (f *fakeProblems) Upsert(_ domain.Context, p domain.Problem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probs[domain.ProblemKey{OJName: p.OJName, ProblemID: p.ProblemID}] = p
	return nil
}

func (f *fakeProblems) Get(_ domain.Context, ojName, problemID string) (domain.Problem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.probs[domain.ProblemKey{OJName: ojName, ProblemID: problemID}]
	if !ok {
		return domain.Problem{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeProblems) List(_ domain.Context, _ domain.ProblemFilter, _, _ int) ([]domain.Problem, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Problem
	for _, p := range f.probs {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (f *fakeProblems) ListStale(_ domain.Context, _ time.Time) ([]domain.ProblemKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ProblemKey(nil), f.stale...), nil
}

func (f *fakeProblems) ListIDs(_ domain.Context, ojName string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for k := range f.probs {
		if k.OJName == ojName {
			ids = append(ids, k.ProblemID)
		}
	}
	return ids, nil
}

func (f *fakeProblems) MaxIDs(_ domain.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for k, v := range f.max {
		out[k] = v
	}
	return out, nil
}

func (f *fakeProblems) has(ojName, problemID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.probs[domain.ProblemKey{OJName: ojName, ProblemID: problemID}]
	return ok
}

// fakeDurableQueue is a channel-backed DurableQueue.
type fakeDurableQueue struct {
	ch chan string
}

func newFakeDurableQueue() *fakeDurableQueue {
	return &fakeDurableQueue{ch: make(chan string, 256)}
}

func (q *fakeDurableQueue) Push(_ domain.Context, payload string) error {
	q.ch <- payload
	return nil
}

func (q *fakeDurableQueue) Pop(ctx domain.Context, timeout time.Duration) (string, bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case p := <-q.ch:
		return p, true, nil
	case <-t.C:
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// fakeClient is a scripted SiteClient.
type fakeClient struct {
	mu        sync.Mutex
	name      string
	user      string
	submitFn  func(call int, problemID, language, source string) (string, error)
	statusFn  func(call int, runID string) (domain.StatusResult, error)
	problemFn func(problemID string) (*domain.Problem, error)
	submits   int
	polls     int
	refreshes int
}

func (c *fakeClient) Name() string { return c.name }

func (c *fakeClient) UserID() (string, error) {
	if c.user == "" {
		return "", domain.ErrLoginRequired
	}
	return c.user, nil
}

func (c *fakeClient) Login(_ domain.Context, username, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = username
	return nil
}

func (c *fakeClient) RefreshSession(_ domain.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	return nil
}

func (c *fakeClient) Problem(_ domain.Context, problemID string) (*domain.Problem, error) {
	if c.problemFn == nil {
		return nil, nil
	}
	return c.problemFn(problemID)
}

func (c *fakeClient) Submit(_ domain.Context, problemID, language, source string) (string, error) {
	c.mu.Lock()
	call := c.submits
	c.submits++
	c.mu.Unlock()
	if c.submitFn == nil {
		return "run-1", nil
	}
	return c.submitFn(call, problemID, language, source)
}

func (c *fakeClient) Status(_ domain.Context, runID string, _ domain.StatusQuery) (domain.StatusResult, error) {
	c.mu.Lock()
	call := c.polls
	c.polls++
	c.mu.Unlock()
	if c.statusFn == nil {
		return domain.StatusResult{Verdict: domain.VerdictAccepted, ExeTime: 15, ExeMem: 1024}, nil
	}
	return c.statusFn(call, runID)
}

func (c *fakeClient) submitCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submits
}

func (c *fakeClient) refreshCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

// fakePublisher records published verdict events.
type fakePublisher struct {
	mu     sync.Mutex
	events []domain.VerdictEvent
}

func (p *fakePublisher) Publish(_ domain.Context, ev domain.VerdictEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func testConfig() Config {
	return Config{
		HandlerPopTimeout: 50 * time.Millisecond,
		SubmitPopTimeout:  20 * time.Millisecond,
		SubmitterIdleTTL:  time.Hour,
		CleanupInterval:   time.Hour,
		PollAttempts:      5,
		PollBaseInterval:  time.Millisecond,
		LoginRetryLimit:   3,
		ProblemStaleAfter: 24 * time.Hour,
		PrefetchCount:     2,
	}
}
