package judge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/vjudge/internal/domain"
)

func createBeingJudged(t *testing.T, subs *fakeSubmissions, ojName string) int64 {
	t.Helper()
	id, err := subs.Create(context.Background(), domain.Submission{
		OJName: ojName, ProblemID: "1000", Language: "G++", SourceCode: "int main(){}",
		UserID: "alice", RunID: "run-1", Verdict: domain.VerdictBeingJudged,
	})
	require.NoError(t, err)
	return id
}

func TestStatusCrawlerCommitsAfterTransientPolls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	subs := newFakeSubmissions()
	deps := newTestDeps(subs, newFakeProblems())

	client := &fakeClient{
		name: "hdu", user: "alice",
		statusFn: func(call int, _ string) (domain.StatusResult, error) {
			if call < 3 {
				return domain.StatusResult{Verdict: domain.VerdictRunning}, nil
			}
			return domain.StatusResult{Verdict: domain.VerdictAccepted, ExeTime: 31, ExeMem: 2048}, nil
		},
	}
	crawler, err := NewStatusCrawler(client, deps)
	require.NoError(t, err)
	crawler.Start(ctx)

	id := createBeingJudged(t, subs, "hdu")
	require.NoError(t, crawler.AddTask(id))

	waitVerdict(t, subs, id, domain.VerdictAccepted)
	require.NoError(t, crawler.Stop())
}

func TestStatusCrawlerCommitsJudgeFailedOnExhaustion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	subs := newFakeSubmissions()
	deps := newTestDeps(subs, newFakeProblems())
	deps.Cfg.PollAttempts = 3

	client := &fakeClient{
		name: "hdu", user: "alice",
		statusFn: func(int, string) (domain.StatusResult, error) {
			return domain.StatusResult{Verdict: domain.VerdictQueuing}, nil
		},
	}
	crawler, err := NewStatusCrawler(client, deps)
	require.NoError(t, err)
	crawler.Start(ctx)

	id := createBeingJudged(t, subs, "hdu")
	require.NoError(t, crawler.AddTask(id))

	waitVerdict(t, subs, id, domain.VerdictJudgeFailed)
	require.NoError(t, crawler.Stop())
}

func TestStatusCrawlerReloginDoesNotConsumeAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	subs := newFakeSubmissions()
	deps := newTestDeps(subs, newFakeProblems())
	deps.Cfg.PollAttempts = 2

	client := &fakeClient{
		name: "hdu", user: "alice",
		statusFn: func(call int, _ string) (domain.StatusResult, error) {
			switch call {
			case 0, 1:
				return domain.StatusResult{}, domain.ErrLoginExpired
			case 2:
				return domain.StatusResult{Verdict: domain.VerdictRunning}, nil
			}
			return domain.StatusResult{Verdict: domain.VerdictAccepted, ExeTime: 1, ExeMem: 1}, nil
		},
	}
	crawler, err := NewStatusCrawler(client, deps)
	require.NoError(t, err)
	crawler.Start(ctx)

	id := createBeingJudged(t, subs, "hdu")
	require.NoError(t, crawler.AddTask(id))

	waitVerdict(t, subs, id, domain.VerdictAccepted)
	require.Equal(t, 2, client.refreshCalls())
	require.NoError(t, crawler.Stop())
}

func TestStatusCrawlerSkipsForeignSubmissions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	subs := newFakeSubmissions()
	deps := newTestDeps(subs, newFakeProblems())

	client := &fakeClient{name: "hdu", user: "alice"}
	crawler, err := NewStatusCrawler(client, deps)
	require.NoError(t, err)
	crawler.Start(ctx)

	id := createBeingJudged(t, subs, "scu")
	require.NoError(t, crawler.AddTask(id))
	require.NoError(t, crawler.Stop())

	require.Equal(t, domain.VerdictBeingJudged, subs.verdict(id))
	require.Equal(t, 0, client.polls)
}

func TestStatusCrawlerLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deps := newTestDeps(newFakeSubmissions(), newFakeProblems())
	client := &fakeClient{name: "hdu", user: "alice"}

	crawler, err := NewStatusCrawler(client, deps)
	require.NoError(t, err)

	require.Error(t, crawler.AddTask(1), "add before start must fail")
	require.Error(t, crawler.Stop(), "stop before start must fail")

	crawler.Start(ctx)
	require.True(t, crawler.WaitStart(time.Second))
	require.NoError(t, crawler.Stop())
	require.Error(t, crawler.AddTask(1), "add after stop must fail")
	require.Error(t, crawler.Stop(), "second stop must fail")
}

func TestStatusCrawlerRequiresAuthenticatedClient(t *testing.T) {
	deps := newTestDeps(newFakeSubmissions(), newFakeProblems())
	_, err := NewStatusCrawler(&fakeClient{name: "hdu"}, deps)
	require.ErrorIs(t, err, domain.ErrLoginRequired)
}
