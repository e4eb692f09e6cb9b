package judge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/vjudge/internal/domain"
)

func newTestDeps(subs *fakeSubmissions, probs *fakeProblems) *Deps {
	return &Deps{
		Submissions:  subs,
		Problems:     probs,
		SubmitQueue:  newFakeDurableQueue(),
		ProblemQueue: newFakeDurableQueue(),
		Cfg:          testConfig(),
	}
}

func startSubmitter(t *testing.T, ctx context.Context, client *fakeClient, deps *Deps) (*Submitter, *memQueue[int64]) {
	t.Helper()
	q := newMemQueue[int64]()
	crawlClient := &fakeClient{name: client.name, user: client.user, statusFn: client.statusFn}
	crawler, err := NewStatusCrawler(crawlClient, deps)
	require.NoError(t, err)
	sm, err := NewSubmitter(client, q, crawler, deps)
	require.NoError(t, err)
	sm.Start(ctx)
	return sm, q
}

func waitVerdict(t *testing.T, subs *fakeSubmissions, id int64, want domain.Verdict) {
	t.Helper()
	require.Eventually(t, func() bool {
		return subs.verdict(id) == want
	}, 3*time.Second, 5*time.Millisecond, "want verdict %q, got %q", want, subs.verdict(id))
}

func TestSubmitterRelaysAndCommitsVerdict(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	subs := newFakeSubmissions()
	deps := newTestDeps(subs, newFakeProblems())
	events := &fakePublisher{}
	deps.Events = events

	client := &fakeClient{name: "hdu", user: "alice"}
	sm, q := startSubmitter(t, ctx, client, deps)
	defer sm.Stop()

	id, err := subs.Create(ctx, domain.Submission{
		OJName: "hdu", ProblemID: "1000", Language: "G++",
		SourceCode: "int main(){}", Verdict: domain.VerdictQueuing,
	})
	require.NoError(t, err)
	require.True(t, q.push(ctx, id))

	waitVerdict(t, subs, id, domain.VerdictAccepted)
	got, err := subs.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "run-1", got.RunID)
	require.Equal(t, "alice", got.UserID)
	require.Equal(t, 15, got.ExeTime)
	require.Equal(t, 1024, got.ExeMem)
	require.Eventually(t, func() bool { return events.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSubmitterRetriesAfterLoginExpired(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	subs := newFakeSubmissions()
	deps := newTestDeps(subs, newFakeProblems())

	client := &fakeClient{
		name: "hdu", user: "alice",
		submitFn: func(call int, _, _, _ string) (string, error) {
			if call == 0 {
				return "", domain.ErrLoginExpired
			}
			return "run-2", nil
		},
	}
	sm, q := startSubmitter(t, ctx, client, deps)
	defer sm.Stop()

	id, err := subs.Create(ctx, domain.Submission{
		OJName: "hdu", ProblemID: "1000", Language: "G++",
		SourceCode: "int main(){}", Verdict: domain.VerdictQueuing,
	})
	require.NoError(t, err)
	require.True(t, q.push(ctx, id))

	waitVerdict(t, subs, id, domain.VerdictAccepted)
	require.Equal(t, 2, client.submitCalls())
	require.Equal(t, 1, client.refreshCalls())
}

func TestSubmitterGivesUpAfterLoginRetryLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	subs := newFakeSubmissions()
	deps := newTestDeps(subs, newFakeProblems())
	deps.Cfg.LoginRetryLimit = 2

	client := &fakeClient{
		name: "hdu", user: "alice",
		submitFn: func(int, string, string, string) (string, error) {
			return "", domain.ErrLoginExpired
		},
	}
	sm, q := startSubmitter(t, ctx, client, deps)
	defer sm.Stop()

	id, err := subs.Create(ctx, domain.Submission{
		OJName: "hdu", ProblemID: "1000", Language: "G++",
		SourceCode: "int main(){}", Verdict: domain.VerdictQueuing,
	})
	require.NoError(t, err)
	require.True(t, q.push(ctx, id))

	waitVerdict(t, subs, id, domain.VerdictSubmitFailed)
	require.Equal(t, 3, client.submitCalls())
}

func TestSubmitterFailsOnSubmitError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	subs := newFakeSubmissions()
	deps := newTestDeps(subs, newFakeProblems())

	client := &fakeClient{
		name: "hdu", user: "alice",
		submitFn: func(int, string, string, string) (string, error) {
			return "", errors.New("boom")
		},
	}
	sm, q := startSubmitter(t, ctx, client, deps)
	defer sm.Stop()

	id, err := subs.Create(ctx, domain.Submission{
		OJName: "hdu", ProblemID: "1000", Language: "G++",
		SourceCode: "int main(){}", Verdict: domain.VerdictQueuing,
	})
	require.NoError(t, err)
	require.True(t, q.push(ctx, id))

	waitVerdict(t, subs, id, domain.VerdictSubmitFailed)
}

func TestSubmitterDropsTerminalSubmissions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	subs := newFakeSubmissions()
	deps := newTestDeps(subs, newFakeProblems())

	client := &fakeClient{name: "hdu", user: "alice"}
	sm, q := startSubmitter(t, ctx, client, deps)

	id, err := subs.Create(ctx, domain.Submission{
		OJName: "hdu", ProblemID: "1000", Language: "G++",
		SourceCode: "int main(){}", Verdict: domain.VerdictAccepted,
	})
	require.NoError(t, err)
	require.True(t, q.push(ctx, id))

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, client.submitCalls())
	require.Equal(t, domain.VerdictAccepted, subs.verdict(id))

	sm.Stop()
	require.Eventually(t, func() bool { return !sm.Alive() }, time.Second, 5*time.Millisecond)
}

func TestSubmitterResumesBeingJudged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	subs := newFakeSubmissions()
	deps := newTestDeps(subs, newFakeProblems())

	client := &fakeClient{
		name: "hdu", user: "alice",
		statusFn: func(int, string) (domain.StatusResult, error) {
			return domain.StatusResult{Verdict: domain.VerdictWrongAnswer, ExeTime: 7, ExeMem: 512}, nil
		},
	}
	sm, q := startSubmitter(t, ctx, client, deps)
	defer sm.Stop()

	id, err := subs.Create(ctx, domain.Submission{
		OJName: "hdu", ProblemID: "1000", Language: "G++", SourceCode: "int main(){}",
		UserID: "alice", RunID: "run-9", Verdict: domain.VerdictBeingJudged,
	})
	require.NoError(t, err)
	require.True(t, q.push(ctx, id))

	waitVerdict(t, subs, id, domain.VerdictWrongAnswer)
	require.Equal(t, 0, client.submitCalls())
}
