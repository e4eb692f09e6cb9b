package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/vjudge/internal/domain"
)

type memSubmissions struct {
	mu   sync.Mutex
	next int64
	subs map[int64]domain.Submission
}

func newMemSubmissions() *memSubmissions {
	return &memSubmissions{subs: map[int64]domain.Submission{}}
}

func (m *memSubmissions) Create(_ domain.Context, s domain.Submission) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	s.ID = m.next
	m.subs[s.ID] = s
	return s.ID, nil
}

func (m *memSubmissions) Get(_ domain.Context, id int64) (domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return domain.Submission{}, fmt.Errorf("submission %d: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

func (m *memSubmissions) MarkSubmitted(_ domain.Context, _ int64, _, _ string) error { return nil }
func (m *memSubmissions) SetVerdict(_ domain.Context, _ int64, _ domain.Verdict) error {
	return nil
}
func (m *memSubmissions) SetResult(_ domain.Context, _ int64, _ domain.Verdict, _, _ int) error {
	return nil
}
func (m *memSubmissions) ListUnfinished(_ domain.Context) ([]int64, error) { return nil, nil }

type memQueue struct {
	mu       sync.Mutex
	payloads []string
}

func (q *memQueue) Push(_ domain.Context, payload string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payloads = append(q.payloads, payload)
	return nil
}

func (q *memQueue) Pop(_ domain.Context, _ time.Duration) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.payloads) == 0 {
		return "", false, nil
	}
	p := q.payloads[0]
	q.payloads = q.payloads[1:]
	return p, true, nil
}

func testAccounts() domain.Accounts {
	return domain.Accounts{Normal: map[string][]domain.Credentials{
		"hdu": {{Username: "alice", Password: "p"}},
	}}
}

func TestSubmitPersistsAndEnqueues(t *testing.T) {
	ctx := context.Background()
	repo := newMemSubmissions()
	q := &memQueue{}
	svc := NewSubmissionService(repo, q, testAccounts())

	id, err := svc.Submit(ctx, "hdu", "1000", "G++", "int main(){}")
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	sub, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.VerdictQueuing, sub.Verdict)
	require.Equal(t, "hdu", sub.OJName)
	require.False(t, sub.TimeStamp.IsZero())

	payload, ok, err := q.Pop(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.EncodeSubmissionID(id), payload)
}

func TestSubmitValidatesInput(t *testing.T) {
	ctx := context.Background()
	svc := NewSubmissionService(newMemSubmissions(), &memQueue{}, testAccounts())

	cases := []struct{ oj, pid, lang, src string }{
		{"", "1000", "G++", "x"},
		{"hdu", "", "G++", "x"},
		{"hdu", "1000", "", "x"},
		{"hdu", "1000", "G++", "   "},
	}
	for _, c := range cases {
		_, err := svc.Submit(ctx, c.oj, c.pid, c.lang, c.src)
		require.ErrorIs(t, err, domain.ErrInvalidArgument)
	}
}

func TestSubmitRejectsUnknownJudge(t *testing.T) {
	svc := NewSubmissionService(newMemSubmissions(), &memQueue{}, testAccounts())
	_, err := svc.Submit(context.Background(), "poj", "1000", "G++", "x")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestGetUnknownSubmission(t *testing.T) {
	svc := NewSubmissionService(newMemSubmissions(), &memQueue{}, testAccounts())
	_, err := svc.Get(context.Background(), 42)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
