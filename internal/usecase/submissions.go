// Package usecase hosts the application services between the HTTP surface
// and the persistence and queue adapters.
package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/fairyhunter13/vjudge/internal/domain"
)

// SubmissionService accepts submissions, persists them in Queuing state, and
// enqueues their ids on the durable submit queue for the judge engine.
type SubmissionService struct {
	Repo     domain.SubmissionRepository
	Queue    domain.DurableQueue
	Accounts domain.Accounts
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(r domain.SubmissionRepository, q domain.DurableQueue, a domain.Accounts) SubmissionService {
	return SubmissionService{Repo: r, Queue: q, Accounts: a}
}

// Submit validates the request, persists it as Queuing, and enqueues the id.
// The returned id is the caller's handle for verdict polling. Persist happens
// before enqueue, so a crash between the two is recovered by the engine's
// startup scan rather than lost.
func (s SubmissionService) Submit(ctx domain.Context, ojName, problemID, language, source string) (int64, error) {
	ojName = strings.TrimSpace(ojName)
	problemID = strings.TrimSpace(problemID)
	language = strings.TrimSpace(language)
	if ojName == "" || problemID == "" || language == "" || strings.TrimSpace(source) == "" {
		return 0, fmt.Errorf("%w: oj_name, problem_id, language and source are required", domain.ErrInvalidArgument)
	}
	if !s.Accounts.Known(ojName) {
		return 0, fmt.Errorf("%w: unsupported judge %q", domain.ErrInvalidArgument, ojName)
	}
	id, err := s.Repo.Create(ctx, domain.Submission{
		OJName:     ojName,
		ProblemID:  problemID,
		Language:   language,
		SourceCode: source,
		Verdict:    domain.VerdictQueuing,
		TimeStamp:  time.Now().UTC(),
	})
	if err != nil {
		return 0, err
	}
	if err := s.Queue.Push(ctx, domain.EncodeSubmissionID(id)); err != nil {
		return 0, fmt.Errorf("op=submission.enqueue id=%d: %w", id, err)
	}
	return id, nil
}

// Get loads one submission for verdict polling.
func (s SubmissionService) Get(ctx domain.Context, id int64) (domain.Submission, error) {
	return s.Repo.Get(ctx, id)
}
