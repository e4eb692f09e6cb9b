package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fairyhunter13/vjudge/internal/domain"
)

// ProblemService serves cached problem metadata and schedules re-crawls via
// the durable problem queue.
type ProblemService struct {
	Repo       domain.ProblemRepository
	Queue      domain.DurableQueue
	Accounts   domain.Accounts
	StaleAfter time.Duration
}

// NewProblemService constructs a ProblemService.
func NewProblemService(r domain.ProblemRepository, q domain.DurableQueue, a domain.Accounts, staleAfter time.Duration) ProblemService {
	return ProblemService{Repo: r, Queue: q, Accounts: a, StaleAfter: staleAfter}
}

// Get serves a problem from the cache. A cache miss or a stale hit schedules
// a background re-crawl; the stale copy is still returned, the miss surfaces
// ErrNotFound and the caller retries after the crawl lands.
func (s ProblemService) Get(ctx domain.Context, ojName, problemID string) (domain.Problem, error) {
	p, err := s.Repo.Get(ctx, ojName, problemID)
	if errors.Is(err, domain.ErrNotFound) {
		if qerr := s.enqueue(ctx, ojName, problemID, false); qerr != nil {
			return domain.Problem{}, qerr
		}
		return domain.Problem{}, err
	}
	if err != nil {
		return domain.Problem{}, err
	}
	if s.StaleAfter > 0 && time.Since(p.LastUpdate) > s.StaleAfter {
		if qerr := s.enqueue(ctx, ojName, problemID, false); qerr != nil {
			return p, qerr
		}
	}
	return p, nil
}

// List returns a page of cached problems and the total match count.
func (s ProblemService) List(ctx domain.Context, f domain.ProblemFilter, limit, offset int) ([]domain.Problem, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.Repo.List(ctx, f, limit, offset)
}

// Refresh forces a re-crawl of one problem, or of the whole OJ when
// problemID is empty.
func (s ProblemService) Refresh(ctx domain.Context, ojName, problemID string) error {
	ojName = strings.TrimSpace(ojName)
	if ojName == "" {
		return fmt.Errorf("%w: oj_name is required", domain.ErrInvalidArgument)
	}
	if !s.Accounts.Known(ojName) {
		return fmt.Errorf("%w: unsupported judge %q", domain.ErrInvalidArgument, ojName)
	}
	return s.enqueue(ctx, ojName, problemID, problemID == "")
}

func (s ProblemService) enqueue(ctx domain.Context, ojName, problemID string, all bool) error {
	payload, err := domain.EncodeCrawlRequest(domain.CrawlRequest{
		Type:      domain.CrawlTypeProblem,
		OJName:    ojName,
		ProblemID: problemID,
		All:       all,
	})
	if err != nil {
		return err
	}
	if err := s.Queue.Push(ctx, payload); err != nil {
		return fmt.Errorf("op=problem.enqueue %s/%s: %w", ojName, problemID, err)
	}
	return nil
}
