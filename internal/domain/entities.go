// Package domain holds the core entities and ports of the virtual judge.
package domain

import (
	"context"
	"time"
)

// Verdict is the judgement state of a submission, either as reported by the
// remote judge mid-poll or as the final committed outcome.
type Verdict string

const (
	VerdictQueuing     Verdict = "Queuing"
	VerdictBeingJudged Verdict = "Being Judged"
	VerdictCompiling   Verdict = "Compiling"
	VerdictRunning     Verdict = "Running"

	VerdictAccepted          Verdict = "Accepted"
	VerdictWrongAnswer       Verdict = "Wrong Answer"
	VerdictTimeLimitExceeded Verdict = "Time Limit Exceeded"
	VerdictMemLimitExceeded  Verdict = "Memory Limit Exceeded"
	VerdictRuntimeError      Verdict = "Runtime Error"
	VerdictCompileError      Verdict = "Compile Error"
	VerdictPresentationError Verdict = "Presentation Error"
	VerdictSubmitFailed      Verdict = "Submit Failed"
	VerdictJudgeFailed       Verdict = "Judge Failed"
	VerdictJudgeTimeout      Verdict = "Judge Timeout"
)

// Transient reports whether the verdict is still subject to change on the
// remote judge. Poll loops keep going while the verdict is transient.
func (v Verdict) Transient() bool {
	switch v {
	case VerdictQueuing, VerdictBeingJudged, VerdictCompiling, VerdictRunning:
		return true
	}
	return false
}

// Terminal reports whether the verdict is final. Terminal verdicts are never
// overwritten.
func (v Verdict) Terminal() bool { return !v.Transient() }

// Submission is one piece of source code relayed to a remote judge.
// RunID and UserID stay empty until the submission has been accepted by the
// remote site; verdict Being Judged implies both are set.
type Submission struct {
	ID         int64
	UserID     string
	OJName     string
	ProblemID  string
	Language   string
	SourceCode string
	RunID      string
	Verdict    Verdict
	ExeTime    int
	ExeMem     int
	TimeStamp  time.Time
}

// Problem is cached metadata for one remote problem, keyed by (OJName,
// ProblemID). A problem is stale when LastUpdate is older than the configured
// staleness window (24h by default).
type Problem struct {
	OJName       string
	ProblemID    string
	LastUpdate   time.Time
	Title        string
	Description  string
	Input        string
	Output       string
	SampleInput  string
	SampleOutput string
	TimeLimit    int
	MemLimit     int
}

// ProblemKey identifies a problem without its payload.
type ProblemKey struct {
	OJName    string
	ProblemID string
}

// Credentials is one borrowed (username, password) pair for a remote judge.
type Credentials struct {
	Username string
	Password string
}

// Accounts holds the process-lifetime account tables, loaded once at startup
// and read-only afterwards. Contest accounts are keyed by contest-qualified
// OJ names such as "hdu_ct_1001".
type Accounts struct {
	Normal  map[string][]Credentials
	Contest map[string][]Credentials
}

// Empty reports whether neither table has a usable account.
func (a Accounts) Empty() bool { return len(a.Normal) == 0 && len(a.Contest) == 0 }

// For resolves the accounts for an OJ name: the normal table wins, the
// contest table is the fallback for contest-qualified names.
func (a Accounts) For(ojName string) []Credentials {
	if creds, ok := a.Normal[ojName]; ok {
		return creds
	}
	return a.Contest[ojName]
}

// Known reports whether any account table mentions the OJ.
func (a Accounts) Known(ojName string) bool {
	_, n := a.Normal[ojName]
	_, c := a.Contest[ojName]
	return n || c
}

// ProblemFilter narrows problem listings; empty fields match everything.
type ProblemFilter struct {
	OJName    string
	ProblemID string
}

// SubmissionRepository persists submissions. Every write is a single-row
// transaction; verdict and result updates must not overwrite terminal
// verdicts.
type SubmissionRepository interface {
	Create(ctx Context, s Submission) (int64, error)
	Get(ctx Context, id int64) (Submission, error)
	// MarkSubmitted stamps run id and account and moves the submission to
	// Being Judged.
	MarkSubmitted(ctx Context, id int64, runID, userID string) error
	// SetVerdict commits a verdict without execution stats (error-class
	// terminals such as Submit Failed and Judge Failed).
	SetVerdict(ctx Context, id int64, v Verdict) error
	// SetResult commits a terminal verdict with execution time and memory.
	SetResult(ctx Context, id int64, v Verdict, exeTime, exeMem int) error
	// ListUnfinished returns ids of all submissions still in Queuing or
	// Being Judged, used by crash recovery.
	ListUnfinished(ctx Context) ([]int64, error)
}

// ProblemRepository persists crawled problem metadata.
type ProblemRepository interface {
	Upsert(ctx Context, p Problem) error
	Get(ctx Context, ojName, problemID string) (Problem, error)
	List(ctx Context, f ProblemFilter, limit, offset int) ([]Problem, int, error)
	// ListStale returns keys of problems whose LastUpdate is before cutoff.
	ListStale(ctx Context, cutoff time.Time) ([]ProblemKey, error)
	// ListIDs returns every known problem id for one OJ.
	ListIDs(ctx Context, ojName string) ([]string, error)
	// MaxIDs returns the highest problem id per OJ, for forward prefetch.
	MaxIDs(ctx Context) (map[string]string, error)
}

// VerdictEvent is published when a terminal verdict is committed.
type VerdictEvent struct {
	EventID   string  `json:"event_id"`
	ID        int64   `json:"id"`
	OJName    string  `json:"oj_name"`
	ProblemID string  `json:"problem_id"`
	Verdict   Verdict `json:"verdict"`
	ExeTime   int     `json:"exe_time"`
	ExeMem    int     `json:"exe_mem"`
}

// VerdictPublisher fans terminal verdicts out to interested consumers.
// Publishing is best effort and must never block a verdict commit.
type VerdictPublisher interface {
	Publish(ctx Context, ev VerdictEvent)
}

// Context aliases the standard context so domain signatures stay compact.
type Context = context.Context
