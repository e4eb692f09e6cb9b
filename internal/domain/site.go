package domain

// StatusQuery carries the extra keys some judges need alongside a run id
// when looking up a submission's status.
type StatusQuery struct {
	UserID    string
	ProblemID string
}

// StatusResult is one status-page observation for a submission.
type StatusResult struct {
	Verdict Verdict
	ExeTime int
	ExeMem  int
}

// SiteClient is the per-judge adapter capability set the core depends on.
// A client is either anonymous (problem crawling only) or authenticated
// (constructed with credentials, logged in eagerly). Clients are owned by
// exactly one worker and are not safe for concurrent use.
type SiteClient interface {
	// Name returns the OJ identifier, contest-qualified for contest clients.
	Name() string
	// UserID returns the authenticated username; ErrLoginRequired on
	// anonymous clients.
	UserID() (string, error)
	// Login authenticates with the given credentials.
	Login(ctx Context, username, password string) error
	// RefreshSession re-authenticates with the stored credentials after the
	// remote session lapsed.
	RefreshSession(ctx Context) error
	// Problem fetches problem metadata; a nil result with nil error means
	// the judge has no such problem.
	Problem(ctx Context, problemID string) (*Problem, error)
	// Submit sends source code and returns the judge-assigned run id.
	Submit(ctx Context, problemID, language, sourceCode string) (string, error)
	// Status looks up the current verdict of a previously submitted run.
	Status(ctx Context, runID string, q StatusQuery) (StatusResult, error)
}

// ContestStatus is the lifecycle phase of a remote contest.
type ContestStatus string

const (
	ContestPending ContestStatus = "Pending"
	ContestRunning ContestStatus = "Running"
	ContestEnded   ContestStatus = "Ended"
)

// ContestInfo is the metadata contest clients expose on top of SiteClient.
type ContestInfo struct {
	ContestID  string
	Title      string
	Public     bool
	Status     ContestStatus
	ProblemIDs []string
}

// ContestClient is implemented by contest-mode site clients. Submits are
// refused unless the contest status is Running.
type ContestClient interface {
	SiteClient
	ContestID() string
	Contest() ContestInfo
	RefreshContest(ctx Context) error
}

// SiteClientFactory builds a client for an OJ name; auth nil means anonymous.
type SiteClientFactory func(ojName string, auth *Credentials) (SiteClient, error)
