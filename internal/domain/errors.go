package domain

import "errors"

// Error taxonomy (sentinels). Site clients translate every remote failure
// into one of these so the workers can route recovery uniformly.
var (
	// ErrConnection is a transport failure talking to the remote judge.
	ErrConnection = errors.New("connection error")
	// ErrLoginExpired means an authenticated session has lapsed and can be
	// recovered by re-login.
	ErrLoginExpired = errors.New("login expired")
	// ErrLoginFailed means the credentials were rejected outright.
	ErrLoginFailed = errors.New("login failed")
	// ErrLoginRequired flags an authenticated operation on an anonymous
	// client; a programmer error, fatal to the worker.
	ErrLoginRequired = errors.New("login required")
	// ErrSubmitRejected means the judge refused the submission itself
	// (unsupported language, contest not running, malformed code).
	ErrSubmitRejected = errors.New("submit rejected")
	// ErrJudge is the generic judge-side failure used in construction and
	// refresh paths.
	ErrJudge = errors.New("judge error")

	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)
