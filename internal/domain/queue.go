package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DurableQueue is a process-external FIFO with at-least-once delivery.
// Pop blocks up to timeout and reports ok=false when it elapses.
type DurableQueue interface {
	Push(ctx Context, payload string) error
	Pop(ctx Context, timeout time.Duration) (payload string, ok bool, err error)
}

// CrawlRequest is the JSON payload of the durable problem queue.
// Type "problem" with All=false names one problem; All=true asks for a full
// refresh of the OJ. Other types are reserved.
type CrawlRequest struct {
	Type      string `json:"type"`
	OJName    string `json:"oj_name"`
	ProblemID string `json:"problem_id,omitempty"`
	ContestID string `json:"contest_id,omitempty"`
	All       bool   `json:"all,omitempty"`
}

const (
	CrawlTypeProblem = "problem"
	CrawlTypeContest = "contest"
)

// EncodeCrawlRequest marshals a crawl request for the problem queue.
func EncodeCrawlRequest(req CrawlRequest) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("op=queue.encode_crawl: %w", err)
	}
	return string(b), nil
}

// DecodeCrawlRequest parses a problem-queue payload.
func DecodeCrawlRequest(payload string) (CrawlRequest, error) {
	var req CrawlRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return CrawlRequest{}, fmt.Errorf("op=queue.decode_crawl: %w", err)
	}
	return req, nil
}

// EncodeSubmissionID renders a submit-queue payload (ASCII decimal id).
func EncodeSubmissionID(id int64) string { return strconv.FormatInt(id, 10) }

// DecodeSubmissionID parses a submit-queue payload.
func DecodeSubmissionID(payload string) (int64, error) {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("op=queue.decode_submission_id payload=%q: %w", payload, err)
	}
	return id, nil
}
