// Package scu implements the SCU SOJ (acm.scu.edu.cn/soj) site client.
//
// SOJ guards submits with a captcha; the client takes a pluggable solver and
// reports a submit rejection when no solver is configured or the solver
// gives up, which the dispatch engine turns into Submit Failed.
package scu

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/fairyhunter13/vjudge/internal/adapter/site"
	"github.com/fairyhunter13/vjudge/internal/domain"
)

const baseURL = "http://acm.scu.edu.cn/soj"

// CaptchaSolver resolves the submit captcha image into its code.
type CaptchaSolver func(ctx context.Context, image []byte) (string, error)

var titleReFmt = `(?s)<title>%s: (.*?)</title>`

func init() {
	site.Register("scu", func(auth *domain.Credentials, contestID string, timeout time.Duration) (domain.SiteClient, error) {
		if contestID != "" {
			return nil, fmt.Errorf("%w: scu has no contest mode", domain.ErrJudge)
		}
		return New(auth, timeout, nil)
	})
}

// Client talks to SOJ. Not safe for concurrent use.
type Client struct {
	session *site.Session
	auth    *domain.Credentials
	solver  CaptchaSolver
}

// New builds a client; with auth it logs in eagerly.
func New(auth *domain.Credentials, timeout time.Duration, solver CaptchaSolver) (*Client, error) {
	c := &Client{session: site.NewSession(timeout, false), solver: solver}
	if auth != nil {
		if err := c.Login(context.Background(), auth.Username, auth.Password); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Name returns "scu".
func (c *Client) Name() string { return "scu" }

// UserID returns the authenticated username.
func (c *Client) UserID() (string, error) {
	if c.auth == nil {
		return "", domain.ErrLoginRequired
	}
	return c.auth.Username, nil
}

// Login posts the sign-in form.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, err := c.session.PostForm(ctx, baseURL+"/login.action", url.Values{
		"back":     {"2"},
		"id":       {username},
		"password": {password},
		"submit":   {"login"},
	})
	if err != nil {
		return err
	}
	if strings.Contains(body, "USER_NOT_EXIST") || strings.Contains(body, "PASSWORD_ERROR") {
		return fmt.Errorf("op=scu.login user=%s: %w", username, domain.ErrLoginFailed)
	}
	c.auth = &domain.Credentials{Username: username, Password: password}
	return nil
}

// RefreshSession re-logs-in with the stored credentials.
func (c *Client) RefreshSession(ctx context.Context) error {
	if c.auth == nil {
		return domain.ErrLoginRequired
	}
	return c.Login(ctx, c.auth.Username, c.auth.Password)
}

// Problem fetches one problem; SOJ pages only give the title cheaply.
func (c *Client) Problem(ctx context.Context, problemID string) (*domain.Problem, error) {
	body, err := c.session.GetText(ctx, fmt.Sprintf("%s/problem.action?id=%s", baseURL, problemID))
	if err != nil {
		return nil, err
	}
	if strings.Contains(body, "No such problem") {
		return nil, nil
	}
	re, err := regexp.Compile(fmt.Sprintf(titleReFmt, regexp.QuoteMeta(problemID)))
	if err != nil {
		return nil, fmt.Errorf("op=scu.problem: %w", err)
	}
	m := re.FindStringSubmatch(body)
	if m == nil {
		return nil, nil
	}
	return &domain.Problem{
		OJName:    "scu",
		ProblemID: problemID,
		Title:     strings.TrimSpace(m[1]),
	}, nil
}

// Submit solves the captcha, posts the source and scrapes the run id.
func (c *Client) Submit(ctx context.Context, problemID, language, sourceCode string) (string, error) {
	if c.auth == nil {
		return "", domain.ErrLoginRequired
	}
	captcha, err := c.solveCaptcha(ctx)
	if err != nil {
		return "", err
	}
	body, err := c.session.PostForm(ctx, baseURL+"/submit.action", url.Values{
		"problemId":  {problemID},
		"validation": {captcha},
		"language":   {language},
		"source":     {sourceCode},
		"submit":     {"Submit"},
	})
	if err != nil {
		return "", err
	}
	if strings.Contains(body, "ERROR") {
		if !c.loggedIn(ctx) {
			return "", fmt.Errorf("op=scu.submit: %w", domain.ErrLoginExpired)
		}
		return "", fmt.Errorf("op=scu.submit: %w", domain.ErrSubmitRejected)
	}
	statusBody, err := c.session.GetText(ctx,
		fmt.Sprintf("%s/solutions.action?userId=%s&problemId=%s", baseURL, c.auth.Username, problemID))
	if err != nil {
		return "", err
	}
	runID := parseLatestRunID(statusBody)
	if runID == "" {
		return "", fmt.Errorf("op=scu.submit: %w: run id not found", domain.ErrSubmitRejected)
	}
	return runID, nil
}

// Status reads the solutions table for runID. Rows not present yet report
// Being Judged so the caller keeps polling.
func (c *Client) Status(ctx context.Context, runID string, _ domain.StatusQuery) (domain.StatusResult, error) {
	body, err := c.session.GetText(ctx, fmt.Sprintf("%s/solutions.action?from=%s", baseURL, runID))
	if err != nil {
		return domain.StatusResult{}, err
	}
	if res, ok := parseStatusRow(body); ok {
		return res, nil
	}
	return domain.StatusResult{Verdict: domain.VerdictBeingJudged}, nil
}

func (c *Client) loggedIn(ctx context.Context) bool {
	body, err := c.session.GetText(ctx, baseURL+"/update_user_form.action")
	if err != nil {
		return false
	}
	return !strings.Contains(body, "Please login first")
}

func (c *Client) solveCaptcha(ctx context.Context) (string, error) {
	if c.solver == nil {
		return "", fmt.Errorf("op=scu.captcha: %w: no captcha solver configured", domain.ErrSubmitRejected)
	}
	req, err := c.session.GetText(ctx, baseURL+"/validation_code")
	if err != nil {
		return "", err
	}
	code, err := c.solver(ctx, []byte(req))
	if err != nil {
		return "", fmt.Errorf("op=scu.captcha: %w: captcha exhausted", domain.ErrSubmitRejected)
	}
	return code, nil
}

// parseLatestRunID pulls the newest run id off the solutions table.
func parseLatestRunID(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	row := doc.Find("table").Eq(1).Find("tr").Eq(1)
	return strings.TrimSpace(row.Find("td").First().Text())
}

// parseStatusRow reads verdict, time and memory out of the first data row.
func parseStatusRow(body string) (domain.StatusResult, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return domain.StatusResult{}, false
	}
	cells := doc.Find("table").Eq(1).Find("tr").Eq(1).Find("td").Map(func(_ int, td *goquery.Selection) string {
		return strings.Join(strings.Fields(td.Text()), " ")
	})
	if len(cells) < 8 {
		return domain.StatusResult{}, false
	}
	exeTime, err1 := strconv.Atoi(cells[6])
	exeMem, err2 := strconv.Atoi(cells[7])
	if err1 != nil || err2 != nil {
		return domain.StatusResult{}, false
	}
	return domain.StatusResult{Verdict: domain.Verdict(cells[5]), ExeTime: exeTime, ExeMem: exeMem}, true
}
