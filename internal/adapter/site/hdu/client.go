// Package hdu implements the HDU (acm.hdu.edu.cn) site client, in practice
// and contest modes. HDU still serves GBK pages; the session decodes them.
package hdu

import (
	"context"
	"encoding/base64"
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

const baseURL = "http://acm.hdu.edu.cn"

// langID maps the public language names onto HDU's form values.
var langID = map[string]string{
	"G++": "0", "GCC": "1", "C++": "2", "C": "3",
	"Pascal": "4", "Java": "5", "C#": "6",
}

// sectionNames maps HDU panel titles onto problem fields.
var sectionNames = map[string]string{
	"Problem Description": "description",
	"Input":               "input",
	"Output":              "output",
	"Sample Input":        "sample_input",
	"Sample Output":       "sample_output",
}

var (
	limitRe  = regexp.MustCompile(`Time Limit:.*?[0-9]*/([0-9]*).*?MS.*?\(Java/Others\).*?Memory Limit:.*?[0-9]*/([0-9]*).*?K.*?\(Java/Others\)`)
	statusRe = regexp.MustCompile(`(?s)Contest Status.*?:(.*?)Current Server Time`)
)

func init() {
	site.Register("hdu", func(auth *domain.Credentials, contestID string, timeout time.Duration) (domain.SiteClient, error) {
		if contestID != "" {
			return NewContest(auth, contestID, timeout)
		}
		return New(auth, timeout)
	})
}

// Client talks to HDU. The zero value is not usable; construct with New or
// NewContest. Not safe for concurrent use.
type Client struct {
	session   *site.Session
	auth      *domain.Credentials
	name      string
	contestID string
	info      domain.ContestInfo
}

// New builds a practice-mode client; with auth it logs in eagerly.
func New(auth *domain.Credentials, timeout time.Duration) (*Client, error) {
	c := &Client{session: site.NewSession(timeout, true), name: "hdu"}
	if auth != nil {
		if err := c.Login(context.Background(), auth.Username, auth.Password); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewContest builds a contest-mode client bound to one HDU contest.
func NewContest(auth *domain.Credentials, contestID string, timeout time.Duration) (*Client, error) {
	if contestID == "" {
		return nil, fmt.Errorf("%w: hdu contest client needs a contest id", domain.ErrJudge)
	}
	c := &Client{
		session:   site.NewSession(timeout, true),
		name:      "hdu_ct_" + contestID,
		contestID: contestID,
	}
	if auth != nil {
		if err := c.Login(context.Background(), auth.Username, auth.Password); err != nil {
			return nil, err
		}
	}
	if err := c.RefreshContest(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// Name returns "hdu" or the contest-qualified "hdu_ct_<id>".
func (c *Client) Name() string { return c.name }

// UserID returns the authenticated username.
func (c *Client) UserID() (string, error) {
	if c.auth == nil {
		return "", domain.ErrLoginRequired
	}
	return c.auth.Username, nil
}

// Login posts the sign-in form and keeps the credentials for later refresh.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, err := c.session.PostForm(ctx, c.loginURL(), url.Values{
		"login":    {"Sign in"},
		"username": {username},
		"userpass": {password},
	})
	if err != nil {
		return err
	}
	if strings.Contains(body, "Sign In Your Account") {
		return fmt.Errorf("op=hdu.login user=%s: %w", username, domain.ErrLoginFailed)
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

// Problem fetches and parses one problem page; nil means unknown problem.
func (c *Client) Problem(ctx context.Context, problemID string) (*domain.Problem, error) {
	body, err := c.session.GetText(ctx, c.problemURL(problemID))
	if err != nil {
		return nil, err
	}
	p := parseProblem(body)
	if p != nil {
		p.ProblemID = problemID
		p.OJName = c.name
	}
	return p, nil
}

// Submit posts source code and scrapes the assigned run id off the status page.
func (c *Client) Submit(ctx context.Context, problemID, language, sourceCode string) (string, error) {
	if c.auth == nil {
		return "", domain.ErrLoginRequired
	}
	lang, ok := langID[language]
	if !ok {
		return "", fmt.Errorf("op=hdu.submit lang=%q: %w: language not supported", language, domain.ErrSubmitRejected)
	}
	if c.contest() && c.info.Status != domain.ContestRunning {
		if err := c.RefreshContest(ctx); err != nil {
			return "", err
		}
		if c.info.Status != domain.ContestRunning {
			return "", fmt.Errorf("op=hdu.submit cid=%s status=%s: %w: contest is not running",
				c.contestID, c.info.Status, domain.ErrSubmitRejected)
		}
	}
	form := url.Values{
		"problemid": {problemID},
		"language":  {lang},
	}
	if c.contest() {
		// Contest submit expects the source base64'd over URL-escaping.
		form.Set("usercode", encodeSource(sourceCode))
		form.Set("submit", "Submit")
	} else {
		form.Set("usercode", sourceCode)
		form.Set("check", "0")
	}
	body, err := c.session.PostForm(ctx, c.submitURL(), form)
	if err != nil {
		return "", err
	}
	switch {
	case strings.Contains(body, "Sign In Your Account"):
		return "", fmt.Errorf("op=hdu.submit: %w", domain.ErrLoginExpired)
	case strings.Contains(body, "Code length is improper"):
		return "", fmt.Errorf("op=hdu.submit: %w: code length is improper", domain.ErrSubmitRejected)
	case !strings.Contains(body, "Realtime Status"):
		return "", fmt.Errorf("op=hdu.submit: %w", domain.ErrSubmitRejected)
	}
	statusBody, err := c.session.GetText(ctx, c.statusURL("", problemID, c.auth.Username))
	if err != nil {
		return "", err
	}
	runID := parseLatestRunID(statusBody)
	if runID == "" {
		return "", fmt.Errorf("op=hdu.submit: %w: run id not found", domain.ErrSubmitRejected)
	}
	return runID, nil
}

// Status scrapes the status table for runID. A run id not (yet) listed
// reports Being Judged so the caller keeps polling.
func (c *Client) Status(ctx context.Context, runID string, q domain.StatusQuery) (domain.StatusResult, error) {
	body, err := c.session.GetText(ctx, c.statusURL(runID, q.ProblemID, q.UserID))
	if err != nil {
		return domain.StatusResult{}, err
	}
	if strings.Contains(body, "Sign In Your Account") {
		return domain.StatusResult{}, fmt.Errorf("op=hdu.status: %w", domain.ErrLoginExpired)
	}
	if res, ok := findVerdict(body, runID); ok {
		return res, nil
	}
	if c.contest() {
		// Contest status has no run-id filter; walk a few more pages.
		for page := 2; page <= 4; page++ {
			body, err = c.session.GetText(ctx, c.statusURL(runID, q.ProblemID, q.UserID)+"&page="+strconv.Itoa(page))
			if err != nil {
				return domain.StatusResult{}, err
			}
			if res, ok := findVerdict(body, runID); ok {
				return res, nil
			}
		}
	}
	return domain.StatusResult{Verdict: domain.VerdictBeingJudged}, nil
}

// ContestID returns the bound contest id; empty in practice mode.
func (c *Client) ContestID() string { return c.contestID }

// Contest returns the last refreshed contest metadata.
func (c *Client) Contest() domain.ContestInfo { return c.info }

// RefreshContest re-reads the contest page for title and status.
func (c *Client) RefreshContest(ctx context.Context) error {
	u := fmt.Sprintf("%s/contests/contest_show.php?cid=%s", baseURL, c.contestID)
	body, err := c.session.GetText(ctx, u)
	if err != nil {
		return err
	}
	if strings.Contains(body, "System Message") {
		return fmt.Errorf("op=hdu.contest cid=%s: %w: contest does not exist", c.contestID, domain.ErrConnection)
	}
	info := domain.ContestInfo{ContestID: c.contestID, Public: true, Status: domain.ContestPending}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err == nil {
		info.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if m := statusRe.FindStringSubmatch(body); m != nil {
		info.Status = domain.ContestStatus(strings.TrimSpace(stripTags(m[1])))
	}
	c.info = info
	return nil
}

func (c *Client) contest() bool { return c.contestID != "" }

func (c *Client) loginURL() string {
	u := baseURL + "/userloginex.php?action=login"
	if c.contest() {
		u += "&cid=" + c.contestID + "&notice=0"
	}
	return u
}

func (c *Client) submitURL() string {
	if c.contest() {
		return fmt.Sprintf("%s/contests/contest_submit.php?action=submit&cid=%s", baseURL, c.contestID)
	}
	return baseURL + "/submit.php?action=submit"
}

func (c *Client) statusURL(runID, problemID, userID string) string {
	if c.contest() {
		return fmt.Sprintf("%s/contests/contest_status.php?cid=%s&pid=%s&user=%s&lang=0&status=0",
			baseURL, c.contestID, problemID, userID)
	}
	return fmt.Sprintf("%s/status.php?first=%s&pid=%s&user=%s&lang=0&status=0",
		baseURL, runID, problemID, userID)
}

func (c *Client) problemURL(problemID string) string {
	if c.contest() {
		return fmt.Sprintf("%s/contests/contest_showproblem.php?pid=%s&cid=%s", baseURL, problemID, c.contestID)
	}
	return fmt.Sprintf("%s/showproblem.php?pid=%s", baseURL, problemID)
}

// parseProblem extracts the limits, title and section texts off a problem
// page. A "System Message" title means the problem does not exist.
func parseProblem(body string) *domain.Problem {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}
	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" || title == "System Message" {
		return nil
	}
	p := &domain.Problem{Title: title}
	if m := limitRe.FindStringSubmatch(body); m != nil {
		p.TimeLimit, _ = strconv.Atoi(m[1])
		p.MemLimit, _ = strconv.Atoi(m[2])
	}
	doc.Find("div.panel_title").Each(func(_ int, s *goquery.Selection) {
		field, ok := sectionNames[strings.TrimSpace(s.Text())]
		if !ok {
			return
		}
		content := s.NextFiltered("div.panel_content")
		if content.Length() == 0 {
			return
		}
		html, err := content.Html()
		if err != nil {
			return
		}
		switch field {
		case "description":
			p.Description = html
		case "input":
			p.Input = html
		case "output":
			p.Output = html
		case "sample_input":
			p.SampleInput = html
		case "sample_output":
			p.SampleOutput = html
		}
	})
	return p
}

// parseLatestRunID pulls the run id of the newest row in the realtime
// status table.
func parseLatestRunID(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	row := doc.Find("div#fixed_table table tr[align=center]").First()
	return strings.TrimSpace(row.Find("td").First().Text())
}

// findVerdict scans the status table for runID and returns its verdict row.
func findVerdict(body string, runID string) (domain.StatusResult, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return domain.StatusResult{}, false
	}
	var res domain.StatusResult
	found := false
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		text := table.Text()
		if !strings.Contains(text, "Run ID") || !strings.Contains(text, "Judge Status") || !strings.Contains(text, "Author") {
			return
		}
		table.Find("tr[align=center]").EachWithBreak(func(_ int, row *goquery.Selection) bool {
			cells := row.Find("td").Map(func(_ int, td *goquery.Selection) string {
				return strings.TrimSpace(td.Text())
			})
			if len(cells) < 6 || cells[0] != runID {
				return true
			}
			exeTime, err1 := strconv.Atoi(strings.TrimSuffix(cells[4], "MS"))
			exeMem, err2 := strconv.Atoi(strings.TrimSuffix(cells[5], "K"))
			if err1 != nil || err2 != nil {
				return true
			}
			res = domain.StatusResult{Verdict: normalizeVerdict(cells[2]), ExeTime: exeTime, ExeMem: exeMem}
			found = true
			return false
		})
	})
	return res, found
}

// normalizeVerdict folds HDU's verdict spellings onto the shared set.
func normalizeVerdict(raw string) domain.Verdict {
	switch {
	case strings.Contains(raw, "Runtime Error"):
		return domain.VerdictRuntimeError
	case strings.Contains(raw, "Compilation Error"):
		return domain.VerdictCompileError
	}
	return domain.Verdict(raw)
}

// encodeSource applies HDU's contest source transport encoding.
func encodeSource(code string) string {
	return base64.StdEncoding.EncodeToString([]byte(url.QueryEscape(code)))
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string { return tagRe.ReplaceAllString(s, "") }
