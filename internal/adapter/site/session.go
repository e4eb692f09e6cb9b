package site

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/fairyhunter13/vjudge/internal/domain"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Session is one judge-site HTTP session: a cookie jar plus a per-call
// timeout. Transport failures come back as domain.ErrConnection so the
// workers can route recovery without knowing about net/http.
type Session struct {
	client *http.Client
	gbk    bool
}

// NewSession builds a session with a fresh cookie jar. gbk selects GBK
// response decoding for judges that still serve legacy encodings.
func NewSession(timeout time.Duration, gbk bool) *Session {
	jar, _ := cookiejar.New(nil)
	return &Session{
		client: &http.Client{
			Jar:       jar,
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		gbk: gbk,
	}
}

// GetText fetches a URL and returns the decoded response body.
func (s *Session) GetText(ctx context.Context, rawurl string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return "", fmt.Errorf("op=site.get url=%s: %w", rawurl, err)
	}
	return s.do(req)
}

// PostForm submits a form and returns the decoded response body.
func (s *Session) PostForm(ctx context.Context, rawurl string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawurl, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("op=site.post url=%s: %w", rawurl, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func (s *Session) do(req *http.Request) (string, error) {
	req.Header.Set("User-Agent", userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("op=site.request url=%s: %w", req.URL, domain.ErrConnection)
	}
	defer func() { _ = resp.Body.Close() }()
	var r io.Reader = resp.Body
	if s.gbk {
		r = transform.NewReader(resp.Body, simplifiedchinese.GBK.NewDecoder())
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("op=site.read url=%s: %w", req.URL, domain.ErrConnection)
	}
	return string(body), nil
}
