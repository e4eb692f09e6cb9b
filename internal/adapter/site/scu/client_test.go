package scu

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/vjudge/internal/domain"
)

const solutionsPage = `
<html><body>
<table><tr><td>navigation</td></tr></table>
<table>
<tr><th>Run ID</th><th>User</th><th>Problem</th><th>Language</th><th>Submit Time</th><th>Status</th><th>Time</th><th>Memory</th></tr>
<tr><td>  5550123 </td><td>alice</td><td>1000</td><td>C++</td><td>2026-08-24 10:00:00</td><td>
  Accepted
</td><td>15</td><td>1420</td></tr>
</table>
</body></html>`

func TestParseLatestRunID(t *testing.T) {
	require.Equal(t, "5550123", parseLatestRunID(solutionsPage))
	require.Equal(t, "", parseLatestRunID("<html><body><table></table></body></html>"))
}

func TestParseStatusRow(t *testing.T) {
	res, ok := parseStatusRow(solutionsPage)
	require.True(t, ok)
	require.Equal(t, domain.VerdictAccepted, res.Verdict)
	require.Equal(t, 15, res.ExeTime)
	require.Equal(t, 1420, res.ExeMem)

	_, ok = parseStatusRow("<html><body></body></html>")
	require.False(t, ok)
}

func TestSubmitWithoutSolverIsRejected(t *testing.T) {
	c := &Client{auth: &domain.Credentials{Username: "alice", Password: "p"}}
	_, err := c.solveCaptcha(context.Background())
	require.ErrorIs(t, err, domain.ErrSubmitRejected)
}

func TestAnonymousClientRefusesAuthenticatedOps(t *testing.T) {
	c, err := New(nil, time.Second, nil)
	require.NoError(t, err)
	_, err = c.UserID()
	require.ErrorIs(t, err, domain.ErrLoginRequired)
	_, err = c.Submit(context.Background(), "1000", "C++", "int main(){}")
	require.ErrorIs(t, err, domain.ErrLoginRequired)
	require.ErrorIs(t, c.RefreshSession(context.Background()), domain.ErrLoginRequired)
}
