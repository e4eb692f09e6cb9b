package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerdictTransitions(t *testing.T) {
	transient := []Verdict{VerdictQueuing, VerdictBeingJudged, VerdictCompiling, VerdictRunning}
	for _, v := range transient {
		require.True(t, v.Transient(), v)
		require.False(t, v.Terminal(), v)
	}
	terminal := []Verdict{
		VerdictAccepted, VerdictWrongAnswer, VerdictTimeLimitExceeded,
		VerdictMemLimitExceeded, VerdictRuntimeError, VerdictCompileError,
		VerdictPresentationError, VerdictSubmitFailed, VerdictJudgeFailed, VerdictJudgeTimeout,
	}
	for _, v := range terminal {
		require.True(t, v.Terminal(), v)
	}
}

func TestAccountsResolution(t *testing.T) {
	acc := Accounts{
		Normal:  map[string][]Credentials{"hdu": {{Username: "a", Password: "1"}}},
		Contest: map[string][]Credentials{"hdu": {{Username: "b", Password: "2"}}, "hdu_ct_9": {{Username: "c", Password: "3"}}},
	}
	require.False(t, acc.Empty())
	require.Equal(t, "a", acc.For("hdu")[0].Username, "normal table wins")
	require.Equal(t, "c", acc.For("hdu_ct_9")[0].Username)
	require.Nil(t, acc.For("poj"))
	require.True(t, acc.Known("hdu_ct_9"))
	require.False(t, acc.Known("poj"))
	require.True(t, Accounts{}.Empty())
}

func TestSubmissionIDCodec(t *testing.T) {
	id, err := DecodeSubmissionID(EncodeSubmissionID(12345))
	require.NoError(t, err)
	require.Equal(t, int64(12345), id)

	_, err = DecodeSubmissionID("abc")
	require.Error(t, err)
}

func TestCrawlRequestCodec(t *testing.T) {
	payload, err := EncodeCrawlRequest(CrawlRequest{Type: CrawlTypeProblem, OJName: "hdu", ProblemID: "1000"})
	require.NoError(t, err)
	req, err := DecodeCrawlRequest(payload)
	require.NoError(t, err)
	require.Equal(t, CrawlTypeProblem, req.Type)
	require.Equal(t, "hdu", req.OJName)
	require.Equal(t, "1000", req.ProblemID)

	_, err = DecodeCrawlRequest("{{{")
	require.Error(t, err)
}
