package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAccountsJSON(t *testing.T) {
	path := writeFile(t, "accounts.json", `{
		"normal_accounts": {"hdu": {"alice": "a-pass", "bob": "b-pass"}},
		"contest_accounts": {"hdu_ct_1001": {"carol": "c-pass"}}
	}`)

	acc, err := LoadAccounts(path)
	require.NoError(t, err)
	require.False(t, acc.Empty())
	require.Len(t, acc.For("hdu"), 2)
	require.Len(t, acc.For("hdu_ct_1001"), 1)
	require.Equal(t, "carol", acc.For("hdu_ct_1001")[0].Username)
	require.True(t, acc.Known("hdu"))
	require.False(t, acc.Known("poj"))
}

func TestLoadAccountsYAML(t *testing.T) {
	path := writeFile(t, "accounts.yaml", `
normal_accounts:
  scu:
    dave: d-pass
`)

	acc, err := LoadAccounts(path)
	require.NoError(t, err)
	creds := acc.For("scu")
	require.Len(t, creds, 1)
	require.Equal(t, "dave", creds[0].Username)
	require.Equal(t, "d-pass", creds[0].Password)
}

func TestLoadAccountsMissingFile(t *testing.T) {
	_, err := LoadAccounts(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestLoadAccountsMalformed(t *testing.T) {
	path := writeFile(t, "accounts.json", `{not json`)
	_, err := LoadAccounts(path)
	require.Error(t, err)
}
