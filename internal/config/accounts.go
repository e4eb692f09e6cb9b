package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/vjudge/internal/domain"
)

// accountsFile is the on-disk shape of the accounts document:
//
//	{"normal_accounts": {"hdu": {"user": "pass"}},
//	 "contest_accounts": {"hdu_ct_1001": {"user": "pass"}}}
type accountsFile struct {
	Normal  map[string]map[string]string `json:"normal_accounts" yaml:"normal_accounts"`
	Contest map[string]map[string]string `json:"contest_accounts" yaml:"contest_accounts"`
}

// LoadAccounts reads the account tables from path. The format is chosen by
// extension: .yaml/.yml parse as YAML, anything else as JSON.
func LoadAccounts(path string) (domain.Accounts, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Accounts{}, fmt.Errorf("op=config.LoadAccounts: %w", err)
	}
	var f accountsFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &f)
	default:
		err = json.Unmarshal(raw, &f)
	}
	if err != nil {
		return domain.Accounts{}, fmt.Errorf("op=config.LoadAccounts path=%s: %w", path, err)
	}
	return domain.Accounts{
		Normal:  toCredentials(f.Normal),
		Contest: toCredentials(f.Contest),
	}, nil
}

func toCredentials(table map[string]map[string]string) map[string][]domain.Credentials {
	out := make(map[string][]domain.Credentials, len(table))
	for oj, users := range table {
		for username, password := range users {
			out[oj] = append(out[oj], domain.Credentials{Username: username, Password: password})
		}
	}
	return out
}
