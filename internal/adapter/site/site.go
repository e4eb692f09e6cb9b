// Package site hosts the per-judge client adapters and their registry.
//
// Each judge lives in its own subpackage and registers a Builder in init();
// the registry resolves plain names ("hdu") and contest-qualified names
// ("hdu_ct_1001") to the right constructor.
package site

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/vjudge/internal/domain"
)

// Builder constructs a client for one judge. contestID is empty for
// practice clients; auth nil means anonymous.
type Builder func(auth *domain.Credentials, contestID string, timeout time.Duration) (domain.SiteClient, error)

var (
	mu       sync.RWMutex
	builders = map[string]Builder{}
)

// Register installs a builder under a site name. Called from init() of the
// judge subpackages.
func Register(name string, b Builder) {
	mu.Lock()
	defer mu.Unlock()
	builders[name] = b
}

// Supported lists the registered site names, sorted.
func Supported() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(builders))
	for n := range builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseName splits an OJ name into site and contest id. Names without the
// "_ct_" marker are practice sites with an empty contest id.
func ParseName(ojName string) (siteName, contestID string) {
	if i := strings.Index(ojName, "_ct_"); i >= 0 {
		return ojName[:i], ojName[i+len("_ct_"):]
	}
	return ojName, ""
}

// NewFactory returns a SiteClientFactory over the registry with a fixed
// per-call HTTP timeout.
func NewFactory(timeout time.Duration) domain.SiteClientFactory {
	return func(ojName string, auth *domain.Credentials) (domain.SiteClient, error) {
		siteName, contestID := ParseName(ojName)
		mu.RLock()
		b, ok := builders[siteName]
		mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: oj %q is not supported", domain.ErrJudge, ojName)
		}
		return b(auth, contestID, timeout)
	}
}
