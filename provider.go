package jwthelper

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/oauth2"
)

// subjectTokenSource mints a fresh token for a fixed subject on every call.
type subjectTokenSource struct {
	helper  *Helper
	subject string
}

// Token implements oauth2.TokenSource. The expiry mirrors the exp claim.
func (s *subjectTokenSource) Token() (*oauth2.Token, error) {
	signed, claims, err := s.helper.issue(s.subject)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		Expiry:      claims.ExpiresAt,
	}, nil
}

// NewTokenSource returns a token source that issues tokens for subject and
// reuses each one until it is about to expire.
//
// The reuse window follows the wall clock (oauth2 compares Expiry against
// time.Now), not the Helper's Clock. With an injected clock that lags the wall
// clock, cached tokens are reissued on every call.
func NewTokenSource(h *Helper, subject string) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &subjectTokenSource{helper: h, subject: subject})
}

// Provider hands out tokens per subject, caching one reusable source for each.
// Reuse follows the wall clock; see NewTokenSource.
type Provider struct {
	mu      sync.RWMutex
	helper  *Helper
	entries map[string]oauth2.TokenSource
}

// NewProvider constructs a Provider issuing through h.
func NewProvider(h *Helper) *Provider {
	return &Provider{
		helper:  h,
		entries: make(map[string]oauth2.TokenSource),
	}
}

// Token returns a token for subject, issuing a new one only when the cached
// token is missing or close to expiry.
func (p *Provider) Token(subject string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", newError(ErrCodeConfig, errors.New("subject is required"))
	}
	tok, err := p.source(subject).Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (p *Provider) source(subject string) oauth2.TokenSource {
	p.mu.RLock()
	src, ok := p.entries[subject]
	p.mu.RUnlock()
	if ok {
		return src
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if src, ok = p.entries[subject]; ok {
		return src
	}
	src = NewTokenSource(p.helper, subject)
	p.entries[subject] = src
	return src
}
