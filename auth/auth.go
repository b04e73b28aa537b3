// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth provides the bearer tokens presented to the remote debug symbol
// service. Everything is expressed as an oauth2.TokenSource so that the resolver
// only ever sees "something that yields a valid token".
package auth // import "github.com/stacksym/stacksym/auth"

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultCredentialsFile is where tokens are cached between runs.
const DefaultCredentialsFile = ".symbolizer_credentials.json"

// Config selects how tokens are obtained. A static token wins over client
// credentials; with neither, requests are sent unauthenticated.
type Config struct {
	Token        string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	// CredentialsFile caches tokens obtained via client credentials. Empty disables it.
	CredentialsFile string
}

// ErrNoCredentials is returned by NewTokenSource when nothing is configured.
var ErrNoCredentials = errors.New("no credentials configured")

// NewTokenSource builds the token source described by cfg.
func NewTokenSource(ctx context.Context, cfg Config) (oauth2.TokenSource, error) {
	if cfg.Token != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.Token,
			TokenType:   "Bearer",
		}), nil
	}
	if cfg.ClientID == "" || cfg.TokenURL == "" {
		return nil, ErrNoCredentials
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	src := cc.TokenSource(ctx)
	if cfg.CredentialsFile == "" {
		return src, nil
	}
	return CachedTokenSource(cfg.CredentialsFile, src), nil
}

// NewClient returns an HTTP client adding an Authorization header with a token
// from src to every request. A nil src yields a client without authentication.
func NewClient(src oauth2.TokenSource, base http.RoundTripper, timeout time.Duration) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	transport := base
	if src != nil {
		transport = &oauth2.Transport{Source: src, Base: base}
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// storedToken is the on-disk format of a cached token.
type storedToken struct {
	AccessToken string  `json:"access_token"`
	ExpireTime  float64 `json:"expire_time"`
}

// fileTokenSource persists tokens of src to a file together with their expiry,
// so that consecutive runs do not have to authenticate again.
type fileTokenSource struct {
	mu   sync.Mutex
	path string
	src  oauth2.TokenSource
}

// CachedTokenSource wraps src with an on-disk token cache at path. A cached token
// is used as long as it has not expired.
func CachedTokenSource(path string, src oauth2.TokenSource) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &fileTokenSource{path: path, src: src})
}

func (s *fileTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.read()
	if err == nil && tok.Valid() {
		return tok, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("Ignoring unreadable credentials file %s: %v", s.path, err)
	}

	tok, err = s.src.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain token: %w", err)
	}
	if err := s.write(tok); err != nil {
		log.Warnf("Failed to cache credentials in %s: %v", s.path, err)
	}
	return tok, nil
}

func (s *fileTokenSource) read() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var stored storedToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	sec := int64(stored.ExpireTime)
	nsec := int64((stored.ExpireTime - float64(sec)) * float64(time.Second))
	return &oauth2.Token{
		AccessToken: stored.AccessToken,
		TokenType:   "Bearer",
		Expiry:      time.Unix(sec, nsec),
	}, nil
}

func (s *fileTokenSource) write(tok *oauth2.Token) error {
	stored := storedToken{AccessToken: tok.AccessToken}
	if !tok.Expiry.IsZero() {
		stored.ExpireTime = float64(tok.Expiry.UnixNano()) / float64(time.Second)
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, data, 0o600)
}
