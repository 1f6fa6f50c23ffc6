package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// NewGmailService builds a read-only Gmail client from the OAuth client
// file and the cached user token. Without a cached token it walks the
// operator through the consent flow on the terminal.
func NewGmailService(ctx context.Context, credentialsFile, tokenFile string) (*gmail.Service, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read client secret file: %w", err)
	}
	config, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secret file: %w", err)
	}
	ts, err := GmailTokenSource(ctx, config, TokenCache{Path: tokenFile}, os.Stdin, os.Stdout)
	if err != nil {
		return nil, err
	}
	return gmail.NewService(ctx, option.WithTokenSource(ts))
}

// TokenCache keeps the operator's Gmail token on disk between runs.
type TokenCache struct {
	Path string
}

func (c TokenCache) Load() (*oauth2.Token, error) {
	b, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(b, tok); err != nil {
		return nil, fmt.Errorf("decode cached token: %w", err)
	}
	return tok, nil
}

func (c TokenCache) Save(tok *oauth2.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.Path, b, 0o600); err != nil {
		return fmt.Errorf("cache oauth token: %w", err)
	}
	return nil
}

// GmailTokenSource returns a token source seeded from cache, running the
// consent flow over in/out when nothing is cached. Refreshed tokens are
// written back to the cache.
func GmailTokenSource(ctx context.Context, config *oauth2.Config, cache TokenCache, in io.Reader, out io.Writer) (oauth2.TokenSource, error) {
	tok, err := cache.Load()
	if err != nil {
		tok, err = tokenFromConsent(ctx, config, in, out)
		if err != nil {
			return nil, err
		}
		log.Printf("🔑 Saving Gmail token to: %s", cache.Path)
		if err := cache.Save(tok); err != nil {
			return nil, err
		}
	}
	return &cachingTokenSource{
		base:  config.TokenSource(ctx, tok),
		cache: cache,
		last:  tok.AccessToken,
	}, nil
}

// tokenFromConsent asks the operator to authorize access and paste the code.
func tokenFromConsent(ctx context.Context, config *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "\n---------------------------------------------------------\n")
	fmt.Fprintf(out, "OPEN THIS LINK TO AUTHORIZE GMAIL ACCESS:\n%v\n", authURL)
	fmt.Fprintf(out, "---------------------------------------------------------\n")
	fmt.Fprintf(out, "Paste the code here: ")

	var authCode string
	if _, err := fmt.Fscan(in, &authCode); err != nil {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}
	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

type cachingTokenSource struct {
	base  oauth2.TokenSource
	cache TokenCache

	mu   sync.Mutex
	last string
}

func (s *cachingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.cache.Save(tok); err != nil {
			log.Printf("⚠️ Could not cache refreshed Gmail token: %v", err)
		}
	}
	return tok, nil
}
