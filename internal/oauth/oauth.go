package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
)

// ErrTokenExchangeFailed wraps a failed authorization-code or refresh-token
// exchange. The underlying provider error is available via errors.Unwrap.
var ErrTokenExchangeFailed = errors.New("oauth: token exchange failed")

// expirySafetyMargin is how far ahead of the real expiry we treat a token
// as expired, so a token never gets used mid-request.
const expirySafetyMargin = 60 * time.Second

// Config describes an authorization-code OAuth client.
type Config struct {
	ClientID     string
	ClientSecret string // empty for public clients
	AuthURL      string
	TokenURL     string
	RedirectURI  string
	Scopes       []string
}

// Tokens is the normalized token set produced by any flow in this package.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    *time.Time
	Scopes       []string
}

// IsExpired reports whether t is expired, or will expire within the next
// 60 seconds. A token with no expiry information is never considered
// expired.
func (t *Tokens) IsExpired() bool {
	if t == nil || t.ExpiresAt == nil {
		return false
	}
	return time.Now().Add(expirySafetyMargin).After(*t.ExpiresAt)
}

// Flow drives the PKCE authorization code grant for a single provider
// configuration.
type Flow struct {
	cfg oauth2.Config
	log *slog.Logger
}

// NewFlow builds a Flow from Config.
func NewFlow(cfg Config) *Flow {
	return &Flow{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: cfg.RedirectURI,
			Scopes:      cfg.Scopes,
		},
		log: slog.Default().With("component", "oauth.flow"),
	}
}

// AuthorizationURL builds the URL the user should visit, binding the given
// CSRF state and PKCE S256 challenge.
func (f *Flow) AuthorizationURL(state, codeChallenge string) string {
	return f.cfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode trades an authorization code plus its PKCE verifier for
// tokens.
func (f *Flow) ExchangeCode(ctx context.Context, code, codeVerifier string) (*Tokens, error) {
	f.log.Debug("exchanging authorization code", "token_url", f.cfg.Endpoint.TokenURL)
	tok, err := f.cfg.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenExchangeFailed, err)
	}
	return fromOAuth2Token(tok), nil
}

// RefreshToken exchanges a refresh token for a new access token.
func (f *Flow) RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	f.log.Debug("refreshing access token", "token_url", f.cfg.Endpoint.TokenURL)
	src := f.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenExchangeFailed, err)
	}
	return fromOAuth2Token(tok), nil
}

func fromOAuth2Token(tok *oauth2.Token) *Tokens {
	out := &Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if out.TokenType == "" {
		out.TokenType = "Bearer"
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		out.ExpiresAt = &exp
	}
	if scope := tok.Extra("scope"); scope != nil {
		if s, ok := scope.(string); ok {
			out.Scopes = splitScope(s)
		}
	}
	return out
}

func splitScope(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ' ' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
