package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/localmind/aegis/internal/vault/store"
	"github.com/localmind/aegis/pkg/models"
)

// tokenKeyPrefix namespaces OAuth token records in the credential vault.
const tokenKeyPrefix = "oauth_tokens:"

const (
	defaultCallbackAddr      = "127.0.0.1:8400"
	defaultCallbackPath      = "/callback"
	defaultCallbackTimeout   = 5 * time.Minute
	defaultDeviceCodeTimeout = 15 * time.Minute
)

// Manager orchestrates OAuth and device-code flows end to end and persists
// the resulting tokens in the credential vault, refreshing them
// transparently when expired.
type Manager struct {
	vault *store.Vault
	log   *slog.Logger
}

// NewManager builds a Manager backed by vault.
func NewManager(vault *store.Vault) *Manager {
	return &Manager{
		vault: vault,
		log:   slog.Default().With("component", "oauth.manager"),
	}
}

// AuthenticateOAuth runs a full PKCE authorization code flow: it opens a
// local callback listener, logs the authorization URL for the caller to
// present to the user, waits for the redirect, exchanges the code, and
// stores the resulting tokens under the given provider key.
func (m *Manager) AuthenticateOAuth(ctx context.Context, provider string, cfg Config) (*Tokens, error) {
	m.log.Info("starting OAuth authorization code flow", "provider", provider)

	verifier, err := GenerateVerifier()
	if err != nil {
		return nil, err
	}
	challenge := Challenge(verifier)

	state, err := GenerateState()
	if err != nil {
		return nil, err
	}

	flow := NewFlow(cfg)
	authURL := flow.AuthorizationURL(state, challenge)
	m.log.Info("visit this URL to authorize", "url", authURL)

	cb := NewCallbackServer(defaultCallbackAddr)
	code, err := cb.AwaitCode(ctx, defaultCallbackPath, state, defaultCallbackTimeout)
	if err != nil {
		return nil, err
	}

	tokens, err := flow.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, err
	}

	if err := m.store(provider, tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// AuthenticateDeviceCode runs the RFC 8628 device authorization grant: it
// requests a device/user code pair, logs the verification URL for the user,
// polls until authorization completes, and stores the resulting tokens.
func (m *Manager) AuthenticateDeviceCode(ctx context.Context, provider string, cfg DeviceCodeConfig) (*Tokens, error) {
	m.log.Info("starting device authorization grant", "provider", provider)

	flow := NewDeviceCodeFlow(cfg)
	dcr, err := flow.RequestDeviceCode(ctx)
	if err != nil {
		return nil, err
	}
	m.log.Info("visit this URL and enter the code to authorize", "url", dcr.VerificationURI, "code", dcr.UserCode)

	timeout := dcr.ExpiresIn
	if timeout <= 0 {
		timeout = defaultDeviceCodeTimeout
	}

	tokens, err := flow.PollForToken(ctx, dcr.DeviceCode, dcr.Interval, timeout)
	if err != nil {
		return nil, err
	}

	if err := m.store(provider, tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// GetValidToken returns a non-expired access token for provider, refreshing
// it transparently via cfg if the stored token has expired and carries a
// refresh token.
func (m *Manager) GetValidToken(ctx context.Context, provider string, cfg Config) (*Tokens, error) {
	tokens, err := m.load(provider)
	if err != nil {
		return nil, err
	}

	if !tokens.IsExpired() {
		return tokens, nil
	}
	if tokens.RefreshToken == "" {
		return nil, fmt.Errorf("oauth: token for %q expired and no refresh token is available", provider)
	}

	m.log.Debug("refreshing expired token", "provider", provider)
	flow := NewFlow(cfg)
	refreshed, err := flow.RefreshToken(ctx, tokens.RefreshToken)
	if err != nil {
		return nil, err
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = tokens.RefreshToken // providers may omit it on refresh
	}
	if err := m.store(provider, refreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// Revoke removes the stored tokens for provider from the vault.
func (m *Manager) Revoke(provider string) error {
	return m.vault.Delete(tokenKeyPrefix + provider)
}

// store persists tokens under provider, creating the record on first
// authorization and updating it on refresh. Mirrors the original
// auth-engine's try-store / on-already-exists-update pattern.
func (m *Manager) store(provider string, tokens *Tokens) error {
	cred := models.Credential{
		Key:  tokenKeyPrefix + provider,
		Type: models.CredentialOAuth,
		Data: map[string]any{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"token_type":    tokens.TokenType,
		},
		Scopes:    tokens.Scopes,
		Provider:  provider,
		ExpiresAt: tokens.ExpiresAt,
	}
	if err := m.vault.Create(cred); err != nil {
		if !errors.Is(err, store.ErrAlreadyExists) {
			return fmt.Errorf("oauth: store tokens: %w", err)
		}
		if err := m.vault.Update(cred); err != nil {
			return fmt.Errorf("oauth: update tokens: %w", err)
		}
	}
	return nil
}

func (m *Manager) load(provider string) (*Tokens, error) {
	cred, err := m.vault.Get(tokenKeyPrefix + provider)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("oauth: no stored tokens for provider %q", provider)
		}
		return nil, err
	}
	data, ok := cred.Data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("oauth: malformed token record for provider %q", provider)
	}
	tokens := &Tokens{
		AccessToken:  stringField(data, "access_token"),
		RefreshToken: stringField(data, "refresh_token"),
		TokenType:    stringField(data, "token_type"),
		ExpiresAt:    cred.ExpiresAt,
		Scopes:       cred.Scopes,
	}
	return tokens, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
