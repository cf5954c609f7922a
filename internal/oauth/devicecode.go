package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sentinel errors surfaced by PollForToken. Use errors.Is to distinguish
// terminal outcomes from a caller-supplied context deadline.
var (
	ErrAccessDenied  = errors.New("oauth: user denied device authorization")
	ErrDeviceExpired = errors.New("oauth: device code expired before authorization completed")
	ErrPollTimeout   = errors.New("oauth: device code polling timed out")
)

// defaultInterval is RFC 8628's fallback poll interval when a provider
// omits the field.
const defaultInterval = 5 * time.Second

// DeviceCodeConfig describes an RFC 8628 device authorization client.
type DeviceCodeConfig struct {
	ClientID      string
	DeviceAuthURL string
	TokenURL      string
	Scopes        []string
}

// DeviceCodeResponse is the provider's response to a device authorization
// request.
type DeviceCodeResponse struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresIn               time.Duration
	Interval                time.Duration
}

// rawDeviceCodeResponse mirrors the wire format. Some providers (GitHub)
// send verification_url instead of verification_uri.
type rawDeviceCodeResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURL         string `json:"verification_url"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int64  `json:"expires_in"`
	Interval                int64  `json:"interval"`
}

type deviceTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    *int64 `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

type pollErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// DeviceCodeFlow drives the RFC 8628 device authorization grant.
type DeviceCodeFlow struct {
	cfg    DeviceCodeConfig
	client *http.Client
	log    *slog.Logger
}

// NewDeviceCodeFlow builds a DeviceCodeFlow from cfg.
func NewDeviceCodeFlow(cfg DeviceCodeConfig) *DeviceCodeFlow {
	return &DeviceCodeFlow{
		cfg:    cfg,
		client: http.DefaultClient,
		log:    slog.Default().With("component", "oauth.devicecode"),
	}
}

// RequestDeviceCode starts the flow by requesting a device and user code
// pair from the authorization server.
func (f *DeviceCodeFlow) RequestDeviceCode(ctx context.Context) (*DeviceCodeResponse, error) {
	form := url.Values{
		"client_id": {f.cfg.ClientID},
	}
	if len(f.cfg.Scopes) > 0 {
		form.Set("scope", strings.Join(f.cfg.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.DeviceAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauth: device code request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauth: device code request failed: HTTP %d: %s", resp.StatusCode, body)
	}

	var raw rawDeviceCodeResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("oauth: parse device code response: %w", err)
	}

	verificationURI := raw.VerificationURI
	if verificationURI == "" {
		verificationURI = raw.VerificationURL
	}
	if verificationURI == "" {
		return nil, errors.New("oauth: device code response missing verification_uri")
	}

	interval := defaultInterval
	if raw.Interval > 0 {
		interval = time.Duration(raw.Interval) * time.Second
	}

	return &DeviceCodeResponse{
		DeviceCode:              raw.DeviceCode,
		UserCode:                raw.UserCode,
		VerificationURI:         verificationURI,
		VerificationURIComplete: raw.VerificationURIComplete,
		ExpiresIn:               time.Duration(raw.ExpiresIn) * time.Second,
		Interval:                interval,
	}, nil
}

// PollForToken polls the token endpoint until the user completes
// authorization, the device code expires, the user denies access, or
// timeout elapses. The interval backs off by 5 seconds (RFC 8628 section
// 3.5) whenever the server responds with slow_down.
func (f *DeviceCodeFlow) PollForToken(ctx context.Context, deviceCode string, interval, timeout time.Duration) (*Tokens, error) {
	if interval <= 0 {
		interval = defaultInterval
	}
	deadline := time.Now().Add(timeout)
	currentInterval := interval

	f.log.Debug("polling for device code token", "interval", currentInterval, "timeout", timeout)

	for {
		timer := time.NewTimer(currentInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		if time.Now().After(deadline) {
			return nil, ErrPollTimeout
		}

		tok, pollErr, err := f.pollOnce(ctx, deviceCode)
		if err != nil {
			return nil, err
		}
		if tok != nil {
			f.log.Info("device code flow completed")
			return tok, nil
		}

		switch pollErr {
		case "authorization_pending":
			// keep polling at the same interval
		case "slow_down":
			currentInterval += 5 * time.Second
			f.log.Debug("slow_down received, increasing poll interval", "new_interval", currentInterval)
		case "access_denied":
			return nil, ErrAccessDenied
		case "expired_token":
			return nil, ErrDeviceExpired
		default:
			return nil, fmt.Errorf("oauth: device code poll error: %s", pollErr)
		}
	}
}

// pollOnce performs a single poll request. A non-nil Tokens means success;
// otherwise pollErr names the RFC 8628 error code to act on.
func (f *DeviceCodeFlow) pollOnce(ctx context.Context, deviceCode string) (*Tokens, string, error) {
	form := url.Values{
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"device_code": {deviceCode},
		"client_id":   {f.cfg.ClientID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("oauth: device code poll: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	if resp.StatusCode == http.StatusOK {
		var raw deviceTokenResponse
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, "", fmt.Errorf("oauth: parse token response: %w", err)
		}
		tok := &Tokens{
			AccessToken:  raw.AccessToken,
			RefreshToken: raw.RefreshToken,
			TokenType:    raw.TokenType,
			Scopes:       splitScope(raw.Scope),
		}
		if tok.TokenType == "" {
			tok.TokenType = "Bearer"
		}
		if raw.ExpiresIn != nil {
			exp := time.Now().Add(time.Duration(*raw.ExpiresIn) * time.Second)
			tok.ExpiresAt = &exp
		}
		return tok, "", nil
	}

	var perr pollErrorResponse
	if err := json.Unmarshal(body, &perr); err != nil || perr.Error == "" {
		return nil, "", fmt.Errorf("oauth: unexpected token response: HTTP %d: %s", resp.StatusCode, body)
	}
	return nil, perr.Error, nil
}
