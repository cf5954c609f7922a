package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestDeviceCode_VerificationURIField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"device_code":      "dev123",
			"user_code":        "ABCD-1234",
			"verification_uri": "https://example.com/device",
			"expires_in":       900,
			"interval":         5,
		})
	}))
	defer srv.Close()

	f := NewDeviceCodeFlow(DeviceCodeConfig{ClientID: "c1", DeviceAuthURL: srv.URL, TokenURL: srv.URL})
	resp, err := f.RequestDeviceCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dev123", resp.DeviceCode)
	assert.Equal(t, "https://example.com/device", resp.VerificationURI)
	assert.Equal(t, 5*time.Second, resp.Interval)
}

func TestRequestDeviceCode_VerificationURLFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"device_code":      "dev999",
			"user_code":        "WXYZ",
			"verification_url": "https://github.com/login/device",
			"expires_in":       600,
		})
	}))
	defer srv.Close()

	f := NewDeviceCodeFlow(DeviceCodeConfig{ClientID: "c1", DeviceAuthURL: srv.URL, TokenURL: srv.URL})
	resp, err := f.RequestDeviceCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/login/device", resp.VerificationURI)
	assert.Equal(t, defaultInterval, resp.Interval)
}

func TestPollForToken_AuthorizationPendingThenSuccess(t *testing.T) {
	attempt := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt++
		if attempt < 2 {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "authorization_pending"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok_abc",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	f := NewDeviceCodeFlow(DeviceCodeConfig{ClientID: "c1", TokenURL: srv.URL})
	tok, err := f.PollForToken(context.Background(), "dev123", 10*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "tok_abc", tok.AccessToken)
	assert.False(t, tok.IsExpired())
}

func TestPollForToken_AccessDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "access_denied"})
	}))
	defer srv.Close()

	f := NewDeviceCodeFlow(DeviceCodeConfig{ClientID: "c1", TokenURL: srv.URL})
	_, err := f.PollForToken(context.Background(), "dev123", 10*time.Millisecond, time.Second)
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestPollForToken_ExpiredToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "expired_token"})
	}))
	defer srv.Close()

	f := NewDeviceCodeFlow(DeviceCodeConfig{ClientID: "c1", TokenURL: srv.URL})
	_, err := f.PollForToken(context.Background(), "dev123", 10*time.Millisecond, time.Second)
	assert.ErrorIs(t, err, ErrDeviceExpired)
}

func TestPollForToken_SlowDownIncreasesInterval(t *testing.T) {
	var timestamps []time.Time
	attempt := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timestamps = append(timestamps, time.Now())
		attempt++
		if attempt < 2 {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "slow_down"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "token_type": "Bearer"})
	}))
	defer srv.Close()

	f := NewDeviceCodeFlow(DeviceCodeConfig{ClientID: "c1", TokenURL: srv.URL})
	tok, err := f.PollForToken(context.Background(), "dev123", 10*time.Millisecond, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok.AccessToken)
	require.Len(t, timestamps, 2)
	assert.True(t, timestamps[1].Sub(timestamps[0]) >= 5*time.Second)
}

func TestPollForToken_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "authorization_pending"})
	}))
	defer srv.Close()

	f := NewDeviceCodeFlow(DeviceCodeConfig{ClientID: "c1", TokenURL: srv.URL})
	_, err := f.PollForToken(context.Background(), "dev123", 20*time.Millisecond, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrPollTimeout)
}
