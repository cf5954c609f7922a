package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

var (
	ErrCallbackTimeout       = errors.New("oauth: callback server timed out waiting for redirect")
	ErrCallbackStateMismatch = errors.New("oauth: callback state does not match request state")
)

// callbackResult carries the query parameters of the redirect.
type callbackResult struct {
	code  string
	state string
	errc  string
}

// CallbackServer is a short-lived loopback HTTP server that receives the
// authorization code redirect for the PKCE flow, per RFC 8252 (native app
// OAuth). It listens on a fixed local port and shuts down after the first
// request or on timeout.
type CallbackServer struct {
	addr string
}

// NewCallbackServer binds a callback server to the given loopback address,
// e.g. "127.0.0.1:8400".
func NewCallbackServer(addr string) *CallbackServer {
	return &CallbackServer{addr: addr}
}

// RedirectURI returns the redirect_uri that should be registered with the
// authorization server and used in the authorization request.
func (c *CallbackServer) RedirectURI(path string) string {
	return fmt.Sprintf("http://%s%s", c.addr, path)
}

// AwaitCode starts the server, waits for a single redirect carrying either
// `code`+`state` or `error`, validates the state matches expectedState, and
// returns the authorization code. The server is torn down before returning.
func (c *CallbackServer) AwaitCode(ctx context.Context, path, expectedState string, timeout time.Duration) (string, error) {
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		select {
		case results <- callbackResult{code: q.Get("code"), state: q.Get("state"), errc: q.Get("error")}:
		default:
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body>Authentication complete, you may close this window.</body></html>")
	})

	srv := &http.Server{Addr: c.addr, Handler: mux}
	ln, err := net.Listen("tcp", c.addr)
	if err != nil {
		return "", fmt.Errorf("oauth: bind callback listener: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	select {
	case res := <-results:
		if res.errc != "" {
			return "", fmt.Errorf("oauth: authorization server returned error: %s", res.errc)
		}
		if res.state != expectedState {
			return "", ErrCallbackStateMismatch
		}
		return res.code, nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return "", err
		}
		return "", ErrCallbackTimeout
	case <-time.After(timeout):
		return "", ErrCallbackTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
