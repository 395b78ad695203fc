package googleauth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/vthunder/gofer/internal/logging"
)

// WaitTimeout bounds how long the authorization flow waits for the user
// to complete the consent screen.
const WaitTimeout = 3 * time.Minute

// CallbackResult is what the provider redirect delivered: either an
// authorization code plus the echoed CSRF state, or a provider error.
type CallbackResult struct {
	Code  string
	State string
	Err   error
}

// CallbackListener is a single-use rendezvous between the browser
// redirect and the waiting process. The first callback resolves it; the
// result is delivered exactly once through a buffered channel so the
// HTTP handler never blocks.
type CallbackListener struct {
	srv     *http.Server
	ln      net.Listener
	ch      chan CallbackResult
	resolve sync.Once
}

// NewCallbackListener binds the callback port. Binding happens here, not
// in Wait, so a port conflict surfaces before the user is sent to the
// consent screen.
func NewCallbackListener(port int) (*CallbackListener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind callback port %d: %w", port, err)
	}

	l := &CallbackListener{
		ln: ln,
		ch: make(chan CallbackResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", l.handleCallback)
	l.srv = &http.Server{Handler: mux}

	go func() {
		if err := l.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Error("auth", "callback server: %v", err)
		}
	}()

	return l, nil
}

func (l *CallbackListener) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	result := CallbackResult{
		Code:  q.Get("code"),
		State: q.Get("state"),
	}
	if errParam := q.Get("error"); errParam != "" {
		result.Err = fmt.Errorf("provider error: %s (%s)", errParam, q.Get("error_description"))
	} else if result.Code == "" {
		result.Err = fmt.Errorf("callback had no authorization code")
	}

	delivered := false
	l.resolve.Do(func() {
		l.ch <- result
		delivered = true
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	switch {
	case !delivered:
		fmt.Fprint(w, "<html><body><p>Authorization already completed. You can close this window.</p></body></html>")
	case result.Err != nil:
		fmt.Fprintf(w, "<html><body><p>Authorization failed: %v</p></body></html>", result.Err)
	default:
		fmt.Fprint(w, "<html><body><p>Authorization complete. You can close this window and return to the terminal.</p></body></html>")
	}
}

// Wait blocks until the callback arrives or the context ends. The
// listener is shut down either way; a listener cannot be reused.
func (l *CallbackListener) Wait(ctx context.Context) (CallbackResult, error) {
	defer l.Close()

	select {
	case result := <-l.ch:
		if result.Err != nil {
			return result, result.Err
		}
		return result, nil
	case <-ctx.Done():
		return CallbackResult{}, fmt.Errorf("waiting for authorization callback: %w", ctx.Err())
	}
}

// Addr returns the bound listen address, useful when port 0 was requested.
func (l *CallbackListener) Addr() string {
	return l.ln.Addr().String()
}

// Close shuts the callback server down.
func (l *CallbackListener) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	l.srv.Shutdown(ctx)
}
