// Package auth provides the OAuth2 plumbing shared by the connectors:
// refresh and client-credentials grants, and the local redirect listener
// used by browser consent flows.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"html"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/route1io/connectors/pkg/errors"
)

// loopbackHost is both the listen address and the redirect URI host.
const loopbackHost = "127.0.0.1"

// CallbackServer receives the authorization code of an OAuth2 redirect on
// a loopback address.
type CallbackServer struct {
	mu            sync.Mutex
	port          int
	path          string
	expectedState string
	codeChan      chan string
	errChan       chan error
	server        *http.Server
	listener      net.Listener
}

// NewCallbackServer creates a callback server for redirects to path on the
// given port (0 picks a free port). Redirects whose state differs from
// expectedState are rejected.
func NewCallbackServer(port int, path, expectedState string) *CallbackServer {
	if path == "" {
		path = "/"
	}
	return &CallbackServer{
		port:          port,
		path:          path,
		expectedState: expectedState,
		codeChan:      make(chan string, 1),
		errChan:       make(chan error, 1),
	}
}

// Start starts listening on the loopback interface.
func (s *CallbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	addr := net.JoinHostPort(loopbackHost, strconv.Itoa(s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConnection, "failed to listen on %s", addr)
	}
	s.listener = listener

	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.fail(err)
		}
	}()

	return nil
}

func (s *CallbackServer) fail(err error) {
	select {
	case s.errChan <- err:
	default:
	}
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	// "/" patterns match every path; browsers also ask for /favicon.ico.
	if r.URL.Path != s.path {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	w.Header().Set("Content-Type", "text/html")

	if errParam := q.Get("error"); errParam != "" {
		s.fail(errors.Newf(errors.ErrorTypeAuthentication, "authorization denied: %s %s", errParam, q.Get("error_description")))
		fmt.Fprint(w, page("Authorization failed", html.EscapeString(q.Get("error_description"))))
		return
	}

	if q.Get("state") != s.expectedState {
		s.fail(errors.New(errors.ErrorTypeAuthentication, "state mismatch in authorization redirect"))
		fmt.Fprint(w, page("Authorization failed", "invalid state parameter"))
		return
	}

	code := q.Get("code")
	if code == "" {
		s.fail(errors.New(errors.ErrorTypeAuthentication, "no authorization code received"))
		fmt.Fprint(w, page("Authorization failed", "no code received"))
		return
	}

	select {
	case s.codeChan <- code:
	default:
	}
	fmt.Fprint(w, page("Authorization successful", "You can close this window."))
}

// WaitForCode blocks until the authorization code arrives or ctx is done.
func (s *CallbackServer) WaitForCode(ctx context.Context) (string, error) {
	select {
	case code := <-s.codeChan:
		return code, nil
	case err := <-s.errChan:
		return "", err
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "timed out waiting for authorization redirect")
	}
}

// Stop shuts down the callback server.
func (s *CallbackServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Port returns the port the server is listening on.
func (s *CallbackServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// RedirectURI returns the redirect URI to register with the provider.
func (s *CallbackServer) RedirectURI() string {
	return "http://" + net.JoinHostPort(loopbackHost, strconv.Itoa(s.Port())) + s.path
}

// GenerateState returns a random value for the OAuth2 state parameter.
func GenerateState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to generate state")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func page(title, message string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>route1 - %[1]s</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh">
<h1>%[1]s</h1>
<p>%[2]s</p>
</body>
</html>`, title, message)
}
