package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrPortInUse is returned when the callback listener cannot bind its
// port, usually because another sign-in attempt (or an unrelated
// process) already holds it.
var ErrPortInUse = errors.New("oauth: callback port already in use")

// callbackResult carries the parameters captured from the provider's
// redirect.
type callbackResult struct {
	Code  string
	State string
	Err   string
}

// callbackServer is the local HTTP listener that receives the OAuth
// redirect. It captures the authorization code and state, serves a small
// confirmation page, and hands the result to the waiting workflow.
type callbackServer struct {
	server     *http.Server
	port       int
	resultChan chan callbackResult
	errorChan  chan error

	mu      sync.Mutex
	running bool
}

func newCallbackServer(port int) *callbackServer {
	return &callbackServer{
		port:       port,
		resultChan: make(chan callbackResult, 1),
		errorChan:  make(chan error, 1),
	}
}

// Start binds the listener and begins serving the callback endpoint.
func (s *callbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("callback server is already running")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("%w: port %d", ErrPortInUse, s.port)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)
	mux.HandleFunc("/done", s.handleDone)

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.server = srv
	s.running = true

	go func() {
		if errServe := srv.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			s.errorChan <- fmt.Errorf("callback server failed: %w", errServe)
		}
	}()

	return nil
}

// Stop shuts the listener down gracefully.
func (s *callbackServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	log.Debug("stopping OAuth callback server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.running = false
	s.server = nil
	return err
}

// ForceStop closes the listener immediately without draining in-flight
// requests.
func (s *callbackServer) ForceStop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return
	}
	if err := s.server.Close(); err != nil {
		log.Debugf("callback server close: %v", err)
	}
	s.running = false
	s.server = nil
}

// Result yields the captured redirect parameters.
func (s *callbackServer) Result() <-chan callbackResult {
	return s.resultChan
}

// ServerError yields a fatal listener error, if one occurs.
func (s *callbackServer) ServerError() <-chan error {
	return s.errorChan
}

func (s *callbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")
	errParam := query.Get("error")

	if errParam != "" {
		log.Errorf("OAuth error received: %s", errParam)
		s.sendResult(callbackResult{Err: errParam})
		http.Error(w, fmt.Sprintf("OAuth error: %s", errParam), http.StatusBadRequest)
		return
	}
	if code == "" {
		s.sendResult(callbackResult{Err: "no_code"})
		http.Error(w, "No authorization code received", http.StatusBadRequest)
		return
	}
	if state == "" {
		s.sendResult(callbackResult{Err: "no_state"})
		http.Error(w, "No state parameter received", http.StatusBadRequest)
		return
	}

	s.sendResult(callbackResult{Code: code, State: state})
	http.Redirect(w, r, "/done", http.StatusFound)
}

func (s *callbackServer) handleDone(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(signInCompleteHTML)); err != nil {
		log.Errorf("failed to write completion page: %v", err)
	}
}

// sendResult hands the result to the workflow without blocking the
// handler; only the first callback per attempt counts.
func (s *callbackServer) sendResult(result callbackResult) {
	select {
	case s.resultChan <- result:
	default:
		log.Warn("duplicate OAuth callback dropped")
	}
}
