package auth

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/mapgrid-io/mapgrid-cli/internal/api"
	"github.com/mapgrid-io/mapgrid-cli/internal/store"
)

// Manager is the authorization state machine. It owns the current State,
// the queue of callbacks awaiting authorization, the cached user profile,
// and the single in-flight profile request handle. All other components
// reach it only through transition-triggering calls; nothing mutates its
// state directly.
type Manager struct {
	tokens      *store.TokenStore
	client      *api.Client
	prompter    Prompter
	newWorkflow WorkflowFactory
	lifecycle   *workflowLifecycle

	fetchCtx    context.Context
	fetchCancel context.CancelFunc

	mu          sync.Mutex
	status      State
	queued      []func()
	user        *api.User
	userReply   *api.UserReply
	prompting   bool
	subscribers []chan Event
}

// NewManager constructs the authorization manager. One Manager is created
// at process start and passed to dependents; there is no global instance.
func NewManager(tokens *store.TokenStore, client *api.Client, prompter Prompter, factory WorkflowFactory) *Manager {
	m := &Manager{
		tokens:      tokens,
		client:      client,
		prompter:    prompter,
		newWorkflow: factory,
		status:      NotAuthorized,
	}
	m.fetchCtx, m.fetchCancel = context.WithCancel(context.Background())
	m.lifecycle = newWorkflowLifecycle(m.handleWorkflowSuccess, m.handleWorkflowError)
	return m
}

// Subscribe returns a channel carrying the Manager's event stream. Events
// are delivered best-effort: a subscriber that stops draining loses
// events rather than blocking the Manager.
func (m *Manager) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()
	return ch
}

func (m *Manager) publish(ev Event) {
	m.mu.Lock()
	subscribers := make([]chan Event, len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- ev:
		default:
			log.Warnf("auth event dropped for slow subscriber: kind=%d", ev.Kind)
		}
	}
}

// Status returns the current authorization state.
func (m *Manager) Status() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsAuthorized reports whether the client currently holds an authorized
// session.
func (m *Manager) IsAuthorized() bool {
	return m.Status() == Authorized
}

// User returns the cached profile of the signed-in account, or nil while
// no profile has been fetched.
func (m *Manager) User() *api.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// setStatus applies a state transition. Setting the current state again
// is a no-op: no event fires. Leaving Authorized discards the cached
// profile.
func (m *Manager) setStatus(status State) {
	m.mu.Lock()
	if m.status == status {
		m.mu.Unlock()
		return
	}
	m.status = status
	if status != Authorized {
		m.user = nil
	}
	m.mu.Unlock()

	log.Debugf("authorization status changed to %s", status)
	m.publish(Event{Kind: EventStatusChanged, State: status})
}

// RequestAuthorization invokes callback synchronously and returns true if
// the client is already authorized. Otherwise it enqueues the callback,
// triggers an authorization attempt, and returns false; the callback runs
// once authorization succeeds, or never if it fails. This method never
// returns an error: all failure is communicated through the event stream.
func (m *Manager) RequestAuthorization(callback func()) bool {
	m.mu.Lock()
	if m.status == Authorized {
		m.mu.Unlock()
		callback()
		return true
	}
	m.queued = append(m.queued, callback)
	m.mu.Unlock()

	m.AttemptAuthorize()
	return false
}

// AttemptAuthorize tries to authorize the client. A valid stored token is
// reused without any interaction: the transition to Authorized, the token
// configuration, the authorized notification, and the profile fetch all
// happen synchronously in this call. Without a stored token the user is
// asked to confirm sign-in; acceptance starts the workflow, cancellation
// empties the callback queue without invoking anything. While an attempt
// is already in flight the call is a no-op, so overlapping requests
// enqueue instead of spawning a second workflow.
func (m *Manager) AttemptAuthorize() {
	if m.attemptInProgress() {
		return
	}

	if token, ok := m.tokens.Retrieve(); ok {
		m.becomeAuthorized(token)
		return
	}

	m.mu.Lock()
	if m.status == Authorizing || m.prompting {
		m.mu.Unlock()
		return
	}
	m.prompting = true
	m.mu.Unlock()

	accepted := m.prompter.ConfirmSignIn()

	m.mu.Lock()
	m.prompting = false
	m.mu.Unlock()

	if !accepted {
		log.Debug("sign-in declined, discarding pending callbacks")
		m.clearQueue()
		return
	}

	m.startWorkflow()
}

func (m *Manager) attemptInProgress() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == Authorizing || m.prompting
}

// Deauthorize signs the client out: state returns to NotAuthorized, the
// shared client token is cleared, and the persisted credential is
// removed. Safe to call from any state and idempotent.
func (m *Manager) Deauthorize() {
	m.setStatus(NotAuthorized)
	m.client.ClearToken()
	m.tokens.Remove()
}

// becomeAuthorized is the single convergence point for cached-token reuse
// and workflow success.
func (m *Manager) becomeAuthorized(token string) {
	m.setStatus(Authorized)
	m.client.SetToken(token)
	m.publish(Event{Kind: EventAuthorized})
	m.fetchProfile()
}

func (m *Manager) startWorkflow() {
	m.setStatus(Authorizing)
	if err := m.lifecycle.Start(m.newWorkflow); err != nil {
		if errors.Is(err, ErrWorkflowActive) {
			// A workflow is still negotiating; its outcome will drive the
			// next transition and drain or clear the queue.
			log.Error(err)
			return
		}
		m.handleWorkflowError(err.Error())
	}
}

// handleWorkflowSuccess receives the token issued by the sign-in
// workflow.
func (m *Manager) handleWorkflowSuccess(token string, expirySeconds int) {
	if err := m.tokens.Save(token, expirySeconds); err != nil {
		log.Warnf("failed to persist credential: %v", err)
	}
	m.becomeAuthorized(token)
}

// handleWorkflowError receives a workflow failure. Every pending caller
// is discarded uninvoked; the failure surfaces on the event stream with a
// retryable message.
func (m *Manager) handleWorkflowError(message string) {
	m.clearQueue()
	m.setStatus(NotAuthorized)
	log.Errorf("authorization error - %s", message)
	m.publish(Event{Kind: EventAuthorizationFailed, Message: message})
}

func (m *Manager) clearQueue() {
	m.mu.Lock()
	m.queued = nil
	m.mu.Unlock()
}

// fetchProfile issues the "current user" request for this authorization.
// A newer fetch supersedes any outstanding one; the older reply is
// discarded by identity when it eventually lands.
func (m *Manager) fetchProfile() {
	reply := m.client.CurrentUser(m.fetchCtx)
	m.mu.Lock()
	m.userReply = reply
	m.mu.Unlock()

	go func() {
		<-reply.Done()
		m.handleUserReply(reply)
	}()
}

func (m *Manager) handleUserReply(reply *api.UserReply) {
	m.mu.Lock()
	if reply != m.userReply {
		// A superseded reply we no longer care about.
		m.mu.Unlock()
		return
	}
	m.userReply = nil
	m.mu.Unlock()

	if errors.Is(reply.Err, context.Canceled) {
		// The client was torn down underneath the request.
		return
	}

	if reply.StatusCode == 401 {
		// The server rejected the token we just configured. Drop the
		// credential and go back through the interactive path.
		log.Warn("stored token rejected by server, re-attempting authorization")
		m.Deauthorize()
		m.AttemptAuthorize()
		return
	}

	if reply.Err != nil {
		log.Debugf("user profile fetch failed: %v", reply.Err)
		return
	}

	user, err := api.ParseUser(reply.Body)
	if err != nil {
		log.Warnf("failed to parse user profile: %v", err)
	}

	m.mu.Lock()
	if err == nil {
		m.user = user
	}
	callbacks := m.queued
	m.queued = nil
	m.mu.Unlock()

	// The queue is cleared before the first callback runs, so a callback
	// that re-enters RequestAuthorization queues for the next
	// authorization instead of this draining pass.
	for _, callback := range callbacks {
		callback()
	}
}

// Cleanup releases everything the Manager may still hold at host
// shutdown: the in-flight profile request and any workflow still inside
// its teardown grace period. Safe to call even if authorization was never
// started.
func (m *Manager) Cleanup() {
	m.fetchCancel()
	m.mu.Lock()
	m.userReply = nil
	m.mu.Unlock()
	m.lifecycle.ForceClose()
}
