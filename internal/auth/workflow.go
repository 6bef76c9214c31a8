package auth

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrWorkflowActive is returned when a sign-in workflow is started while
// another is still running and has not delivered its result yet.
var ErrWorkflowActive = errors.New("auth: sign-in workflow already active")

// defaultTeardownGrace is how long a finished workflow is kept alive
// before its listener is torn down, so its last redirect response can
// reach the browser.
const defaultTeardownGrace = time.Second

// WorkflowResult is the single outcome a workflow delivers: a bearer
// token with its lifetime, or an error.
type WorkflowResult struct {
	Token         string
	ExpirySeconds int
	Err           error
}

// Workflow is the external OAuth negotiation engine. Implementations
// deliver exactly one WorkflowResult on the Result channel after Start.
type Workflow interface {
	// Start launches the negotiation. It returns immediately; the outcome
	// arrives on Result.
	Start() error
	// Result yields the single success or error outcome.
	Result() <-chan WorkflowResult
	// ForceStop halts the negotiation immediately without delivering a
	// result. Used on process shutdown.
	ForceStop()
	// CloseServer shuts down the local callback listener.
	CloseServer() error
	// Wait blocks until the workflow's run loop has finished.
	Wait()
}

// WorkflowFactory constructs a fresh workflow for one sign-in attempt.
type WorkflowFactory func() (Workflow, error)

type lifecyclePhase int

const (
	lifecycleIdle lifecyclePhase = iota
	lifecycleActive
	lifecycleClosing
)

// workflowLifecycle owns at most one live workflow. It starts it,
// forwards its outcome, and tears it down after a grace period so the
// workflow's network listener can finish closing.
type workflowLifecycle struct {
	mu         sync.Mutex
	phase      lifecyclePhase
	workflow   Workflow
	closeTimer *time.Timer
	stop       chan struct{}
	grace      time.Duration

	onSuccess func(token string, expirySeconds int)
	onError   func(message string)
}

func newWorkflowLifecycle(onSuccess func(string, int), onError func(string)) *workflowLifecycle {
	return &workflowLifecycle{
		grace:     defaultTeardownGrace,
		onSuccess: onSuccess,
		onError:   onError,
	}
}

// Start constructs and launches a workflow. At most one may be live:
// starting while another is still running is rejected with
// ErrWorkflowActive. A finished workflow merely waiting out its teardown
// grace period is reaped first; a fresh sign-in supersedes its final
// redirect response.
func (l *workflowLifecycle) Start(factory WorkflowFactory) error {
	l.reapClosing()

	l.mu.Lock()
	if l.phase != lifecycleIdle {
		l.mu.Unlock()
		return ErrWorkflowActive
	}
	workflow, err := factory()
	if err != nil {
		l.mu.Unlock()
		return err
	}
	l.workflow = workflow
	l.phase = lifecycleActive
	stop := make(chan struct{})
	l.stop = stop
	l.mu.Unlock()

	if err = workflow.Start(); err != nil {
		l.scheduleTeardown()
		return err
	}

	go l.await(workflow, stop)
	return nil
}

// reapClosing tears down a workflow lingering in its teardown grace
// period. Its result has already been delivered; only the listener
// remains to close.
func (l *workflowLifecycle) reapClosing() {
	l.mu.Lock()
	var target Workflow
	if l.phase == lifecycleClosing {
		target = l.workflow
	}
	l.mu.Unlock()
	if target != nil {
		l.teardown(target, false)
	}
}

// await forwards the workflow's single outcome and then moves the
// lifecycle into its closing grace period. A teardown that preempts the
// result closes stop, so this goroutine never lingers on a workflow
// that will not deliver. The closing phase is entered before the
// outcome handlers run, so anything they trigger sees the lifecycle as
// restartable.
func (l *workflowLifecycle) await(workflow Workflow, stop <-chan struct{}) {
	select {
	case result := <-workflow.Result():
		select {
		case <-stop:
			// Torn down while the result was in flight; drop it.
			return
		default:
		}
		l.scheduleTeardown()
		if result.Err != nil {
			l.onError(result.Err.Error())
		} else {
			l.onSuccess(result.Token, result.ExpirySeconds)
		}
	case <-stop:
	}
}

// scheduleTeardown arms the deferred teardown timer. The delay lets the
// workflow's listener finish serving its final response before the
// socket is closed.
func (l *workflowLifecycle) scheduleTeardown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.workflow == nil {
		return
	}
	l.phase = lifecycleClosing
	if l.closeTimer != nil {
		return
	}
	target := l.workflow
	l.closeTimer = time.AfterFunc(l.grace, func() {
		l.teardown(target, false)
	})
}

// teardown releases the workflow target, or whatever workflow currently
// holds the slot when target is nil. Safe to call repeatedly and
// concurrently with the deferred timer: whichever caller claims the
// workflow performs the shutdown, every other call is a no-op. A caller
// aiming at a workflow that a successor has already replaced is also a
// no-op.
func (l *workflowLifecycle) teardown(target Workflow, force bool) {
	l.mu.Lock()
	if target != nil && target != l.workflow {
		l.mu.Unlock()
		return
	}
	if l.closeTimer != nil {
		l.closeTimer.Stop()
		l.closeTimer = nil
	}
	if l.stop != nil {
		close(l.stop)
		l.stop = nil
	}
	workflow := l.workflow
	l.workflow = nil
	l.phase = lifecycleIdle
	l.mu.Unlock()

	if workflow == nil {
		return
	}

	if force {
		workflow.ForceStop()
	}
	if err := workflow.CloseServer(); err != nil {
		log.Debugf("workflow listener close: %v", err)
	}
	workflow.Wait()
}

// ForceClose tears the workflow down immediately, skipping any pending
// grace period. Used on process shutdown.
func (l *workflowLifecycle) ForceClose() {
	l.teardown(nil, true)
}

// active reports whether a workflow is live or still tearing down.
func (l *workflowLifecycle) active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase != lifecycleIdle
}
