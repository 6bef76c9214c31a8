package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestLifecycle(onSuccess func(string, int), onError func(string)) *workflowLifecycle {
	if onSuccess == nil {
		onSuccess = func(string, int) {}
	}
	if onError == nil {
		onError = func(string) {}
	}
	l := newWorkflowLifecycle(onSuccess, onError)
	l.grace = 20 * time.Millisecond
	return l
}

func TestLifecycleSuccessPath(t *testing.T) {
	t.Parallel()

	got := make(chan string, 1)
	l := newTestLifecycle(func(token string, expiry int) {
		got <- token
	}, nil)

	workflow := newFakeWorkflow()
	if err := l.Start(func() (Workflow, error) { return workflow, nil }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	workflow.result <- WorkflowResult{Token: "tok", ExpirySeconds: 3600}

	select {
	case token := <-got:
		if token != "tok" {
			t.Errorf("token = %q, want %q", token, "tok")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for success callback")
	}

	// The grace period elapses and the workflow is torn down exactly
	// once, without the force path.
	waitFor(t, func() bool {
		_, _, closeCalls := workflow.counts()
		return closeCalls == 1
	})
	if _, forceStops, _ := workflow.counts(); forceStops != 0 {
		t.Error("graceful teardown used the force path")
	}
	waitFor(t, func() bool { return !l.active() })
}

func TestLifecycleErrorPath(t *testing.T) {
	t.Parallel()

	got := make(chan string, 1)
	l := newTestLifecycle(nil, func(message string) {
		got <- message
	})

	workflow := newFakeWorkflow()
	if err := l.Start(func() (Workflow, error) { return workflow, nil }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	workflow.result <- WorkflowResult{Err: errTest("denied")}

	select {
	case message := <-got:
		if message != "denied" {
			t.Errorf("message = %q, want %q", message, "denied")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for error callback")
	}
	waitFor(t, func() bool { return !l.active() })
}

func TestLifecycleRejectsSecondStart(t *testing.T) {
	t.Parallel()

	l := newTestLifecycle(nil, nil)
	first := newFakeWorkflow()
	if err := l.Start(func() (Workflow, error) { return first, nil }); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}

	second := newFakeWorkflow()
	err := l.Start(func() (Workflow, error) { return second, nil })
	if !errors.Is(err, ErrWorkflowActive) {
		t.Fatalf("second Start() error = %v, want ErrWorkflowActive", err)
	}
	if started, _, _ := second.counts(); started != 0 {
		t.Error("rejected workflow was started anyway")
	}

	l.ForceClose()
}

func TestLifecycleForceCloseDuringGracePeriod(t *testing.T) {
	t.Parallel()

	l := newTestLifecycle(nil, nil)
	l.grace = time.Hour // the timer must never be what fires teardown here

	workflow := newFakeWorkflow()
	if err := l.Start(func() (Workflow, error) { return workflow, nil }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	workflow.result <- WorkflowResult{Token: "tok", ExpirySeconds: 60}

	// Wait until the lifecycle has entered its closing grace period.
	waitFor(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.phase == lifecycleClosing
	})

	// A manual force close while the deferred teardown is pending must
	// tear down once and leave the lifecycle idle.
	l.ForceClose()
	l.ForceClose()

	if _, forceStops, closeCalls := workflow.counts(); forceStops != 1 || closeCalls != 1 {
		t.Errorf("forceStops=%d closeCalls=%d, want 1 and 1", forceStops, closeCalls)
	}
	if l.active() {
		t.Error("lifecycle still active after force close")
	}

	// A new workflow may start now.
	next := newFakeWorkflow()
	if err := l.Start(func() (Workflow, error) { return next, nil }); err != nil {
		t.Fatalf("Start() after teardown error = %v", err)
	}
	l.ForceClose()
}

func TestLifecycleStartDuringGraceReapsPrevious(t *testing.T) {
	t.Parallel()

	l := newTestLifecycle(nil, nil)
	l.grace = time.Hour // the timer must never be what fires teardown here

	first := newFakeWorkflow()
	if err := l.Start(func() (Workflow, error) { return first, nil }); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	first.result <- WorkflowResult{Token: "tok", ExpirySeconds: 60}

	waitFor(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.phase == lifecycleClosing
	})

	// A new sign-in during the grace period supersedes the finished
	// workflow instead of being rejected.
	second := newFakeWorkflow()
	if err := l.Start(func() (Workflow, error) { return second, nil }); err != nil {
		t.Fatalf("Start() during grace period error = %v", err)
	}
	if _, forceStops, closeCalls := first.counts(); forceStops != 0 || closeCalls != 1 {
		t.Errorf("first workflow forceStops=%d closeCalls=%d, want 0 and 1", forceStops, closeCalls)
	}
	if started, _, _ := second.counts(); started != 1 {
		t.Errorf("second workflow start count = %d, want 1", started)
	}
	l.ForceClose()
}

func TestLifecycleForceCloseDropsLateResult(t *testing.T) {
	t.Parallel()

	succeeded := make(chan string, 1)
	l := newTestLifecycle(func(token string, expiry int) {
		succeeded <- token
	}, nil)

	workflow := newFakeWorkflow()
	if err := l.Start(func() (Workflow, error) { return workflow, nil }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Force close before any result is delivered; the goroutine waiting
	// on the result channel must stand down, and a result surfacing after
	// the teardown is discarded.
	l.ForceClose()
	workflow.result <- WorkflowResult{Token: "tok-late", ExpirySeconds: 60}

	select {
	case token := <-succeeded:
		t.Fatalf("success callback ran with %q after force close", token)
	case <-time.After(300 * time.Millisecond):
	}
	if l.active() {
		t.Error("lifecycle still active after force close")
	}
}

func TestLifecycleStartErrorSchedulesTeardown(t *testing.T) {
	t.Parallel()

	l := newTestLifecycle(nil, nil)
	workflow := newFakeWorkflow()
	workflow.startErr = errTest("port busy")

	err := l.Start(func() (Workflow, error) { return workflow, nil })
	if err == nil {
		t.Fatal("Start() succeeded, want error")
	}

	// The failed workflow is still released after the grace period.
	waitFor(t, func() bool { return !l.active() })
}

func TestLifecycleForceCloseWhenIdle(t *testing.T) {
	t.Parallel()

	l := newTestLifecycle(nil, nil)
	l.ForceClose()
}
