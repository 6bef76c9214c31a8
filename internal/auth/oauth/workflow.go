package oauth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/mapgrid-io/mapgrid-cli/internal/auth"
	"github.com/mapgrid-io/mapgrid-cli/internal/browser"
)

// OAuth endpoints and client registration for the MapGrid platform.
const (
	DefaultAuthURL      = "https://auth.mapgrid.io/oauth/authorize"
	DefaultTokenURL     = "https://auth.mapgrid.io/oauth/token"
	DefaultClientID     = "mapgrid-desktop"
	DefaultCallbackPort = 53119
)

// defaultCallbackTimeout bounds how long the workflow waits for the user
// to complete the browser sign-in.
const defaultCallbackTimeout = 5 * time.Minute

// defaultExpirySeconds is assumed when the token endpoint reports no
// lifetime.
const defaultExpirySeconds = 3600

// Options configures one sign-in workflow instance.
type Options struct {
	AuthURL      string
	TokenURL     string
	ClientID     string
	Scopes       []string
	CallbackPort int
	// NoBrowser skips launching the system browser; the authorization
	// URL is printed and copied to the clipboard instead.
	NoBrowser bool
	// HTTPClient is used for the token exchange; nil means
	// http.DefaultClient.
	HTTPClient *http.Client
	// CallbackTimeout overrides the default wait for the redirect.
	CallbackTimeout time.Duration
}

// Workflow drives one interactive authorization-code exchange. It
// implements the auth.Workflow contract: Start returns immediately and
// exactly one WorkflowResult is delivered on Result.
type Workflow struct {
	opts   Options
	conf   *oauth2.Config
	server *callbackServer

	pkce  *PKCECodes
	state string

	result     chan auth.WorkflowResult
	resultOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkflow constructs a workflow from options, applying platform
// defaults for anything unset.
func NewWorkflow(opts Options) *Workflow {
	if opts.AuthURL == "" {
		opts.AuthURL = DefaultAuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}
	if opts.ClientID == "" {
		opts.ClientID = DefaultClientID
	}
	if opts.CallbackPort <= 0 {
		opts.CallbackPort = DefaultCallbackPort
	}
	if opts.CallbackTimeout <= 0 {
		opts.CallbackTimeout = defaultCallbackTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Workflow{
		opts: opts,
		conf: &oauth2.Config{
			ClientID:    opts.ClientID,
			RedirectURL: fmt.Sprintf("http://127.0.0.1:%d/callback", opts.CallbackPort),
			Scopes:      opts.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  opts.AuthURL,
				TokenURL: opts.TokenURL,
			},
		},
		server: newCallbackServer(opts.CallbackPort),
		result: make(chan auth.WorkflowResult, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start generates the PKCE pair and CSRF state, brings up the callback
// listener, and points the user's browser at the authorization URL. The
// outcome arrives later on Result.
func (w *Workflow) Start() error {
	pkce, err := GeneratePKCECodes()
	if err != nil {
		return err
	}
	w.pkce = pkce
	w.state = uuid.NewString()

	if err = w.server.Start(); err != nil {
		return err
	}

	authURL := w.conf.AuthCodeURL(w.state,
		oauth2.SetAuthURLParam("code_challenge", pkce.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	if w.opts.NoBrowser {
		fmt.Printf("Open this URL in your browser to sign in:\n\n%s\n\n", authURL)
		if errClip := clipboard.WriteAll(authURL); errClip == nil {
			fmt.Println("The URL has been copied to your clipboard.")
		}
	} else if errOpen := browser.OpenURL(authURL); errOpen != nil {
		log.Warnf("failed to open browser: %v", errOpen)
		fmt.Printf("Open this URL in your browser to sign in:\n\n%s\n\n", authURL)
	}

	w.wg.Add(1)
	go w.run()
	return nil
}

// run waits for the redirect and performs the token exchange.
func (w *Workflow) run() {
	defer w.wg.Done()

	select {
	case result := <-w.server.Result():
		if result.Err != "" {
			w.deliver(auth.WorkflowResult{Err: fmt.Errorf("authorization refused: %s", result.Err)})
			return
		}
		if result.State != w.state {
			w.deliver(auth.WorkflowResult{Err: fmt.Errorf("state mismatch in OAuth callback")})
			return
		}
		w.exchange(result.Code)
	case err := <-w.server.ServerError():
		w.deliver(auth.WorkflowResult{Err: err})
	case <-time.After(w.opts.CallbackTimeout):
		w.deliver(auth.WorkflowResult{Err: fmt.Errorf("timed out waiting for sign-in")})
	case <-w.ctx.Done():
		// Force-stopped; no result is delivered.
	}
}

// exchange trades the authorization code for a bearer token.
func (w *Workflow) exchange(code string) {
	ctx := w.ctx
	if w.opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, w.opts.HTTPClient)
	}
	exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	token, err := w.conf.Exchange(exchangeCtx, code,
		oauth2.SetAuthURLParam("code_verifier", w.pkce.CodeVerifier),
	)
	if err != nil {
		w.deliver(auth.WorkflowResult{Err: fmt.Errorf("token exchange failed: %w", err)})
		return
	}

	expirySeconds := defaultExpirySeconds
	if !token.Expiry.IsZero() {
		if remaining := int(time.Until(token.Expiry).Seconds()); remaining > 0 {
			expirySeconds = remaining
		}
	}

	w.deliver(auth.WorkflowResult{
		Token:         token.AccessToken,
		ExpirySeconds: expirySeconds,
	})
}

// deliver emits the workflow's single result.
func (w *Workflow) deliver(result auth.WorkflowResult) {
	w.resultOnce.Do(func() {
		w.result <- result
	})
}

// Result yields the single success or error outcome.
func (w *Workflow) Result() <-chan auth.WorkflowResult {
	return w.result
}

// ForceStop halts the workflow immediately: the run loop is canceled and
// the listener closed without draining. No result is delivered.
func (w *Workflow) ForceStop() {
	w.cancel()
	w.server.ForceStop()
}

// CloseServer shuts the callback listener down gracefully.
func (w *Workflow) CloseServer() error {
	w.cancel()
	return w.server.Stop(context.Background())
}

// Wait blocks until the run loop has finished.
func (w *Workflow) Wait() {
	w.wg.Wait()
}
