// Package main provides the entry point for the MapGrid command-line
// client. It wires the credential store, the platform API client, and
// the authorization manager together and exposes sign-in, sign-out, and
// account inspection commands.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mapgrid-io/mapgrid-cli/internal/api"
	"github.com/mapgrid-io/mapgrid-cli/internal/auth"
	"github.com/mapgrid-io/mapgrid-cli/internal/auth/oauth"
	"github.com/mapgrid-io/mapgrid-cli/internal/config"
	"github.com/mapgrid-io/mapgrid-cli/internal/logging"
	"github.com/mapgrid-io/mapgrid-cli/internal/store"
)

var (
	Version   = "dev"
	BuildDate = "unknown"
)

func main() {
	// Environment overrides may live in a local .env file.
	_ = godotenv.Load()

	var (
		login        bool
		logout       bool
		whoami       bool
		status       bool
		watch        bool
		noBrowser    bool
		callbackPort int
		configPath   string
	)

	flag.BoolVar(&login, "login", false, "Sign in to MapGrid using OAuth")
	flag.BoolVar(&logout, "logout", false, "Sign out and remove the stored credential")
	flag.BoolVar(&whoami, "whoami", false, "Show the signed-in account")
	flag.BoolVar(&status, "status", false, "Show authorization status")
	flag.BoolVar(&watch, "watch", false, "With -status, keep running and report credential changes")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open the browser automatically for OAuth")
	flag.IntVar(&callbackPort, "oauth-callback-port", 0, "Override the OAuth callback port")
	flag.StringVar(&configPath, "config", config.DefaultConfigPath(), "Configuration file path")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Debug)
	if cfg.Log.File != "" {
		if errLog := logging.EnableFileOutput(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups); errLog != nil {
			log.Warnf("file logging disabled: %v", errLog)
		}
	}
	log.Debugf("mapgrid %s (built %s)", Version, BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open credential store: %v\n", err)
		os.Exit(1)
	}
	defer closeBackend()

	client, err := api.NewClient(cfg.APIBaseURL, cfg.ProxyURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create API client: %v\n", err)
		os.Exit(1)
	}

	if callbackPort <= 0 {
		callbackPort = cfg.OAuth.CallbackPort
	}
	factory := func() (auth.Workflow, error) {
		return oauth.NewWorkflow(oauth.Options{
			AuthURL:      cfg.OAuth.AuthURL,
			TokenURL:     cfg.OAuth.TokenURL,
			ClientID:     cfg.OAuth.ClientID,
			Scopes:       cfg.OAuth.Scopes,
			CallbackPort: callbackPort,
			NoBrowser:    noBrowser,
			HTTPClient:   client.HTTPClient(),
		}), nil
	}

	manager := auth.NewManager(store.NewTokenStore(backend), client, &terminalPrompter{}, factory)
	defer manager.Cleanup()

	switch {
	case login:
		err = runLogin(ctx, manager)
	case logout:
		err = runLogout(manager)
	case whoami:
		err = runWhoami(ctx, manager)
	case status:
		err = runStatus(ctx, manager, cfg, watch)
	default:
		flag.Usage()
		return
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// openBackend selects the credential backend from configuration. An
// unusable keyring degrades to the plain-text file backend with a
// warning rather than failing outright.
func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, func(), error) {
	noop := func() {}
	switch cfg.Store.Backend {
	case config.StoreBackendFile:
		return store.NewFileBackend(cfg.Store.CredentialFile), noop, nil
	case config.StoreBackendPostgres:
		backend, err := store.OpenPostgres(ctx, cfg.Store.PostgresDSN, cfg.Store.PostgresTable)
		if err != nil {
			return nil, nil, err
		}
		return backend, func() { _ = backend.Close() }, nil
	case config.StoreBackendKeyring, "":
		backend, err := store.OpenKeyring(cfg.Store.KeyringService)
		if err != nil {
			log.Warnf("OS keyring unavailable (%v); falling back to plain-text file storage", err)
			return store.NewFileBackend(cfg.Store.CredentialFile), noop, nil
		}
		return backend, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// terminalPrompter asks for sign-in confirmation on the terminal.
type terminalPrompter struct{}

func (p *terminalPrompter) ConfirmSignIn() bool {
	fmt.Print("Sign in to MapGrid in your browser? [y/N]: ")
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// printEvent renders the Manager's notifications as terminal banners,
// including the sign-in affordance relabeling.
func printEvent(ev auth.Event) {
	switch ev.Kind {
	case auth.EventStatusChanged:
		switch ev.State {
		case auth.Authorizing:
			fmt.Println("Authorizing…")
		case auth.Authorized:
			fmt.Println("Authorized. Run 'mapgrid -logout' to sign out.")
		case auth.NotAuthorized:
			fmt.Println("Signed out. Run 'mapgrid -login' to sign in.")
		}
	case auth.EventAuthorizationFailed:
		fmt.Printf("Authorization error - %s\n", ev.Message)
		fmt.Println("Run 'mapgrid -login' to try again.")
	}
}

func runLogin(ctx context.Context, manager *auth.Manager) error {
	events := manager.Subscribe()
	done := make(chan struct{})

	if manager.RequestAuthorization(func() { close(done) }) {
		fmt.Println("Already signed in.")
		return nil
	}

	for {
		select {
		case <-done:
			if user := manager.User(); user != nil {
				fmt.Printf("Signed in as %s <%s>\n", user.Name, user.Email)
			} else {
				fmt.Println("Signed in.")
			}
			return nil
		case ev := <-events:
			printEvent(ev)
			if ev.Kind == auth.EventAuthorizationFailed {
				return fmt.Errorf("sign-in failed: %s", ev.Message)
			}
		case <-ctx.Done():
			return fmt.Errorf("sign-in interrupted")
		}
	}
}

func runLogout(manager *auth.Manager) error {
	manager.Deauthorize()
	fmt.Println("Signed out.")
	return nil
}

func runWhoami(ctx context.Context, manager *auth.Manager) error {
	if err := runLogin(ctx, manager); err != nil {
		return err
	}
	user := manager.User()
	if user == nil {
		return fmt.Errorf("profile unavailable")
	}
	fmt.Printf("id:    %s\n", user.ID)
	fmt.Printf("name:  %s\n", user.Name)
	fmt.Printf("email: %s\n", user.Email)
	return nil
}

func runStatus(ctx context.Context, manager *auth.Manager, cfg *config.Config, watch bool) error {
	printStatus(manager)
	if !watch {
		return nil
	}

	path, err := watchableCredentialPath(cfg)
	if err != nil {
		return err
	}

	changes := make(chan struct{}, 1)
	watcher, err := store.WatchFile(path, func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("watch credential file: %w", err)
	}

	g, watchCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-changes:
				fmt.Println("credential changed externally:")
				printStatus(manager)
			case <-watchCtx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		<-watchCtx.Done()
		return watcher.Close()
	})
	return g.Wait()
}

// watchableCredentialPath returns the credential file to observe for
// -status -watch. Only the file backend keeps a file on disk; keyring
// and postgres have no change feed to watch.
func watchableCredentialPath(cfg *config.Config) (string, error) {
	if cfg.Store.Backend != config.StoreBackendFile {
		backend := cfg.Store.Backend
		if backend == "" {
			backend = config.StoreBackendKeyring
		}
		return "", fmt.Errorf("-watch requires the %s store backend, not %s", config.StoreBackendFile, backend)
	}
	return cfg.Store.CredentialFile, nil
}

func printStatus(manager *auth.Manager) {
	if manager.IsAuthorized() {
		fmt.Println("status: authorized")
		return
	}
	fmt.Printf("status: %s\n", manager.Status())
}
