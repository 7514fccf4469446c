// Package client provides OAuth2 client setup for Google APIs.
package client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// callbackPort is the port for the local OAuth callback server.
	callbackPort = 8085
	// callbackPath is the path for the OAuth callback.
	callbackPath = "/callback"
	// serverTimeout is how long to wait for the OAuth callback.
	serverTimeout = 5 * time.Minute
)

// ErrNoToken is returned when no stored token exists and the browser flow
// is not allowed.
var ErrNoToken = errors.New("no oauth token, run setup first")

// Options configures client creation.
type Options struct {
	// SecretFile is the OAuth client secret JSON downloaded from Google Cloud.
	SecretFile string
	// TokenFile stores the user's token between runs.
	TokenFile string
	// Scopes requested for the token.
	Scopes []string
	// Interactive allows the browser flow when no token is stored.
	Interactive bool
}

// New creates a new HTTP client with OAuth2 credentials.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*http.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b, err := os.ReadFile(opts.SecretFile)
	if err != nil {
		return nil, fmt.Errorf("reading client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, opts.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret: %w", err)
	}

	a := &authorizer{
		config:    config,
		tokenFile: opts.TokenFile,
		logger:    logger.With("component", "oauth"),
	}
	tok, err := a.token(ctx, opts.Interactive)
	if err != nil {
		return nil, fmt.Errorf("getting oauth token: %w", err)
	}
	return config.Client(ctx, tok), nil
}

// HasToken reports whether a readable token is stored at path.
func HasToken(path string) bool {
	_, err := tokenFromFile(path)
	return err == nil
}

type authorizer struct {
	config    *oauth2.Config
	tokenFile string
	logger    *slog.Logger
}

func (a *authorizer) token(ctx context.Context, interactive bool) (*oauth2.Token, error) {
	tok, err := tokenFromFile(a.tokenFile)
	if err == nil {
		return tok, nil
	}
	if !interactive {
		return nil, ErrNoToken
	}

	a.logger.Info("no existing token found, initiating OAuth flow")
	tok, err = a.tokenFromWeb(ctx)
	if err != nil {
		return nil, err
	}
	if err := saveToken(a.tokenFile, tok); err != nil {
		a.logger.Error("failed to save token", "error", err)
	} else {
		a.logger.Info("saved credential file", "path", a.tokenFile)
	}
	return tok, nil
}

func (a *authorizer) tokenFromWeb(ctx context.Context) (*oauth2.Token, error) {
	a.config.RedirectURL = fmt.Sprintf("http://localhost:%d%s", callbackPort, callbackPath)

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state token: %w", err)
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	server, err := a.startCallbackServer(ctx, state, codeChan, errChan)
	if err != nil {
		return nil, fmt.Errorf("starting callback server: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			a.logger.Warn("error shutting down callback server", "error", err)
		}
	}()

	authURL := a.config.AuthCodeURL(state, oauth2.AccessTypeOffline)

	fmt.Printf("\nOpening browser for Google authentication...\n")
	fmt.Printf("If the browser doesn't open automatically, visit this URL:\n%s\n\n", authURL)

	if err := openBrowser(ctx, authURL); err != nil {
		a.logger.Warn("failed to open browser automatically", "error", err)
	}

	select {
	case code := <-codeChan:
		tok, err := a.config.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code for token: %w", err)
		}
		fmt.Println("Authentication successful!")
		return tok, nil
	case err := <-errChan:
		return nil, fmt.Errorf("oauth callback error: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(serverTimeout):
		return nil, fmt.Errorf("oauth flow timed out after %v", serverTimeout)
	}
}

func (a *authorizer) startCallbackServer(ctx context.Context, expectedState string, codeChan chan<- string, errChan chan<- error) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle(callbackPath, callbackHandler(expectedState, codeChan, errChan))

	server := &http.Server{
		Addr:              fmt.Sprintf("localhost:%d", callbackPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", server.Addr)
	if err != nil {
		return nil, fmt.Errorf("port %d unavailable: %w", callbackPort, err)
	}

	go func() {
		a.logger.Debug("starting OAuth callback server", "port", callbackPort)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("callback server error", "error", err)
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	return server, nil
}

// callbackHandler receives the provider redirect. Results are delivered
// without blocking; only the first one counts.
func callbackHandler(expectedState string, codeChan chan<- string, errChan chan<- error) http.HandlerFunc {
	fail := func(w http.ResponseWriter, err error, msg string) {
		select {
		case errChan <- err:
		default:
		}
		http.Error(w, msg, http.StatusBadRequest)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != expectedState {
			fail(w, fmt.Errorf("invalid state parameter"), "Invalid state parameter")
			return
		}
		if errMsg := q.Get("error"); errMsg != "" {
			fail(w, fmt.Errorf("%s: %s", errMsg, q.Get("error_description")), "Authentication failed: "+errMsg)
			return
		}
		code := q.Get("code")
		if code == "" {
			fail(w, fmt.Errorf("no authorization code received"), "No authorization code received")
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Autoryzacja zakończona</title></head>
<body style="font-family: sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0;">
<div style="text-align: center;">
<h1 style="color: #4CAF50;">✓ Autoryzacja zakończona</h1>
<p>You can close this window and return to the terminal.</p>
</div>
</body>
</html>`)

		select {
		case codeChan <- code:
		default:
		}
	}
}

func openBrowser(ctx context.Context, url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(path string, token *oauth2.Token) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating token file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	return nil
}
