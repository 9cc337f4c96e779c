package auth

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
)

// BrowserConsent implements Consent by opening the system browser and
// waiting for the provider to redirect back to a local listener.
type BrowserConsent struct {
	// ListenAddr is the host:port of the registered redirect URL,
	// e.g. "127.0.0.1:53682".
	ListenAddr string

	// Out receives the authorization URL as a fallback when the browser
	// cannot be opened. Optional.
	Out io.Writer
}

// Authorize opens authURL and blocks until the redirect arrives or ctx is
// done. The state parameter of the callback must match; a mismatch is
// rejected as a provider error.
func (c *BrowserConsent) Authorize(ctx context.Context, authURL, state string) (string, error) {
	ln, err := net.Listen("tcp", c.ListenAddr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", c.ListenAddr, err)
	}
	defer ln.Close()

	type callback struct {
		code string
		err  error
	}
	ch := make(chan callback, 1)

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if errCode := q.Get("error"); errCode != "" {
			ch <- callback{err: fmt.Errorf("provider rejected login: %s", errCode)}
			http.Error(w, "Login failed. You can close this window.", http.StatusBadRequest)
			return
		}
		if q.Get("state") != state {
			ch <- callback{err: fmt.Errorf("state mismatch in callback")}
			http.Error(w, "Login failed. You can close this window.", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Login complete. You can close this window.")
		ch <- callback{code: q.Get("code")}
	})}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	if err := openBrowser(authURL); err != nil && c.Out != nil {
		fmt.Fprintf(c.Out, "Open this URL to sign in:\n%s\n", authURL)
	}

	select {
	case cb := <-ch:
		return cb.code, cb.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func openBrowser(rawURL string) error {
	if _, err := url.Parse(rawURL); err != nil {
		return err
	}
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", rawURL).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL).Start()
	default:
		return exec.Command("xdg-open", rawURL).Start()
	}
}
