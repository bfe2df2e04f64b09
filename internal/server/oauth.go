package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// OAuthResult carries the outcome of one authorization code callback.
type OAuthResult struct {
	Token *oauth2.Token
	Err   error
}

// Exchanger trades an authorization code for a token. [*oauth2.Config] implements it.
type Exchanger interface {
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// OAuthHandler serves the redirect target of the YouTube consent screen.
//
// It checks the state token, exchanges the code and publishes exactly one [OAuthResult];
// later callbacks are refused.
type OAuthHandler struct {
	exchanger Exchanger
	state     string
	results   chan OAuthResult
	mu        sync.Mutex
	handled   bool
}

// NewOAuthHandler creates a handler expecting state on the callback.
func NewOAuthHandler(exchanger Exchanger, state string) *OAuthHandler {
	return &OAuthHandler{exchanger: exchanger, state: state, results: make(chan OAuthResult, 1)}
}

func (h *OAuthHandler) Routes() []string {
	return []string{"/callback"}
}

var donePage = template.Must(template.New("done").Parse(`<!DOCTYPE html>
<html>
<head><title>tubesync</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
         display: flex; align-items: center; justify-content: center; height: 100vh; margin: 0; background: #181818; }
  .box { text-align: center; background: #212121; color: #f1f1f1; padding: 2rem; border-radius: 8px; }
  h1 { color: {{.Color}}; margin: 0 0 1rem 0; }
</style></head>
<body><div class="box"><h1>{{.Title}}</h1><p>{{.Body}}</p></div></body>
</html>`))

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.handled {
		h.mu.Unlock()
		http.Error(w, "callback already processed", http.StatusBadRequest)
		return
	}
	h.handled = true
	h.mu.Unlock()

	q := r.URL.Query()
	if q.Get("state") != h.state {
		h.fail(w, http.StatusBadRequest, fmt.Errorf("invalid state parameter"))
		return
	}

	code := q.Get("code")
	if code == "" {
		h.fail(w, http.StatusBadRequest, fmt.Errorf("authorization denied: %s %s", q.Get("error"), q.Get("error_description")))
		return
	}

	token, err := h.exchanger.Exchange(r.Context(), code)
	if err != nil {
		h.fail(w, http.StatusBadGateway, fmt.Errorf("token exchange failed: %w", err))
		return
	}

	h.results <- OAuthResult{Token: token}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	donePage.Execute(w, map[string]string{
		"Color": "#ff0033",
		"Title": "YouTube connected",
		"Body":  "You can close this window and return to the terminal.",
	})
}

func (h *OAuthHandler) fail(w http.ResponseWriter, code int, err error) {
	h.results <- OAuthResult{Err: err}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	donePage.Execute(w, map[string]string{"Color": "#aaaaaa", "Title": "Authorization failed", "Body": err.Error()})
}

// Result delivers the single callback outcome.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.results
}
