package auth

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// recordedRequest is one form POST seen by a fake token endpoint.
type recordedRequest struct {
	Path string
	Form url.Values
	Raw  string
}

type requestLog struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (l *requestLog) record(r *http.Request) recordedRequest {
	raw, _ := io.ReadAll(r.Body)
	form, _ := url.ParseQuery(string(raw))
	req := recordedRequest{Path: r.URL.Path, Form: form, Raw: string(raw)}
	l.mu.Lock()
	l.requests = append(l.requests, req)
	l.mu.Unlock()
	return req
}

func (l *requestLog) all() []recordedRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedRequest(nil), l.requests...)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// redirectingBrowser plays the user: it reads redirect_uri and state from
// the authorization URL and calls the loopback listener with a code.
func redirectingBrowser(t *testing.T, code string, mutate func(q url.Values)) (BrowserOpener, *[]string) {
	t.Helper()
	var mu sync.Mutex
	opened := []string{}
	return BrowserFunc(func(authURL string) error {
		mu.Lock()
		opened = append(opened, authURL)
		mu.Unlock()
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		redirect := u.Query().Get("redirect_uri")
		q := url.Values{}
		q.Set("code", code)
		q.Set("state", u.Query().Get("state"))
		if mutate != nil {
			mutate(q)
		}
		target := strings.Replace(redirect, "localhost", "127.0.0.1", 1) + "?" + q.Encode()
		go func() {
			resp, err := http.Get(target)
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
		return nil
	}), &opened
}

func collectStatus() (StatusFunc, func() []string) {
	var mu sync.Mutex
	var msgs []string
	return func(msg string) {
			mu.Lock()
			msgs = append(msgs, msg)
			mu.Unlock()
		}, func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), msgs...)
		}
}
