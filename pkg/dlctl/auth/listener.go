package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CallbackResult is what the browser delivered on the redirect path.
type CallbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

func (r *CallbackResult) IsError() bool {
	return r.Error != "" || r.Code == ""
}

// RedirectListener is a one-shot loopback HTTP server that captures the
// first authorization redirect.
type RedirectListener struct {
	port int
	path string
	page []byte
	log  *zap.SugaredLogger

	mu        sync.Mutex
	started   bool
	listeners []net.Listener
	server    *http.Server
	result    *CallbackResult

	captureOnce sync.Once
	resultCh    chan *CallbackResult
	stopOnce    sync.Once
	stopped     chan struct{}
}

// NewRedirectListener prepares a listener on 127.0.0.1:port serving page on
// path. Port 0 picks a free port. The same port is also bound on [::1] when
// the host supports it, so localhost works whichever address it resolves to.
func NewRedirectListener(port int, path string, page []byte, log *zap.SugaredLogger) *RedirectListener {
	if path == "" {
		path = DefaultRedirectPath
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &RedirectListener{
		port:     port,
		path:     path,
		page:     page,
		log:      log,
		resultCh: make(chan *CallbackResult, 1),
		stopped:  make(chan struct{}),
	}
}

func (l *RedirectListener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return ErrListenerAlreadyStarted
	}
	l.started = true
	select {
	case <-l.stopped:
		return &SetupError{Op: "start redirect listener", Err: errors.New("listener already stopped")}
	default:
	}

	addr := fmt.Sprintf("127.0.0.1:%d", l.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &SetupError{Op: "start redirect listener", Err: fmt.Errorf("failed to bind %s: %w", addr, err)}
	}
	l.port = ln.Addr().(*net.TCPAddr).Port
	l.listeners = []net.Listener{ln}
	if ln6, err := net.Listen("tcp", fmt.Sprintf("[::1]:%d", l.port)); err == nil {
		l.listeners = append(l.listeners, ln6)
	} else {
		l.log.Debugw("IPv6 loopback not bound", "port", l.port, "error", err)
	}

	router := chi.NewRouter()
	router.Use(securityHeaders)
	router.Get(l.path, l.handleCallback)

	l.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server, port := l.server, l.port
	for _, listener := range l.listeners {
		go func() {
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.log.Warnw("Redirect listener stopped unexpectedly", "addr", listener.Addr().String(), "error", err)
			}
		}()
	}
	l.log.Debugw("Redirect listener started", "port", port, "path", l.path)
	return nil
}

func (l *RedirectListener) Port() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port
}

func (l *RedirectListener) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d%s", l.Port(), l.path)
}

func (l *RedirectListener) handleCallback(w http.ResponseWriter, r *http.Request) {
	first := false
	l.captureOnce.Do(func() { first = true })
	if !first {
		http.Error(w, "callback already processed", http.StatusBadRequest)
		return
	}
	query := r.URL.Query()
	result := &CallbackResult{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(l.page)
	l.resultCh <- result
}

// WaitForCallback blocks until the redirect arrives, the timeout elapses,
// the context is cancelled or the listener is stopped.
func (l *RedirectListener) WaitForCallback(ctx context.Context, timeout time.Duration) (*CallbackResult, error) {
	l.mu.Lock()
	if l.result != nil {
		res := l.result
		l.mu.Unlock()
		return res, nil
	}
	l.mu.Unlock()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case res := <-l.resultCh:
		l.mu.Lock()
		l.result = res
		l.mu.Unlock()
		return res, nil
	case <-timer:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	case <-l.stopped:
		return nil, fmt.Errorf("%w: redirect listener stopped", ErrCancelled)
	}
}

// WaitForCode returns the captured authorization code, or "" on timeout or
// when the redirect carried an error.
func (l *RedirectListener) WaitForCode(timeout time.Duration) string {
	if timeout <= 0 {
		return ""
	}
	res, err := l.WaitForCallback(context.Background(), timeout)
	if err != nil || res.IsError() {
		return ""
	}
	return res.Code
}

// Stop closes the server. It is safe to call more than once and before Start.
func (l *RedirectListener) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopped)
		l.mu.Lock()
		server := l.server
		listeners := l.listeners
		port := l.port
		l.mu.Unlock()
		if server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				_ = server.Close()
			}
		}
		for _, ln := range listeners {
			_ = ln.Close()
		}
		l.log.Debugw("Redirect listener stopped", "port", port)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
