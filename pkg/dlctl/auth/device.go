package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/telekom/dlctl/pkg/metrics"
)

type LoginStatus string

const (
	StatusWait    LoginStatus = "WAIT"
	StatusFail    LoginStatus = "FAIL"
	StatusSuccess LoginStatus = "SUCCESS"
)

type DeviceFlowState string

const (
	DeviceFlowIdle          DeviceFlowState = "Idle"
	DeviceFlowCodeRequested DeviceFlowState = "CodeRequested"
	DeviceFlowPolling       DeviceFlowState = "Polling"
	DeviceFlowSuccess       DeviceFlowState = "Success"
	DeviceFlowDenied        DeviceFlowState = "Denied"
	DeviceFlowExpired       DeviceFlowState = "Expired"
	DeviceFlowTimedOut      DeviceFlowState = "TimedOut"
	DeviceFlowCancelled     DeviceFlowState = "Cancelled"
)

const (
	slowDownStep       = 5 * time.Second
	pollRequestTimeout = 30 * time.Second
)

// DeviceSession is one device authorization. It is closed as soon as the
// poller exits and cannot be polled afterwards.
type DeviceSession struct {
	DeviceCode      string
	UserCode        string
	VerificationURL string
	Interval        time.Duration
	ExpiresAt       time.Time

	closed atomic.Bool
}

func (s *DeviceSession) Closed() bool {
	return s.closed.Load()
}

func (s *DeviceSession) close() {
	s.closed.Store(true)
}

// pollInterval is a backoff.BackOff that waits a fixed interval, growing on
// slow_down.
type pollInterval struct {
	interval time.Duration
}

func (p *pollInterval) NextBackOff() time.Duration {
	return p.interval
}

func (p *pollInterval) Reset() {}

func (p *pollInterval) slowDown() {
	p.interval += slowDownStep
}

// DeviceFlow runs the device authorization grant. Start requests the codes
// and launches the background poller; Wait blocks for the outcome.
type DeviceFlow struct {
	cfg  FlowConfig
	opts FlowOptions
	log  *zap.SugaredLogger

	mu           sync.Mutex
	started      bool
	state        DeviceFlowState
	status       LoginStatus
	session      *DeviceSession
	outcome      *Outcome
	cancel       context.CancelFunc
	cancelReason error
	done         chan struct{}
}

func NewDeviceFlow(cfg FlowConfig, opts FlowOptions) *DeviceFlow {
	opts = opts.withDefaults()
	return &DeviceFlow{
		cfg:    cfg.WithDefaults(),
		opts:   opts,
		log:    opts.Logger.With("flow", string(FlowDevice)),
		state:  DeviceFlowIdle,
		status: StatusWait,
		done:   make(chan struct{}),
	}
}

func (f *DeviceFlow) LoginStatus() LoginStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *DeviceFlow) State() DeviceFlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *DeviceFlow) Session() *DeviceSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *DeviceFlow) UserCode() string {
	if s := f.Session(); s != nil {
		return s.UserCode
	}
	return ""
}

func (f *DeviceFlow) VerificationURL() string {
	if s := f.Session(); s != nil {
		return s.VerificationURL
	}
	return ""
}

// Start requests a device code, reports the verification URL and launches
// the poller. On error no poller is running and the status is FAIL.
func (f *DeviceFlow) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return errors.New("device flow already started")
	}
	f.started = true
	stopped := f.cancelReason != nil
	f.mu.Unlock()

	if stopped {
		f.finish(DeviceFlowCancelled, cancelledOutcome(FlowDevice, "Device login was cancelled."))
		close(f.done)
		return ErrCancelled
	}
	if err := f.cfg.Validate(); err != nil {
		f.finish(DeviceFlowDenied, failedOutcome(FlowDevice, "Login configuration is invalid: "+err.Error(), err))
		close(f.done)
		return err
	}

	session, err := f.requestDeviceCode(ctx)
	if err != nil && !isCancellation(err) && f.useRetryEndpoint() {
		f.log.Warnw("Device code request failed, retrying with the default login endpoint",
			"error", err, "retryEndpoint", f.cfg.DeviceAuthorizationURL)
		session, err = f.requestDeviceCode(ctx)
	}
	if err != nil {
		f.log.Errorw("Device code request failed", "error", err)
		outcome := failedOutcome(FlowDevice, "Could not request a device code: "+err.Error(), err)
		if isCancellation(err) {
			outcome = cancelledOutcome(FlowDevice, "Device login was cancelled.")
		}
		f.finish(DeviceFlowDenied, outcome)
		close(f.done)
		return err
	}

	f.mu.Lock()
	f.session = session
	f.state = DeviceFlowCodeRequested
	f.mu.Unlock()

	f.log.Infow("Device code issued", "verificationURL", session.VerificationURL, "interval", session.Interval)
	f.opts.Status(fmt.Sprintf("To log in, open %s in a browser and enter the code %s.", session.VerificationURL, session.UserCode))
	if err := f.opts.Browser.OpenURL(session.VerificationURL); err != nil {
		f.log.Warnw("Failed to open browser", "error", err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.state = DeviceFlowPolling
	if f.cancelReason != nil {
		cancel()
	}
	f.mu.Unlock()
	go f.poll(pollCtx, session)
	return nil
}

func (f *DeviceFlow) requestDeviceCode(ctx context.Context) (*DeviceSession, error) {
	client := f.opts.Client(f.cfg.DeviceAuthorizationURL,
		Param("response_type", "device_code"),
		Param("client_id", f.cfg.ClientID),
		Param("scope", f.cfg.Scope),
	)
	if err := client.Post(ctx); err != nil {
		return nil, err
	}
	body, err := client.Body()
	if err != nil {
		return nil, err
	}
	if !client.IsSuccessful() {
		return nil, protocolErrorFromBody(body, client.StatusCode())
	}
	if !gjson.ValidBytes(body) {
		return nil, &ProtocolError{Description: "device code response is not valid JSON", StatusCode: client.StatusCode()}
	}
	res := gjson.ParseBytes(body)
	session := &DeviceSession{
		DeviceCode: res.Get("device_code").String(),
		UserCode:   res.Get("user_code").String(),
	}
	if session.DeviceCode == "" || session.UserCode == "" {
		return nil, &ProtocolError{Description: "device code response is missing device_code or user_code", StatusCode: client.StatusCode()}
	}
	session.VerificationURL = verificationURL(
		res.Get("verification_uri_complete").String(),
		firstNonEmpty(res.Get("verification_uri").String(), res.Get("verification_url").String()),
		session.UserCode,
	)
	session.Interval = f.cfg.PollInterval
	if secs := res.Get("interval").Int(); secs > 0 {
		session.Interval = time.Duration(secs) * time.Second
	}
	if secs := res.Get("expires_in").Int(); secs > 0 {
		session.ExpiresAt = time.Now().Add(time.Duration(secs) * time.Second)
	}
	return session, nil
}

// useRetryEndpoint switches the device and token endpoints to the retry
// login URL. It reports false when there is nothing different to try.
func (f *DeviceFlow) useRetryEndpoint() bool {
	if f.cfg.DeviceRetryLoginURL == "" {
		return false
	}
	_, tokenURL := EndpointsFromLoginURL(f.cfg.DeviceRetryLoginURL)
	if tokenURL == f.cfg.DeviceAuthorizationURL {
		return false
	}
	f.cfg.DeviceAuthorizationURL = tokenURL
	f.cfg.TokenURL = tokenURL
	return true
}

func verificationURL(complete, base, userCode string) string {
	if complete != "" {
		return complete
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "user_code=" + userCode
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// PollOnce sends a single token request for the session.
func (f *DeviceFlow) PollOnce(ctx context.Context) (*TokenResult, error) {
	session := f.Session()
	if session == nil || session.Closed() {
		return nil, ErrDeviceSessionClosed
	}
	codeParam := "code"
	if f.cfg.DeviceGrantType == GrantTypeDeviceCode {
		codeParam = "device_code"
	}
	params := []FormParam{
		Param("grant_type", f.cfg.DeviceGrantType),
		Param("client_id", f.cfg.ClientID),
		Param(codeParam, session.DeviceCode),
	}
	if f.cfg.confidential() {
		params = append(params, Param("client_secret", f.cfg.ClientSecret))
	}
	return exchangeToken(ctx, f.opts.Client, f.cfg.TokenURL, params...)
}

func (f *DeviceFlow) maxWait(session *DeviceSession) time.Duration {
	limit := f.cfg.DeviceMaxWait
	if !session.ExpiresAt.IsZero() {
		if untilExpiry := time.Until(session.ExpiresAt); untilExpiry > 0 && untilExpiry < limit {
			limit = untilExpiry
		}
	}
	return limit
}

func (f *DeviceFlow) poll(ctx context.Context, session *DeviceSession) {
	defer close(f.done)
	defer session.close()

	interval := &pollInterval{interval: session.Interval}
	operation := func() (*TokenResult, error) {
		// Stop and timeout take effect between polls; a request already
		// sent is allowed to finish.
		if err := ctx.Err(); err != nil {
			return nil, backoff.Permanent(err)
		}
		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pollRequestTimeout)
		token, err := f.PollOnce(reqCtx)
		cancel()
		if err == nil {
			metrics.DevicePolls.WithLabelValues("success").Inc()
			return token, nil
		}
		var perr *ProtocolError
		if errors.As(err, &perr) && perr.Code.KeepPolling() {
			metrics.DevicePolls.WithLabelValues(string(perr.Code)).Inc()
			if perr.Code == ErrorSlowDown {
				interval.slowDown()
				f.log.Debugw("Server asked to slow down", "interval", interval.interval)
			}
			return nil, err
		}
		metrics.DevicePolls.WithLabelValues("error").Inc()
		return nil, backoff.Permanent(err)
	}

	token, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(interval),
		backoff.WithMaxElapsedTime(f.maxWait(session)),
	)
	f.finish(f.classify(token, err))
}

func (f *DeviceFlow) classify(token *TokenResult, err error) (DeviceFlowState, Outcome) {
	if err == nil && token != nil {
		f.log.Infow("Device login successful", "instanceURL", token.InstanceURL)
		return DeviceFlowSuccess, successOutcome(FlowDevice, token, "Login successful.")
	}
	f.mu.Lock()
	reason := f.cancelReason
	f.mu.Unlock()
	if reason != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if errors.Is(reason, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return DeviceFlowTimedOut, timedOutOutcome(FlowDevice, "Device login timed out. Please try again.")
		}
		return DeviceFlowCancelled, cancelledOutcome(FlowDevice, "Device login was cancelled.")
	}
	var perr *ProtocolError
	if errors.As(err, &perr) {
		switch perr.Code {
		case ErrorAuthorizationPending, ErrorSlowDown:
			f.log.Warnw("Device login not approved before the polling limit")
			return DeviceFlowTimedOut, timedOutOutcome(FlowDevice, "Device login timed out waiting for approval. Please try again.")
		case ErrorExpiredToken:
			return DeviceFlowExpired, Outcome{
				Kind:    OutcomeTimedOut,
				Flow:    FlowDevice,
				Message: "The device code expired before the login was approved. Please try again.",
				Err:     fmt.Errorf("%w: %w", ErrTimeout, perr),
			}
		case ErrorAccessDenied:
			return DeviceFlowDenied, failedOutcome(FlowDevice, "Device login was denied.", perr)
		}
	}
	f.log.Errorw("Device login failed", "error", err)
	return DeviceFlowDenied, failedOutcome(FlowDevice, "Device login failed: "+err.Error(), err)
}

func (f *DeviceFlow) finish(state DeviceFlowState, outcome Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.outcome = &outcome
	if outcome.Kind == OutcomeSuccess {
		f.status = StatusSuccess
	} else {
		f.status = StatusFail
	}
}

// Wait blocks until the poller finishes, the timeout elapses or ctx is
// cancelled. The poller has exited when Wait returns.
func (f *DeviceFlow) Wait(ctx context.Context, timeout time.Duration) Outcome {
	f.mu.Lock()
	started := f.started
	f.mu.Unlock()
	if !started {
		return failedOutcome(FlowDevice, "Device login was not started.", errors.New("device flow not started"))
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-f.done:
	case <-timer:
		f.log.Warnw("Device login timed out", "timeout", timeout)
		f.stop(ErrTimeout)
	case <-ctx.Done():
		f.stop(ErrCancelled)
	}
	<-f.done

	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.outcome
}

// Run starts the flow and waits for it up to the configured timeout.
func (f *DeviceFlow) Run(ctx context.Context) Outcome {
	if err := f.Start(ctx); err != nil {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.outcome != nil {
			return *f.outcome
		}
		return failedOutcome(FlowDevice, "Device login failed: "+err.Error(), err)
	}
	return f.Wait(ctx, f.cfg.Timeout)
}

// Stop cancels the poller and waits for it to exit. Status becomes FAIL
// unless the login already succeeded.
func (f *DeviceFlow) Stop() {
	f.mu.Lock()
	started := f.started
	f.mu.Unlock()
	f.stop(ErrCancelled)
	if started {
		<-f.done
	}
}

func (f *DeviceFlow) stop(reason error) {
	f.mu.Lock()
	if f.cancelReason == nil {
		f.cancelReason = reason
	}
	cancel := f.cancel
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
