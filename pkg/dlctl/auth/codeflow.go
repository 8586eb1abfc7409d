package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type CodeFlowState string

const (
	CodeFlowIdle             CodeFlowState = "Idle"
	CodeFlowListenerStarted  CodeFlowState = "ListenerStarted"
	CodeFlowAwaitingRedirect CodeFlowState = "AwaitingRedirect"
	CodeFlowCodeReceived     CodeFlowState = "CodeReceived"
	CodeFlowTimedOut         CodeFlowState = "TimedOut"
	CodeFlowErrorReceived    CodeFlowState = "ErrorReceived"
	CodeFlowExchanging       CodeFlowState = "Exchanging"
	CodeFlowSuccess          CodeFlowState = "Success"
	CodeFlowExchangeFailed   CodeFlowState = "ExchangeFailed"
	CodeFlowCancelled        CodeFlowState = "Cancelled"
)

// CodeFlow runs the authorization code grant through a loopback redirect
// listener. Flows built with NewPKCEFlow add a code challenge.
type CodeFlow struct {
	cfg     FlowConfig
	usePKCE bool
	opts    FlowOptions
	log     *zap.SugaredLogger

	mu    sync.Mutex
	state CodeFlowState
}

func NewPKCEFlow(cfg FlowConfig, opts FlowOptions) *CodeFlow {
	return newCodeFlow(cfg, true, opts)
}

func NewServerFlow(cfg FlowConfig, opts FlowOptions) *CodeFlow {
	return newCodeFlow(cfg, false, opts)
}

func newCodeFlow(cfg FlowConfig, usePKCE bool, opts FlowOptions) *CodeFlow {
	opts = opts.withDefaults()
	f := &CodeFlow{
		cfg:     cfg.WithDefaults(),
		usePKCE: usePKCE,
		opts:    opts,
		state:   CodeFlowIdle,
	}
	f.log = opts.Logger.With("flow", string(f.Kind()))
	return f
}

func (f *CodeFlow) Kind() FlowKind {
	if f.usePKCE {
		return FlowPKCE
	}
	return FlowServer
}

func (f *CodeFlow) UsesPKCE() bool {
	return f.usePKCE
}

func (f *CodeFlow) State() CodeFlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *CodeFlow) setState(state CodeFlowState) {
	f.mu.Lock()
	prev := f.state
	f.state = state
	f.mu.Unlock()
	f.log.Debugw("Code flow state changed", "from", prev, "to", state)
}

// AuthorizationURL builds the browser URL for redirectURI and params.
func (f *CodeFlow) AuthorizationURL(redirectURI string, params PKCEParams) string {
	oauthCfg := oauth2.Config{
		ClientID:    f.cfg.ClientID,
		Endpoint:    oauth2.Endpoint{AuthURL: f.cfg.AuthorizationURL, TokenURL: f.cfg.TokenURL},
		RedirectURL: redirectURI,
		Scopes:      strings.Fields(f.cfg.Scope),
	}
	var opts []oauth2.AuthCodeOption
	if f.usePKCE {
		opts = append(opts, oauth2.S256ChallengeOption(params.Verifier))
	}
	return oauthCfg.AuthCodeURL(params.State, opts...)
}

// Run drives the flow to exactly one terminal outcome. The redirect
// listener is always stopped before Run returns.
func (f *CodeFlow) Run(ctx context.Context) Outcome {
	kind := f.Kind()
	if err := f.cfg.Validate(); err != nil {
		return failedOutcome(kind, "Login configuration is invalid: "+err.Error(), err)
	}

	params, err := f.newParams()
	if err != nil {
		setupErr := &SetupError{Op: "generate login parameters", Err: err}
		return failedOutcome(kind, "Could not prepare the login request: "+err.Error(), setupErr)
	}
	port, path, err := parseRedirectURI(f.cfg.RedirectURI)
	if err != nil {
		setupErr := &SetupError{Op: "parse redirect uri", Err: err}
		return failedOutcome(kind, "Login configuration is invalid: "+err.Error(), setupErr)
	}

	listener := NewRedirectListener(port, path, f.opts.Page, f.log)
	if err := listener.Start(); err != nil {
		f.log.Errorw("Failed to start redirect listener", "port", port, "error", err)
		return failedOutcome(kind, fmt.Sprintf("Could not listen for the login redirect on port %d: %v", port, err), err)
	}
	defer listener.Stop()
	f.setState(CodeFlowListenerStarted)

	redirectURI := redirectURIWithPort(f.cfg.RedirectURI, listener.Port())
	authURL := f.AuthorizationURL(redirectURI, params)
	f.log.Infow("Opening browser for authorization", "clientID", f.cfg.ClientID, "redirectURI", redirectURI)
	f.opts.Status("A browser window has opened for login. If you do not see it, check your pop-up blocker or open the following URL manually: " + authURL)
	if err := f.opts.Browser.OpenURL(authURL); err != nil {
		f.log.Warnw("Failed to open browser", "error", err)
	}

	f.setState(CodeFlowAwaitingRedirect)
	callback, err := listener.WaitForCallback(ctx, f.cfg.Timeout)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			f.setState(CodeFlowTimedOut)
			f.log.Warnw("Authorization timed out", "timeout", f.cfg.Timeout)
			return timedOutOutcome(kind, "OAuth login timed out. Please complete the login in your browser, or check your network and try again.")
		}
		f.setState(CodeFlowCancelled)
		return cancelledOutcome(kind, "OAuth login was cancelled.")
	}

	if err := checkCallback(callback, params.State); err != nil {
		f.setState(CodeFlowErrorReceived)
		f.log.Warnw("Authorization redirect rejected", "error", err)
		return failedOutcome(kind, "Authorization was not granted: "+err.Error(), err)
	}
	f.setState(CodeFlowCodeReceived)

	f.setState(CodeFlowExchanging)
	token, err := exchangeToken(ctx, f.opts.Client, f.cfg.TokenURL, f.exchangeParams(callback.Code, redirectURI, params)...)
	if err != nil {
		if isCancellation(err) || ctx.Err() != nil {
			f.setState(CodeFlowCancelled)
			return cancelledOutcome(kind, "OAuth login was cancelled.")
		}
		f.setState(CodeFlowExchangeFailed)
		f.log.Errorw("Token exchange failed", "error", err)
		return failedOutcome(kind, "Token exchange failed: "+err.Error(), err)
	}
	f.setState(CodeFlowSuccess)
	f.log.Infow("Login successful", "instanceURL", token.InstanceURL)
	return successOutcome(kind, token, "Login successful.")
}

func (f *CodeFlow) newParams() (PKCEParams, error) {
	if f.usePKCE {
		return NewPKCEParams()
	}
	state, err := randomToken(16)
	if err != nil {
		return PKCEParams{}, err
	}
	return PKCEParams{State: state}, nil
}

func (f *CodeFlow) exchangeParams(code, redirectURI string, params PKCEParams) []FormParam {
	form := []FormParam{
		Param("grant_type", "authorization_code"),
		Param("code", code),
		Param("client_id", f.cfg.ClientID),
		Param("redirect_uri", redirectURI),
	}
	if f.usePKCE {
		form = append(form, Param("code_verifier", params.Verifier))
	}
	if f.cfg.confidential() {
		form = append(form, Param("client_secret", f.cfg.ClientSecret))
	}
	return form
}

func checkCallback(callback *CallbackResult, expectedState string) error {
	if callback.Error != "" {
		return &ProtocolError{Code: ErrorCode(callback.Error), Description: callback.ErrorDescription}
	}
	if callback.Code == "" {
		return &ProtocolError{Code: ErrorInvalidRequest, Description: "redirect carried no authorization code"}
	}
	if callback.State != expectedState {
		return &ProtocolError{Code: ErrorInvalidRequest, Description: "state mismatch in redirect"}
	}
	return nil
}
