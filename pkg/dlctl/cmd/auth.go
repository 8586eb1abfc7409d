package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/dlctl/pkg/dlctl/auth"
	"github.com/telekom/dlctl/pkg/dlctl/config"
	"github.com/telekom/dlctl/pkg/dlctl/output"
	"github.com/telekom/dlctl/pkg/metrics"
	"github.com/telekom/dlctl/pkg/system"
)

func NewAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Log in to the org with OAuth",
	}
	cmd.AddCommand(
		newAuthLoginCommand(),
		newAuthStatusCommand(),
		newAuthLogoutCommand(),
		newAuthProbeCommand(),
	)
	return cmd
}

type loginFlags struct {
	flow            string
	timeoutSeconds  int
	port            int
	metricsTextfile string
	noSave          bool
	keepLoginURL    bool
}

func newAuthLoginCommand() *cobra.Command {
	var flags loginFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with the PKCE, browser or device flow",
		Long: "Log in with the first OAuth flow the connected app allows, in the order PKCE, " +
			"browser (authorization code) and device code. Pin a flow with --flow.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			profile, flowCfg, httpClient, err := rt.resolveLogin(ctx, flags)
			if err != nil {
				return err
			}
			orchestrator := auth.NewOrchestrator(auth.FlowOptions{
				Client:  auth.NewTokenClientFactory(httpClient),
				Browser: rt.Browser(),
				Logger:  rt.Logger(),
			})
			outcome := orchestrator.Authenticate(ctx, flowCfg, func(msg string) {
				_, _ = fmt.Fprintln(rt.ErrWriter(), msg)
			})
			if err := metrics.WriteTextfile(flags.metricsTextfile); err != nil {
				rt.Logger().Warnw("Failed to write metrics", "path", flags.metricsTextfile, "error", err)
			}
			if !outcome.Succeeded() {
				return fmt.Errorf("login %s: %w", outcome.Kind, outcomeError(outcome))
			}

			token := *outcome.Token
			if !flags.noSave {
				if err := rt.saveLogin(profile, token, !flags.keepLoginURL); err != nil {
					return err
				}
			}
			format, err := rt.OutputFormat()
			if err != nil {
				return err
			}
			status := tokenStatus(profile.Name, token, true)
			if format != output.FormatTable {
				return output.WriteObject(rt.Writer(), format, status)
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Authenticated with profile %s using the %s flow.\n", profile.Name, outcome.Flow)
			if token.InstanceURL != "" {
				_, _ = fmt.Fprintf(rt.Writer(), "Instance: %s\n", token.InstanceURL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.flow, "flow", "", "Flow to use: auto, pkce, server, device")
	cmd.Flags().IntVar(&flags.timeoutSeconds, "timeout", 0, "Seconds to wait for the browser or device approval")
	cmd.Flags().IntVar(&flags.port, "port", 0, "Loopback port for the redirect listener")
	cmd.Flags().StringVar(&flags.metricsTextfile, "metrics-textfile", "", "Write login metrics to this file in Prometheus text format")
	cmd.Flags().BoolVar(&flags.noSave, "no-save", false, "Do not store the token")
	cmd.Flags().BoolVar(&flags.keepLoginURL, "keep-login-url", false, "Do not switch the profile login URL to the returned instance URL")
	return cmd
}

func outcomeError(outcome auth.Outcome) error {
	if outcome.Err != nil {
		return outcome.Err
	}
	return errors.New(outcome.Message)
}

func (rt *runtimeState) resolveLogin(ctx context.Context, flags loginFlags) (*config.Profile, auth.FlowConfig, *http.Client, error) {
	profile, err := rt.ResolveProfile()
	if err != nil {
		return nil, auth.FlowConfig{}, nil, err
	}
	if err := profile.Validate(); err != nil {
		return nil, auth.FlowConfig{}, nil, err
	}
	secret, err := auth.ResolveClientSecret(profile.ClientSecret, profile.ClientSecretEnv, profile.ClientSecretFile)
	if err != nil {
		return nil, auth.FlowConfig{}, nil, err
	}
	httpClient, err := auth.NewHTTPClient(profile.CAFile, profile.InsecureSkipTLS)
	if err != nil {
		return nil, auth.FlowConfig{}, nil, err
	}
	var discovered *auth.Endpoints
	if profile.NeedsDiscovery() {
		discovered, err = auth.DiscoverEndpoints(ctx, httpClient, profile.Issuer)
		if err != nil {
			return nil, auth.FlowConfig{}, nil, err
		}
	}
	flowCfg, err := profile.FlowConfig(secret, discovered)
	if err != nil {
		return nil, auth.FlowConfig{}, nil, err
	}

	flow := flags.flow
	if flow == "" {
		flow = rt.flowOverride
	}
	if flow != "" {
		kind, err := auth.ParseFlowKind(flow)
		if err != nil {
			return nil, auth.FlowConfig{}, nil, err
		}
		flowCfg.Flow = kind
	}
	if flags.timeoutSeconds > 0 {
		flowCfg.Timeout = time.Duration(flags.timeoutSeconds) * time.Second
	}
	if flags.port > 0 {
		path := profile.RedirectPath
		if path == "" {
			path = auth.DefaultRedirectPath
		}
		flowCfg.RedirectURI = fmt.Sprintf("http://localhost:%d%s", flags.port, path)
	}
	return profile, flowCfg, httpClient, nil
}

func (rt *runtimeState) saveLogin(profile *config.Profile, token auth.TokenResult, useInstanceURL bool) error {
	store, err := rt.TokenStore()
	if err != nil {
		return err
	}
	if err := store.Save(profile.Name, token); err != nil {
		return err
	}
	profile.LastFlow = string(token.Flow)
	if useInstanceURL && token.InstanceURL != "" && profile.LoginURL != "" && profile.LoginURL != token.InstanceURL {
		rt.Logger().Infow("Switching profile login URL to instance", "profile", profile.Name, "instanceURL", token.InstanceURL)
		profile.LoginURL = token.InstanceURL
	}
	return config.Save(rt.configPathValue(), rt.cfg)
}

func tokenStatus(profile string, token auth.TokenResult, authenticated bool) output.TokenStatus {
	return output.TokenStatus{
		Profile:       profile,
		Authenticated: authenticated,
		Flow:          string(token.Flow),
		InstanceURL:   token.InstanceURL,
		AccessToken:   system.SafeToken(token.AccessToken),
		HasRefresh:    token.RefreshToken != "",
		IssuedAt:      token.IssuedAt,
		Scope:         token.Scope,
	}
}

func newAuthStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored login of the profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			profile, err := rt.ResolveProfile()
			if err != nil {
				return err
			}
			store, err := rt.TokenStore()
			if err != nil {
				return err
			}
			token, ok, err := store.Get(profile.Name)
			if err != nil {
				return err
			}
			format, err := rt.OutputFormat()
			if err != nil {
				return err
			}
			status := tokenStatus(profile.Name, token, ok)
			if format != output.FormatTable {
				return output.WriteObject(rt.Writer(), format, status)
			}
			if !ok {
				_, _ = fmt.Fprintln(rt.Writer(), "Not authenticated")
				return nil
			}
			output.WriteTokenStatusTable(rt.Writer(), []output.TokenStatus{status})
			return nil
		},
	}
}

func newAuthLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			profile, err := rt.ResolveProfile()
			if err != nil {
				return err
			}
			store, err := rt.TokenStore()
			if err != nil {
				return err
			}
			if err := store.Delete(profile.Name); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), "Logged out")
			return nil
		},
	}
}

type probeView struct {
	Flow    string `json:"flow" yaml:"flow"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Code    string `json:"code,omitempty" yaml:"code,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newAuthProbeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check which OAuth flows the connected app allows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			_, flowCfg, httpClient, err := rt.resolveLogin(cmd.Context(), loginFlags{})
			if err != nil {
				return err
			}
			probe := auth.NewCapabilityProbe(flowCfg, auth.NewTokenClientFactory(httpClient), rt.Logger())
			caps := probe.ProbeAll(cmd.Context())

			format, err := rt.OutputFormat()
			if err != nil {
				return err
			}
			if format == output.FormatTable {
				output.WriteCapabilityTable(rt.Writer(), caps)
				return nil
			}
			views := make([]probeView, 0, len(caps))
			for _, c := range caps {
				view := probeView{Flow: string(c.Flow), Enabled: c.Enabled, Code: string(c.Code)}
				if c.Err != nil {
					view.Error = c.Err.Error()
				}
				views = append(views, view)
			}
			return output.WriteObject(rt.Writer(), format, views)
		},
	}
}
