package auth

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/telekom/dlctl/pkg/metrics"
)

// Capability is the probe verdict for one flow. Err is set when the probe
// could not reach the server; such flows are reported as not enabled.
type Capability struct {
	Flow    FlowKind  `json:"flow"`
	Enabled bool      `json:"enabled"`
	Code    ErrorCode `json:"code,omitempty"`
	Err     error     `json:"-"`
}

func (c Capability) ProbeFailed() bool {
	return c.Err != nil
}

type Capabilities []Capability

func (c Capabilities) Enabled(flow FlowKind) bool {
	for _, capability := range c {
		if capability.Flow == flow {
			return capability.Enabled
		}
	}
	return false
}

// EnabledFlows lists enabled flows in probe order.
func (c Capabilities) EnabledFlows() []FlowKind {
	var flows []FlowKind
	for _, capability := range c {
		if capability.Enabled {
			flows = append(flows, capability.Flow)
		}
	}
	return flows
}

// CapabilityProbe sends deliberately invalid requests to the token endpoint
// and classifies the OAuth error to learn which flows the client may use.
type CapabilityProbe struct {
	cfg       FlowConfig
	newClient TokenClientFactory
	log       *zap.SugaredLogger
}

func NewCapabilityProbe(cfg FlowConfig, newClient TokenClientFactory, log *zap.SugaredLogger) *CapabilityProbe {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &CapabilityProbe{cfg: cfg.WithDefaults(), newClient: newClient, log: log}
}

func (p *CapabilityProbe) ProbePKCE(ctx context.Context) Capability {
	return p.probe(ctx, FlowPKCE, p.cfg.TokenURL,
		Param("grant_type", "authorization_code"),
		Param("client_id", p.cfg.ClientID),
		Param("code", "dummy"),
		Param("redirect_uri", p.cfg.RedirectURI),
		Param("code_verifier", "dummyverifier"),
		Param("code_challenge", "dummychallenge"),
		Param("code_challenge_method", "S256"),
	)
}

func (p *CapabilityProbe) ProbeServer(ctx context.Context) Capability {
	return p.probe(ctx, FlowServer, p.cfg.TokenURL,
		Param("grant_type", "authorization_code"),
		Param("client_id", p.cfg.ClientID),
		Param("code", "dummy"),
		Param("redirect_uri", p.cfg.RedirectURI),
	)
}

func (p *CapabilityProbe) ProbeDevice(ctx context.Context) Capability {
	return p.probe(ctx, FlowDevice, p.cfg.DeviceAuthorizationURL,
		Param("response_type", "device_code"),
		Param("client_id", p.cfg.ClientID),
		Param("scope", p.cfg.Scope),
	)
}

// ProbeAll runs the three probes concurrently. The result is in PKCE,
// server, device order.
func (p *CapabilityProbe) ProbeAll(ctx context.Context) Capabilities {
	probes := []func(context.Context) Capability{p.ProbePKCE, p.ProbeServer, p.ProbeDevice}
	results := make(Capabilities, len(probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, probe := range probes {
		g.Go(func() error {
			results[i] = probe(gctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *CapabilityProbe) probe(ctx context.Context, flow FlowKind, endpoint string, params ...FormParam) Capability {
	log := p.log.With("flow", string(flow), "endpoint", endpoint)
	client := p.newClient(endpoint, params...)
	if err := client.Post(ctx); err != nil {
		log.Warnw("Capability probe failed, treating flow as disabled", "error", err)
		metrics.ProbeResults.WithLabelValues(string(flow), "error").Inc()
		return Capability{Flow: flow, Enabled: false, Err: err}
	}
	body, err := client.Body()
	if err != nil {
		log.Warnw("Capability probe response unreadable, treating flow as disabled", "error", err)
		metrics.ProbeResults.WithLabelValues(string(flow), "error").Inc()
		return Capability{Flow: flow, Enabled: false, Err: err}
	}
	code, desc := oauthErrorFromBody(body)
	enabled := !flowDisabled(code, desc)
	result := "enabled"
	if !enabled {
		result = "disabled"
	}
	metrics.ProbeResults.WithLabelValues(string(flow), result).Inc()
	log.Debugw("Capability probe classified", "status", client.StatusCode(), "code", code, "enabled", enabled)
	return Capability{Flow: flow, Enabled: enabled, Code: code}
}
