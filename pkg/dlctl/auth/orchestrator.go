package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/telekom/dlctl/pkg/metrics"
)

// Orchestrator picks a flow for a login attempt, runs it, and falls back to
// the next enabled flow when a run fails on the server side.
type Orchestrator struct {
	opts FlowOptions
}

func NewOrchestrator(opts FlowOptions) *Orchestrator {
	return &Orchestrator{opts: opts.withDefaults()}
}

// Authenticate runs one login attempt to a single terminal outcome. status
// receives progress messages and the terminal message on a separate
// goroutine; queued messages are flushed before Authenticate returns unless
// the callback is stuck.
func (o *Orchestrator) Authenticate(ctx context.Context, cfg FlowConfig, status StatusFunc) Outcome {
	log := o.opts.Logger.With("attempt", uuid.NewString())
	notifier := newStatusNotifier(status, log)
	defer notifier.close()

	finish := func(outcome Outcome) Outcome {
		notifier.send(outcome.Message)
		log.Infow("Login attempt finished", "flow", outcome.Flow, "outcome", outcome.Kind)
		return outcome
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return finish(failedOutcome(cfg.Flow, "Login configuration is invalid: "+err.Error(), err))
	}

	opts := o.opts
	opts.Logger = log
	opts.Status = notifier.send

	pinned := cfg.Flow != FlowAuto
	var candidates []FlowKind
	if pinned {
		log.Infow("Using configured flow", "flow", cfg.Flow)
		candidates = []FlowKind{cfg.Flow}
	} else {
		notifier.send("Checking which login methods are enabled for this client...")
		capabilities := NewCapabilityProbe(cfg, opts.Client, log).ProbeAll(ctx)
		for _, c := range capabilities {
			log.Infow("Flow capability", "flow", c.Flow, "enabled", c.Enabled, "code", c.Code, "probeFailed", c.ProbeFailed())
		}
		candidates = capabilities.EnabledFlows()
		if ctx.Err() != nil {
			return finish(cancelledOutcome(FlowAuto, "OAuth login was cancelled."))
		}
		if len(candidates) == 0 {
			msg := ErrNoFlowEnabled.Error()
			msg = strings.ToUpper(msg[:1]) + msg[1:] + "."
			return finish(failedOutcome(FlowAuto, msg, ErrNoFlowEnabled))
		}
	}

	var outcome Outcome
	for i, flow := range candidates {
		outcome = o.runFlow(ctx, flow, cfg, opts)
		if outcome.Kind != OutcomeFailed || pinned || !cfg.Fallback {
			break
		}
		if isSetupError(outcome.Err) || !fallbackAllowed(outcome.Err) || i == len(candidates)-1 {
			break
		}
		next := candidates[i+1]
		metrics.LoginFallbacks.WithLabelValues(string(flow), string(next)).Inc()
		log.Warnw("Flow failed, falling back", "flow", flow, "next", next, "error", outcome.Err)
		notifier.send(fmt.Sprintf("%s Trying %s login instead.", outcome.Message, flowLabel(next)))
	}
	return finish(outcome)
}

func (o *Orchestrator) runFlow(ctx context.Context, flow FlowKind, cfg FlowConfig, opts FlowOptions) Outcome {
	metrics.LoginAttempts.WithLabelValues(string(flow)).Inc()
	started := time.Now()
	var outcome Outcome
	switch flow {
	case FlowPKCE:
		outcome = NewPKCEFlow(cfg, opts).Run(ctx)
	case FlowServer:
		outcome = NewServerFlow(cfg, opts).Run(ctx)
	case FlowDevice:
		outcome = NewDeviceFlow(cfg, opts).Run(ctx)
	default:
		err := &SetupError{Op: "select flow", Err: fmt.Errorf("unsupported flow: %s", flow)}
		outcome = failedOutcome(flow, err.Error(), err)
	}
	metrics.LoginDuration.WithLabelValues(string(flow)).Observe(time.Since(started).Seconds())
	metrics.LoginOutcomes.WithLabelValues(string(flow), string(outcome.Kind)).Inc()
	return outcome
}

func flowLabel(flow FlowKind) string {
	switch flow {
	case FlowPKCE:
		return "browser (PKCE)"
	case FlowServer:
		return "browser"
	case FlowDevice:
		return "device code"
	default:
		return string(flow)
	}
}
