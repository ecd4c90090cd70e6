package converge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sesdomain/pkg/dnsplan"
)

// Poller drives a domain from freshly-created mail identity to verified:
// it polls the token source until tokens exist, plans and applies the DNS
// records exactly once, then polls verification status and DNS read-back
// until both converge or a budget runs out.
type Poller struct {
	tokens  TokenSource
	status  StatusSource
	applier RecordApplier
	prober  RecordProber
	cfg     Config
	log     *slog.Logger
}

// New creates a Poller. Pass a nil logger to discard logs.
func New(tokens TokenSource, status StatusSource, applier RecordApplier, prober RecordProber, cfg Config, log *slog.Logger) *Poller {
	cfg.applyDefaults()
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Poller{
		tokens:  tokens,
		status:  status,
		applier: applier,
		prober:  prober,
		cfg:     cfg,
		log:     log,
	}
}

// Run executes one convergence run for domain. The returned Result is always
// non-nil and carries a terminal state; Result.Err is set for StateTimedOut
// and StateFailed. The run is strictly sequential and suspends only at the
// backoff waits inside the two polling states.
func (p *Poller) Run(ctx context.Context, domain string) *Result {
	res := &Result{
		RunID:     uuid.NewString(),
		Domain:    dnsplan.Normalize(domain),
		State:     StateInitiated,
		StartedAt: time.Now(),
	}
	log := p.log.With(
		slog.String("run_id", res.RunID),
		slog.String("domain", res.Domain),
	)
	log.Info("convergence run started",
		slog.Duration("token_wait_budget", p.cfg.TokenWaitBudget),
		slog.Duration("propagation_budget", p.cfg.PropagationBudget),
		slog.Duration("poll_interval", p.cfg.PollInterval),
	)
	defer func() {
		res.FinishedAt = time.Now()
		log.Info("convergence run finished",
			slog.String("state", string(res.State)),
			slog.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
		)
	}()

	if !p.awaitTokens(ctx, log, res) {
		return res
	}

	p.transition(log, res, StateRecordsPlanned)
	res.Plan = dnsplan.Plan(res.Domain, res.Tokens.Verification, res.Tokens.DKIM)
	log.Info("records planned", slog.Int("count", len(res.Plan)))

	applied, err := p.applier.Apply(ctx, res.Plan)
	res.Applied = applied
	if err != nil {
		return p.fail(log, res, err)
	}
	p.transition(log, res, StateRecordsApplied)
	log.Info("records applied", slog.Int("mutated", applied), slog.Int("planned", len(res.Plan)))

	p.awaitPropagation(ctx, log, res)
	return res
}

// awaitTokens polls the token source until the verification token and the
// full DKIM set are simultaneously available. Returns false when the run
// reached a terminal state instead.
func (p *Poller) awaitTokens(ctx context.Context, log *slog.Logger, res *Result) bool {
	p.transition(log, res, StateAwaitingTokens)
	deadline := res.StartedAt.Add(p.cfg.TokenWaitBudget)

	for {
		tokens, err := p.tokens.FetchTokens(ctx, res.Domain)
		res.TokenPolls++
		switch {
		case err == nil:
			res.Tokens = tokens
			log.Info("tokens ready",
				slog.Int("dkim_tokens", len(tokens.DKIM)),
				slog.Int("polls", res.TokenPolls),
			)
			return true
		case errors.Is(err, ErrTokensPending):
			log.Debug("tokens pending", slog.Int("polls", res.TokenPolls))
		case IsPermanent(err):
			p.fail(log, res, err)
			return false
		default:
			log.Warn("transient token fetch error", slog.String("error", err.Error()))
		}

		if !p.wait(ctx, log, res, deadline, "token wait") {
			return false
		}
	}
}

// awaitPropagation polls the provider's verification status and the DNS
// read-back until both report success, the budget runs out, or the provider
// fails the verification outright.
func (p *Poller) awaitPropagation(ctx context.Context, log *slog.Logger, res *Result) {
	p.transition(log, res, StateAwaitingPropagation)
	deadline := time.Now().Add(p.cfg.PropagationBudget)

	for {
		status, err := p.status.VerificationStatus(ctx, res.Domain)
		res.StatusPolls++
		switch {
		case err == nil && status == StatusFailed:
			p.fail(log, res, Permanent(ErrVerificationFailed))
			return
		case err != nil && IsPermanent(err):
			p.fail(log, res, err)
			return
		case err != nil:
			log.Warn("transient status poll error", slog.String("error", err.Error()))
			status = StatusPending
		}

		propagated := false
		if status == StatusSuccess {
			propagated, err = p.prober.Probe(ctx, res.Plan)
			if err != nil {
				log.Warn("transient dns read-back error", slog.String("error", err.Error()))
			}
		}

		if status == StatusSuccess && propagated {
			p.transition(log, res, StateVerified)
			return
		}
		log.Debug("not yet converged",
			slog.String("provider_status", string(status)),
			slog.Bool("dns_propagated", propagated),
			slog.Int("polls", res.StatusPolls),
		)

		if !p.wait(ctx, log, res, deadline, "propagation wait") {
			return
		}
	}
}

// wait sleeps one poll interval, unless the state's deadline has already
// passed (TimedOut) or the context was cancelled (Failed). Returns false
// when the run reached a terminal state.
func (p *Poller) wait(ctx context.Context, log *slog.Logger, res *Result, deadline time.Time, budget string) bool {
	if !time.Now().Before(deadline) {
		res.Err = fmt.Errorf("%w: %s", ErrBudgetExceeded, budget)
		res.State = StateTimedOut
		log.Error("budget exceeded", slog.String("budget", budget))
		return false
	}
	select {
	case <-ctx.Done():
		p.fail(log, res, ctx.Err())
		return false
	case <-time.After(p.cfg.PollInterval):
		return true
	}
}

func (p *Poller) transition(log *slog.Logger, res *Result, to State) {
	log.Info("state transition",
		slog.String("from", string(res.State)),
		slog.String("to", string(to)),
	)
	res.State = to
}

func (p *Poller) fail(log *slog.Logger, res *Result, err error) *Result {
	res.State = StateFailed
	res.Err = err
	log.Error("convergence run failed", slog.String("error", err.Error()))
	return res
}
