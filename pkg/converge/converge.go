package converge

import (
	"context"
	"time"

	"github.com/dmitrymomot/sesdomain/pkg/dnsplan"
)

// TokenSet holds everything the mail provider must generate before DNS
// records can be planned: the ownership verification token and the full
// DKIM signing token set.
type TokenSet struct {
	Verification string
	DKIM         []string
}

// Status is the mail provider's view of domain verification.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// TokenSource fetches verification tokens from the mail provider.
// One call is one provider round-trip; it never blocks waiting for tokens.
// While the provider is still generating them it returns ErrTokensPending.
// Errors wrapped with Permanent abort the run; anything else is treated as
// transient and retried within the token-wait budget.
type TokenSource interface {
	FetchTokens(ctx context.Context, domain string) (TokenSet, error)
}

// StatusSource reports the mail provider's verification status for a domain.
type StatusSource interface {
	VerificationStatus(ctx context.Context, domain string) (Status, error)
}

// RecordApplier upserts planned records into the DNS zone. It returns the
// number of records actually mutated; re-applying an identical plan reports
// zero. Any error is terminal for the run (a rerun re-applies idempotently).
type RecordApplier interface {
	Apply(ctx context.Context, records []dnsplan.Record) (int, error)
}

// RecordProber reads planned records back from DNS and reports whether all
// of them have propagated with the expected values. A false result without
// an error means "not yet", which is retried within the propagation budget.
type RecordProber interface {
	Probe(ctx context.Context, records []dnsplan.Record) (bool, error)
}

// Config bounds the orchestrator's two waiting states. The budgets are
// independent because they bound different external systems: token
// generation on the mail-provider side and DNS/verification convergence.
type Config struct {
	// TokenWaitBudget caps how long the run waits for the provider to
	// generate verification and DKIM tokens.
	TokenWaitBudget time.Duration `env:"CONVERGE_TOKEN_WAIT_BUDGET" envDefault:"3m"`

	// PropagationBudget caps how long the run waits for DNS propagation
	// and the provider's verification status after records are applied.
	PropagationBudget time.Duration `env:"CONVERGE_PROPAGATION_BUDGET" envDefault:"5m"`

	// PollInterval is the fixed backoff between polls in both waiting states.
	PollInterval time.Duration `env:"CONVERGE_POLL_INTERVAL" envDefault:"15s"`
}

const (
	DefaultTokenWaitBudget   = 3 * time.Minute
	DefaultPropagationBudget = 5 * time.Minute
	DefaultPollInterval      = 15 * time.Second
)

func (c *Config) applyDefaults() {
	if c.TokenWaitBudget <= 0 {
		c.TokenWaitBudget = DefaultTokenWaitBudget
	}
	if c.PropagationBudget <= 0 {
		c.PropagationBudget = DefaultPropagationBudget
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}
