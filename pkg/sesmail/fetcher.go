package sesmail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/dmitrymomot/sesdomain/pkg/converge"
)

// API is the subset of the SES identity API the fetcher depends on.
// *ses.Client satisfies it; tests substitute a fake.
type API interface {
	GetIdentityVerificationAttributes(ctx context.Context, params *ses.GetIdentityVerificationAttributesInput, optFns ...func(*ses.Options)) (*ses.GetIdentityVerificationAttributesOutput, error)
	GetIdentityDkimAttributes(ctx context.Context, params *ses.GetIdentityDkimAttributesInput, optFns ...func(*ses.Options)) (*ses.GetIdentityDkimAttributesOutput, error)
	SetActiveReceiptRuleSet(ctx context.Context, params *ses.SetActiveReceiptRuleSetInput, optFns ...func(*ses.Options)) (*ses.SetActiveReceiptRuleSetOutput, error)
}

// Config holds fetcher settings.
// Embed this in your app config for env parsing with caarlos0/env.
type Config struct {
	// DKIMTokenCount is the number of DKIM tokens the provider issues per
	// domain. The token set is all-or-nothing: the fetcher reports pending
	// until the full set is present. SES Easy DKIM issues three.
	DKIMTokenCount int `env:"SESMAIL_DKIM_TOKEN_COUNT" envDefault:"3"`
}

func (c *Config) applyDefaults() {
	if c.DKIMTokenCount <= 0 {
		c.DKIMTokenCount = 3
	}
}

// Fetcher reads domain verification state from SES. It implements both
// converge.TokenSource and converge.StatusSource.
type Fetcher struct {
	api API
	cfg Config
}

// New creates a Fetcher over the given SES API.
func New(api API, cfg Config) *Fetcher {
	cfg.applyDefaults()
	return &Fetcher{api: api, cfg: cfg}
}

// FetchTokens performs one provider round-trip per token kind and returns
// the verification token together with the full DKIM set. While SES is
// still generating either of them it returns converge.ErrTokensPending;
// this is the expected response for the first several calls after the
// identity is created. A missing identity is permanent.
func (f *Fetcher) FetchTokens(ctx context.Context, domain string) (converge.TokenSet, error) {
	out, err := f.api.GetIdentityVerificationAttributes(ctx, &ses.GetIdentityVerificationAttributesInput{
		Identities: []string{domain},
	})
	if err != nil {
		return converge.TokenSet{}, wrapSESError(err)
	}

	attrs, ok := out.VerificationAttributes[domain]
	if !ok {
		return converge.TokenSet{}, converge.Permanent(fmt.Errorf("%w: %s", ErrIdentityNotFound, domain))
	}
	verification := aws.ToString(attrs.VerificationToken)
	if verification == "" {
		return converge.TokenSet{}, converge.ErrTokensPending
	}

	dkimOut, err := f.api.GetIdentityDkimAttributes(ctx, &ses.GetIdentityDkimAttributesInput{
		Identities: []string{domain},
	})
	if err != nil {
		return converge.TokenSet{}, wrapSESError(err)
	}

	dkim, ok := dkimOut.DkimAttributes[domain]
	if !ok || len(dkim.DkimTokens) < f.cfg.DKIMTokenCount {
		return converge.TokenSet{}, converge.ErrTokensPending
	}

	return converge.TokenSet{
		Verification: verification,
		DKIM:         append([]string(nil), dkim.DkimTokens...),
	}, nil
}

// VerificationStatus maps the SES identity verification status onto the
// orchestrator's tri-state view. TemporaryFailure and NotStarted keep the
// run polling; only an explicit Failed is surfaced as such.
func (f *Fetcher) VerificationStatus(ctx context.Context, domain string) (converge.Status, error) {
	out, err := f.api.GetIdentityVerificationAttributes(ctx, &ses.GetIdentityVerificationAttributesInput{
		Identities: []string{domain},
	})
	if err != nil {
		return "", wrapSESError(err)
	}

	attrs, ok := out.VerificationAttributes[domain]
	if !ok {
		return "", converge.Permanent(fmt.Errorf("%w: %s", ErrIdentityNotFound, domain))
	}

	switch attrs.VerificationStatus {
	case types.VerificationStatusSuccess:
		return converge.StatusSuccess, nil
	case types.VerificationStatusFailed:
		return converge.StatusFailed, nil
	default:
		return converge.StatusPending, nil
	}
}

// ActivateRuleSet marks the named SES receipt rule set as active, routing
// inbound mail for verified domains into the ingestion pipeline. Meant to
// run once after verification; failures are safe to retry.
func (f *Fetcher) ActivateRuleSet(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyRuleSetName
	}
	if _, err := f.api.SetActiveReceiptRuleSet(ctx, &ses.SetActiveReceiptRuleSetInput{
		RuleSetName: aws.String(name),
	}); err != nil {
		return wrapSESError(err)
	}
	return nil
}

// Ensure Fetcher satisfies the orchestrator contracts.
var (
	_ converge.TokenSource  = (*Fetcher)(nil)
	_ converge.StatusSource = (*Fetcher)(nil)
)
