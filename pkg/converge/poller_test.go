package converge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sesdomain/pkg/converge"
	"github.com/dmitrymomot/sesdomain/pkg/dnsplan"
)

// fakeTokens returns scripted results fetch by fetch, repeating the last
// entry once the script is exhausted.
type fakeTokens struct {
	script []func() (converge.TokenSet, error)
	calls  int
}

func (f *fakeTokens) FetchTokens(_ context.Context, _ string) (converge.TokenSet, error) {
	i := f.calls
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	f.calls++
	return f.script[i]()
}

func pending() func() (converge.TokenSet, error) {
	return func() (converge.TokenSet, error) { return converge.TokenSet{}, converge.ErrTokensPending }
}

func ready(verification string, dkim ...string) func() (converge.TokenSet, error) {
	return func() (converge.TokenSet, error) {
		return converge.TokenSet{Verification: verification, DKIM: dkim}, nil
	}
}

type fakeStatus struct {
	// successAfter is the number of polls answered with pending before
	// the fake starts reporting success.
	successAfter int
	status       converge.Status
	err          error
	calls        int
}

func (f *fakeStatus) VerificationStatus(_ context.Context, _ string) (converge.Status, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.status != "" {
		return f.status, nil
	}
	if f.calls > f.successAfter {
		return converge.StatusSuccess, nil
	}
	return converge.StatusPending, nil
}

type fakeApplier struct {
	applied int
	err     error
	calls   int
	gotPlan []dnsplan.Record
}

func (f *fakeApplier) Apply(_ context.Context, records []dnsplan.Record) (int, error) {
	f.calls++
	f.gotPlan = records
	if f.err != nil {
		return f.applied, f.err
	}
	return len(records), nil
}

type fakeProber struct {
	matchAfter int
	err        error
	calls      int
}

func (f *fakeProber) Probe(_ context.Context, _ []dnsplan.Record) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.calls > f.matchAfter, nil
}

// fastCfg keeps poll waits negligible so tests drive many polls in real time.
func fastCfg() converge.Config {
	return converge.Config{
		TokenWaitBudget:   time.Second,
		PropagationBudget: time.Second,
		PollInterval:      time.Millisecond,
	}
}

func TestRunVerified(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokens{script: []func() (converge.TokenSet, error){
		pending(), pending(), pending(), pending(), pending(),
		ready("abc123", "d1", "d2", "d3"),
	}}
	status := &fakeStatus{successAfter: 2}
	applier := &fakeApplier{}
	prober := &fakeProber{}

	p := converge.New(tokens, status, applier, prober, fastCfg(), nil)
	res := p.Run(context.Background(), "example.com")

	require.Equal(t, converge.StateVerified, res.State)
	require.True(t, res.Verified())
	require.NoError(t, res.Err)
	require.Equal(t, 6, res.TokenPolls)
	require.Len(t, res.Plan, 4)
	require.Equal(t, dnsplan.TypeTXT, res.Plan[0].Type)
	require.Equal(t, 4, res.Applied)
	require.Equal(t, 1, applier.calls, "records must be applied exactly once")
	require.Equal(t, res.Plan, applier.gotPlan)
	require.NotEmpty(t, res.RunID)
}

func TestRunTokenWaitTimesOut(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokens{script: []func() (converge.TokenSet, error){pending()}}
	applier := &fakeApplier{}
	cfg := fastCfg()
	cfg.TokenWaitBudget = 20 * time.Millisecond

	p := converge.New(tokens, &fakeStatus{}, applier, &fakeProber{}, cfg, nil)
	res := p.Run(context.Background(), "example.com")

	require.Equal(t, converge.StateTimedOut, res.State)
	require.ErrorIs(t, res.Err, converge.ErrBudgetExceeded)
	require.Zero(t, applier.calls, "no records may be applied without tokens")
	require.Greater(t, res.TokenPolls, 1)
}

func TestRunPermanentFetchError(t *testing.T) {
	t.Parallel()

	boom := converge.Permanent(errors.New("identity not found"))
	tokens := &fakeTokens{script: []func() (converge.TokenSet, error){
		func() (converge.TokenSet, error) { return converge.TokenSet{}, boom },
	}}
	applier := &fakeApplier{}

	p := converge.New(tokens, &fakeStatus{}, applier, &fakeProber{}, fastCfg(), nil)
	res := p.Run(context.Background(), "example.com")

	require.Equal(t, converge.StateFailed, res.State)
	require.True(t, converge.IsPermanent(res.Err))
	require.Zero(t, applier.calls, "applier must never run after a permanent fetch error")
	require.Equal(t, 1, res.TokenPolls)
}

func TestRunTransientFetchErrorsRetried(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokens{script: []func() (converge.TokenSet, error){
		func() (converge.TokenSet, error) { return converge.TokenSet{}, errors.New("throttled") },
		func() (converge.TokenSet, error) { return converge.TokenSet{}, errors.New("timeout") },
		ready("tok", "d1", "d2"),
	}}

	p := converge.New(tokens, &fakeStatus{}, &fakeApplier{}, &fakeProber{}, fastCfg(), nil)
	res := p.Run(context.Background(), "example.com")

	require.Equal(t, converge.StateVerified, res.State)
	require.Equal(t, 3, res.TokenPolls)
	require.Len(t, res.Plan, 3)
}

func TestRunApplierFailureIsTerminal(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokens{script: []func() (converge.TokenSet, error){ready("tok", "d1", "d2", "d3")}}
	applier := &fakeApplier{applied: 1, err: errors.New("zone write refused")}
	status := &fakeStatus{}

	p := converge.New(tokens, status, applier, &fakeProber{}, fastCfg(), nil)
	res := p.Run(context.Background(), "example.com")

	require.Equal(t, converge.StateFailed, res.State)
	require.EqualError(t, res.Err, "zone write refused")
	require.Equal(t, 1, res.Applied, "partial progress must be reported")
	require.Zero(t, status.calls, "status polling never starts after an apply failure")
}

func TestRunProviderVerificationFailed(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokens{script: []func() (converge.TokenSet, error){ready("tok", "d1", "d2")}}
	status := &fakeStatus{status: converge.StatusFailed}

	p := converge.New(tokens, status, &fakeApplier{}, &fakeProber{}, fastCfg(), nil)
	res := p.Run(context.Background(), "example.com")

	require.Equal(t, converge.StateFailed, res.State)
	require.ErrorIs(t, res.Err, converge.ErrVerificationFailed)
}

func TestRunPropagationTimesOut(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokens{script: []func() (converge.TokenSet, error){ready("tok", "d1", "d2")}}
	// Provider verifies but DNS read-back never matches.
	status := &fakeStatus{status: converge.StatusSuccess}
	prober := &fakeProber{matchAfter: 1 << 30}
	cfg := fastCfg()
	cfg.PropagationBudget = 20 * time.Millisecond

	p := converge.New(tokens, status, &fakeApplier{}, prober, cfg, nil)
	res := p.Run(context.Background(), "example.com")

	require.Equal(t, converge.StateTimedOut, res.State)
	require.ErrorIs(t, res.Err, converge.ErrBudgetExceeded)
	require.Greater(t, prober.calls, 1)
}

func TestRunTransientStatusAndProbeErrorsRetried(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokens{script: []func() (converge.TokenSet, error){ready("tok", "d1", "d2")}}
	status := &fakeStatus{successAfter: 1}
	prober := &fakeProber{matchAfter: 1}

	p := converge.New(tokens, status, &fakeApplier{}, prober, fastCfg(), nil)
	res := p.Run(context.Background(), "example.com")

	require.Equal(t, converge.StateVerified, res.State)
	require.Greater(t, res.StatusPolls, 1)
}

func TestRunContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tokens := &fakeTokens{script: []func() (converge.TokenSet, error){pending()}}

	p := converge.New(tokens, &fakeStatus{}, &fakeApplier{}, &fakeProber{}, fastCfg(), nil)
	res := p.Run(ctx, "example.com")

	require.Equal(t, converge.StateFailed, res.State)
	require.ErrorIs(t, res.Err, context.Canceled)
}

func TestStateTerminal(t *testing.T) {
	t.Parallel()

	require.True(t, converge.StateVerified.Terminal())
	require.True(t, converge.StateTimedOut.Terminal())
	require.True(t, converge.StateFailed.Terminal())
	require.False(t, converge.StateInitiated.Terminal())
	require.False(t, converge.StateAwaitingTokens.Terminal())
	require.False(t, converge.StateAwaitingPropagation.Terminal())
}

func TestPermanentError(t *testing.T) {
	t.Parallel()

	base := errors.New("access denied")
	err := converge.Permanent(base)
	require.True(t, converge.IsPermanent(err))
	require.ErrorIs(t, err, base)
	require.False(t, converge.IsPermanent(base))
	require.NoError(t, converge.Permanent(nil))
}

func TestResultSummary(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokens{script: []func() (converge.TokenSet, error){ready("abc", "d1")}}
	p := converge.New(tokens, &fakeStatus{}, &fakeApplier{}, &fakeProber{}, fastCfg(), nil)
	res := p.Run(context.Background(), "example.com")

	summary := res.Summary()
	require.Contains(t, summary, "example.com")
	require.Contains(t, summary, "verified")
	require.Contains(t, summary, "_amazonses.example.com.")
}
