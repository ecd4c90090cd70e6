// Package sesmail adapts the SES identity API to the orchestrator's
// TokenSource and StatusSource contracts.
//
// SES generates the domain verification token and the DKIM token set
// asynchronously after an identity is created, which can take several
// minutes. A single FetchTokens call is one round-trip and never waits:
// it returns converge.ErrTokensPending until both the verification token
// and the full DKIM set exist, so the orchestrator owns all polling.
//
// Errors are classified the way the orchestrator needs them: a missing
// identity or an authentication failure is permanent, throttling and
// network failures are transient and retried within the caller's budget.
package sesmail
