// Package converge orchestrates domain onboarding across two independently
// operated external systems: the mail provider that generates verification
// and DKIM tokens asynchronously, and the DNS provider that must publish
// the matching records.
//
// A run is a sequential state machine:
//
//	initiated -> awaiting_tokens -> records_planned -> records_applied
//	          -> awaiting_propagation -> verified | timed_out | failed
//
// The two waiting states poll at a fixed interval under separate budgets,
// because token generation and DNS/verification convergence have different
// latency characteristics. Nothing is persisted between runs: a rerun
// starts from scratch and relies on idempotent record application to
// converge safely.
//
// External systems sit behind four narrow interfaces (TokenSource,
// StatusSource, RecordApplier, RecordProber), so tests substitute fakes
// that simulate pending responses and injected latency.
package converge
