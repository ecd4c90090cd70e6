// Package dnsprobe confirms DNS propagation by querying a real resolver.
//
// The zone writer can report that records exist at the DNS provider, but
// the mail provider verifies a domain through ordinary DNS resolution. The
// prober closes that gap: it queries each planned record over the wire and
// compares values, so the orchestrator only declares convergence once the
// records are actually resolvable. Missing records and stale values are a
// "not yet" result, not an error.
package dnsprobe
