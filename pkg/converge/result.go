package converge

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrymomot/sesdomain/pkg/dnsplan"
)

// Result is the terminal outcome of a single convergence run. The state
// machine lives and dies with the run; nothing is persisted between runs.
type Result struct {
	RunID  string
	Domain string
	State  State

	// Tokens and Plan are populated once the provider delivered them.
	Tokens TokenSet
	Plan   []dnsplan.Record

	// Applied is the number of DNS records actually mutated. Zero on a
	// rerun over an already-correct zone.
	Applied int

	// Err holds the terminal error for StateTimedOut and StateFailed.
	Err error

	StartedAt  time.Time
	FinishedAt time.Time

	// Poll counters, for the summary and for inspecting fake-driven tests.
	TokenPolls  int
	StatusPolls int
}

// Verified reports whether the run converged.
func (r *Result) Verified() bool {
	return r.State == StateVerified
}

// Summary renders a human-readable report of the final run state.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "domain %s: %s (run %s, %s)\n",
		r.Domain, r.State, r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

	if len(r.Plan) > 0 {
		fmt.Fprintf(&b, "planned %d records, %d mutated:\n", len(r.Plan), r.Applied)
		for _, rec := range r.Plan {
			fmt.Fprintf(&b, "  %-5s %s -> %s (ttl %d)\n", rec.Type, rec.Name, rec.Value, rec.TTL)
		}
	}
	fmt.Fprintf(&b, "polls: %d token, %d status\n", r.TokenPolls, r.StatusPolls)

	switch r.State {
	case StateVerified:
		b.WriteString("mail provider and DNS both report the domain as verified\n")
	case StateTimedOut:
		fmt.Fprintf(&b, "gave up waiting: %v (rerun to resume, record application is idempotent)\n", r.Err)
	case StateFailed:
		fmt.Fprintf(&b, "failed: %v\n", r.Err)
	}
	return b.String()
}
