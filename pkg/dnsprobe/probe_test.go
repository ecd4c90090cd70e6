package dnsprobe_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sesdomain/pkg/dnsplan"
	"github.com/dmitrymomot/sesdomain/pkg/dnsprobe"
)

// zoneHandler answers queries from a static name->RR map and returns
// NXDOMAIN for everything else.
type zoneHandler struct {
	answers map[string][]dns.RR
}

func (h *zoneHandler) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)
	q := r.Question[0]
	if answers, ok := h.answers[q.Name]; ok {
		for _, rr := range answers {
			if rr.Header().Rrtype == q.Qtype {
				m.Answer = append(m.Answer, rr)
			}
		}
	} else {
		m.Rcode = dns.RcodeNameError
	}
	_ = w.WriteMsg(m)
}

func rr(t *testing.T, s string) dns.RR {
	t.Helper()
	parsed, err := dns.NewRR(s)
	require.NoError(t, err)
	return parsed
}

func startServer(t *testing.T, handler dns.Handler) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &dns.Server{PacketConn: pc, Handler: handler}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func newProber(t *testing.T, nameserver string) *dnsprobe.Prober {
	t.Helper()
	p, err := dnsprobe.New(dnsprobe.Config{Nameserver: nameserver, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return p
}

func TestProbe(t *testing.T) {
	t.Parallel()

	plan := dnsplan.Plan("example.com", "abc123", []string{"d1", "d2"})

	t.Run("all records propagated", func(t *testing.T) {
		t.Parallel()
		handler := &zoneHandler{answers: map[string][]dns.RR{
			"_amazonses.example.com.": {rr(t, `_amazonses.example.com. 300 IN TXT "abc123"`)},
			"d1._domainkey.example.com.": {rr(t, "d1._domainkey.example.com. 300 IN CNAME d1.dkim.amazonses.com.")},
			"d2._domainkey.example.com.": {rr(t, "d2._domainkey.example.com. 300 IN CNAME d2.dkim.amazonses.com.")},
		}}
		prober := newProber(t, startServer(t, handler))

		matched, err := prober.Probe(context.Background(), plan)
		require.NoError(t, err)
		require.True(t, matched)
	})

	t.Run("missing record is not yet", func(t *testing.T) {
		t.Parallel()
		handler := &zoneHandler{answers: map[string][]dns.RR{
			"_amazonses.example.com.": {rr(t, `_amazonses.example.com. 300 IN TXT "abc123"`)},
		}}
		prober := newProber(t, startServer(t, handler))

		matched, err := prober.Probe(context.Background(), plan)
		require.NoError(t, err)
		require.False(t, matched)
	})

	t.Run("stale value is not yet", func(t *testing.T) {
		t.Parallel()
		handler := &zoneHandler{answers: map[string][]dns.RR{
			"_amazonses.example.com.": {rr(t, `_amazonses.example.com. 300 IN TXT "old-token"`)},
		}}
		prober := newProber(t, startServer(t, handler))

		matched, err := prober.Probe(context.Background(), plan[:1])
		require.NoError(t, err)
		require.False(t, matched)
	})

	t.Run("cname target compared case-insensitively", func(t *testing.T) {
		t.Parallel()
		handler := &zoneHandler{answers: map[string][]dns.RR{
			"d1._domainkey.example.com.": {rr(t, "d1._domainkey.example.com. 300 IN CNAME D1.DKIM.AMAZONSES.COM.")},
		}}
		prober := newProber(t, startServer(t, handler))

		matched, err := prober.Probe(context.Background(), plan[1:2])
		require.NoError(t, err)
		require.True(t, matched)
	})

	t.Run("unreachable resolver is an error", func(t *testing.T) {
		t.Parallel()
		prober := newProber(t, "127.0.0.1:1")

		_, err := prober.Probe(context.Background(), plan[:1])
		require.ErrorIs(t, err, dnsprobe.ErrLookupFailed)
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("appends default port", func(t *testing.T) {
		t.Parallel()
		_, err := dnsprobe.New(dnsprobe.Config{Nameserver: "1.1.1.1"})
		require.NoError(t, err)
	})

	t.Run("keeps explicit port", func(t *testing.T) {
		t.Parallel()
		_, err := dnsprobe.New(dnsprobe.Config{Nameserver: fmt.Sprintf("127.0.0.1:%d", 5353)})
		require.NoError(t, err)
	})
}
