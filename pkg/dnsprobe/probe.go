package dnsprobe

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/dmitrymomot/sesdomain/pkg/converge"
	"github.com/dmitrymomot/sesdomain/pkg/dnsplan"
)

const resolvConfPath = "/etc/resolv.conf"

// Config holds prober settings.
// Embed this in your app config for env parsing with caarlos0/env.
type Config struct {
	// Nameserver is the resolver queried for read-back, as host or
	// host:port. Empty selects the first server from /etc/resolv.conf.
	Nameserver string `env:"DNSPROBE_NAMESERVER"`

	// Timeout bounds a single DNS exchange.
	Timeout time.Duration `env:"DNSPROBE_TIMEOUT" envDefault:"5s"`
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

// Prober reads planned records back through a real resolver to confirm they
// have propagated. It implements converge.RecordProber.
type Prober struct {
	client     *dns.Client
	nameserver string
}

// New creates a Prober. Without an explicit nameserver it falls back to the
// system resolver configuration.
func New(cfg Config) (*Prober, error) {
	cfg.applyDefaults()

	nameserver := cfg.Nameserver
	if nameserver == "" {
		conf, err := dns.ClientConfigFromFile(resolvConfPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoResolver, err)
		}
		if len(conf.Servers) == 0 {
			return nil, ErrNoResolver
		}
		nameserver = net.JoinHostPort(conf.Servers[0], conf.Port)
	} else if _, _, err := net.SplitHostPort(nameserver); err != nil {
		nameserver = net.JoinHostPort(nameserver, "53")
	}

	return &Prober{
		client:     &dns.Client{Timeout: cfg.Timeout},
		nameserver: nameserver,
	}, nil
}

// Probe reports whether every planned record resolves with its expected
// value. A record that is missing or still carries an old value yields
// (false, nil): not an error, just not propagated yet.
func (p *Prober) Probe(ctx context.Context, records []dnsplan.Record) (bool, error) {
	for _, rec := range records {
		ok, err := p.probe(ctx, rec)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (p *Prober) probe(ctx context.Context, rec dnsplan.Record) (bool, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(rec.Name), qtype(rec.Type))
	msg.RecursionDesired = true

	resp, _, err := p.client.ExchangeContext(ctx, msg, p.nameserver)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrLookupFailed, rec.Name, err)
	}
	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		// NXDOMAIN: not propagated yet.
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s: %s", ErrLookupFailed, rec.Name, dns.RcodeToString[resp.Rcode])
	}

	return matches(rec, resp.Answer), nil
}

// matches compares resolver answers against the planned record, normalizing
// the forms that differ between the zone and the wire: TXT values lose
// their surrounding quotes, CNAME targets are compared as FQDNs
// case-insensitively.
func matches(rec dnsplan.Record, answers []dns.RR) bool {
	switch rec.Type {
	case dnsplan.TypeTXT:
		want := dnsplan.UnquoteTXT(rec.Value)
		for _, ans := range answers {
			txt, ok := ans.(*dns.TXT)
			if !ok {
				continue
			}
			if strings.Join(txt.Txt, "") == want {
				return true
			}
		}
	case dnsplan.TypeCNAME:
		want := dns.Fqdn(rec.Value)
		for _, ans := range answers {
			cname, ok := ans.(*dns.CNAME)
			if !ok {
				continue
			}
			if strings.EqualFold(dns.Fqdn(cname.Target), want) {
				return true
			}
		}
	}
	return false
}

func qtype(t dnsplan.RecordType) uint16 {
	switch t {
	case dnsplan.TypeCNAME:
		return dns.TypeCNAME
	default:
		return dns.TypeTXT
	}
}

// Ensure Prober satisfies the orchestrator contract.
var _ converge.RecordProber = (*Prober)(nil)
