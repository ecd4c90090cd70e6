package dnsplan

import "strings"

// RecordType is the DNS record type of a planned record.
type RecordType string

const (
	TypeTXT   RecordType = "TXT"
	TypeCNAME RecordType = "CNAME"
)

// Record describes a single DNS record the zone must contain.
// Name is fully qualified (trailing dot). TXT values carry the surrounding
// quotes the DNS provider expects.
type Record struct {
	Type  RecordType
	Name  string
	Value string
	TTL   int64
}

// Key identifies a record by (type, name), the upsert key used by the applier.
func (r Record) Key() string {
	return string(r.Type) + " " + r.Name
}

const (
	// Naming conventions required by SES for domain verification and Easy DKIM.
	verificationPrefix = "_amazonses."
	dkimInfix          = "._domainkey."
	dkimTargetSuffix   = ".dkim.amazonses.com."

	// DefaultTTL is applied to every planned record.
	DefaultTTL int64 = 300
)

// Plan maps a verification token and a DKIM token set into the DNS records
// the zone must contain: one TXT record proving domain ownership, one CNAME
// per DKIM token. The function is pure and its output ordering is stable
// (TXT first, then CNAMEs in token order), so identical input always yields
// identical output.
func Plan(domain, verificationToken string, dkimTokens []string) []Record {
	domain = Normalize(domain)

	records := make([]Record, 0, len(dkimTokens)+1)
	records = append(records, Record{
		Type:  TypeTXT,
		Name:  verificationPrefix + domain + ".",
		Value: `"` + verificationToken + `"`,
		TTL:   DefaultTTL,
	})

	for _, token := range dkimTokens {
		records = append(records, Record{
			Type:  TypeCNAME,
			Name:  token + dkimInfix + domain + ".",
			Value: token + dkimTargetSuffix,
			TTL:   DefaultTTL,
		})
	}

	return records
}

// Normalize lowercases a domain and strips surrounding whitespace and any
// trailing dot, so planning and zone lookups agree on the same form.
func Normalize(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

// UnquoteTXT strips the quotes a TXT record value carries on the wire,
// returning the raw token for comparison against resolver answers.
func UnquoteTXT(value string) string {
	return strings.Trim(value, `"`)
}
