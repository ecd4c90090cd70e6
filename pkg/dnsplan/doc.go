// Package dnsplan turns mail-provider tokens into a declarative list of DNS
// records, independent of any provider SDK.
//
// A domain being onboarded for mail receiving needs a TXT record proving
// ownership and one CNAME per DKIM signing token:
//
//	_amazonses.example.com.             TXT   "abc123"
//	tok1._domainkey.example.com.        CNAME tok1.dkim.amazonses.com.
//	tok2._domainkey.example.com.        CNAME tok2.dkim.amazonses.com.
//	tok3._domainkey.example.com.        CNAME tok3.dkim.amazonses.com.
//
// Plan is a pure function with stable output ordering, which is what makes
// repeated record application idempotent: the applier upserts by (type, name)
// and an unchanged plan converges to an unchanged zone.
package dnsplan
