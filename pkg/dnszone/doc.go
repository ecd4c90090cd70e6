// Package dnszone applies planned DNS records to a Route53 hosted zone.
//
// Records are upserted one at a time by (type, name) key. Before each
// upsert the current value is read back: an identical record is skipped,
// so Apply is idempotent and re-applying an unchanged plan reports zero
// mutations. A differing value is overwritten, since the zone is owned by
// the onboarding pipeline. The first failure aborts the batch with a
// *PartialApplyError that lists exactly which records are already correct,
// making an operator rerun safe without manual cleanup.
package dnszone
