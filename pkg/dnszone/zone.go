package dnszone

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/dmitrymomot/sesdomain/pkg/converge"
	"github.com/dmitrymomot/sesdomain/pkg/dnsplan"
)

// API is the subset of the Route53 API the zone writer depends on.
// *route53.Client satisfies it; tests substitute a fake.
type API interface {
	ChangeResourceRecordSets(ctx context.Context, params *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
	ListResourceRecordSets(ctx context.Context, params *route53.ListResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error)
	ListHostedZones(ctx context.Context, params *route53.ListHostedZonesInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesOutput, error)
}

const changeComment = "sesdomain: SES verification and DKIM records"

// Zone writes planned records into a single hosted zone. The zone is
// treated as exclusively owned by the onboarding pipeline for the duration
// of a run: same-key records with a different value are overwritten
// (last-planner-wins), concurrent manual edits are not guarded against.
type Zone struct {
	api API
	id  string
}

// New creates a Zone writer for the hosted zone with the given ID.
func New(api API, zoneID string) *Zone {
	return &Zone{api: api, id: zoneID}
}

// ID returns the hosted zone ID this writer targets.
func (z *Zone) ID() string {
	return z.id
}

// Apply upserts records by (type, name) key, in plan order, and returns the
// number of records actually mutated. Records that already hold the planned
// value are skipped, so re-applying an identical plan reports zero
// mutations. The first failure aborts the batch with a *PartialApplyError
// naming the records already correct, the failing record, and the rest, so
// a rerun with a recomputed plan resumes safely.
func (z *Zone) Apply(ctx context.Context, records []dnsplan.Record) (int, error) {
	mutated := 0
	for i, rec := range records {
		current, found, err := z.Read(ctx, rec.Type, rec.Name)
		if err != nil {
			return mutated, partialErr(records, i, err)
		}
		if found && current == rec.Value {
			continue
		}
		if err := z.upsert(ctx, rec); err != nil {
			return mutated, partialErr(records, i, err)
		}
		mutated++
	}
	return mutated, nil
}

// Read returns the current value of the record identified by (type, name),
// or found=false when the zone holds no such record.
func (z *Zone) Read(ctx context.Context, rtype dnsplan.RecordType, name string) (string, bool, error) {
	out, err := z.api.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(z.id),
		StartRecordName: aws.String(name),
		StartRecordType: rrType(rtype),
		MaxItems:        aws.Int32(1),
	})
	if err != nil {
		return "", false, wrapRoute53Error(err)
	}

	for _, set := range out.ResourceRecordSets {
		if set.Type != rrType(rtype) || !strings.EqualFold(aws.ToString(set.Name), name) {
			continue
		}
		if len(set.ResourceRecords) == 0 {
			continue
		}
		return aws.ToString(set.ResourceRecords[0].Value), true, nil
	}
	return "", false, nil
}

func (z *Zone) upsert(ctx context.Context, rec dnsplan.Record) error {
	_, err := z.api.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(z.id),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String(changeComment),
			Changes: []types.Change{{
				Action: types.ChangeActionUpsert,
				ResourceRecordSet: &types.ResourceRecordSet{
					Name:            aws.String(rec.Name),
					Type:            rrType(rec.Type),
					TTL:             aws.Int64(rec.TTL),
					ResourceRecords: []types.ResourceRecord{{Value: aws.String(rec.Value)}},
				},
			}},
		},
	})
	if err != nil {
		return wrapRoute53Error(err)
	}
	return nil
}

func rrType(t dnsplan.RecordType) types.RRType {
	switch t {
	case dnsplan.TypeCNAME:
		return types.RRTypeCname
	default:
		return types.RRTypeTxt
	}
}

// Ensure Zone satisfies the orchestrator contract.
var _ converge.RecordApplier = (*Zone)(nil)
