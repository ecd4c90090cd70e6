package dnszone

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"

	"github.com/dmitrymomot/sesdomain/pkg/dnsplan"
)

// LookupZoneID resolves the public hosted zone ID for a domain by scanning
// the account's zones. Private zones are skipped; the match is exact on the
// zone apex, not a parent-domain walk.
func LookupZoneID(ctx context.Context, api API, domain string) (string, error) {
	want := dnsplan.Normalize(domain) + "."

	var marker *string
	for {
		out, err := api.ListHostedZones(ctx, &route53.ListHostedZonesInput{Marker: marker})
		if err != nil {
			return "", wrapRoute53Error(err)
		}

		for _, zone := range out.HostedZones {
			if zone.Config != nil && zone.Config.PrivateZone {
				continue
			}
			if strings.EqualFold(aws.ToString(zone.Name), want) {
				// Zone IDs come back as "/hostedzone/Z123...".
				id := aws.ToString(zone.Id)
				return id[strings.LastIndex(id, "/")+1:], nil
			}
		}

		if !out.IsTruncated || out.NextMarker == nil {
			break
		}
		marker = out.NextMarker
	}

	return "", fmt.Errorf("%w: %s", ErrZoneNotFound, domain)
}
