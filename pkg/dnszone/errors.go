package dnszone

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"

	"github.com/dmitrymomot/sesdomain/pkg/converge"
	"github.com/dmitrymomot/sesdomain/pkg/dnsplan"
)

// Sentinel errors for zone operations.
var (
	ErrZoneNotFound = errors.New("dnszone: hosted zone not found")
	ErrAccessDenied = errors.New("dnszone: access denied")
	ErrThrottled    = errors.New("dnszone: request throttled")
)

// PartialApplyError reports an aborted batch apply: which records were
// already correct or upserted before the failure, which record failed, and
// which ones were never attempted (Remaining includes the failing record).
// A rerun with an unchanged plan is safe: correct records are no-ops.
type PartialApplyError struct {
	Applied   []dnsplan.Record
	Failed    dnsplan.Record
	Remaining []dnsplan.Record
	Err       error
}

func (e *PartialApplyError) Error() string {
	return fmt.Sprintf("dnszone: apply aborted at %s %s (%d ok, %d pending): %v",
		e.Failed.Type, e.Failed.Name, len(e.Applied), len(e.Remaining), e.Err)
}

func (e *PartialApplyError) Unwrap() error {
	return e.Err
}

func partialErr(records []dnsplan.Record, failedAt int, err error) error {
	return &PartialApplyError{
		Applied:   records[:failedAt],
		Failed:    records[failedAt],
		Remaining: records[failedAt:],
		Err:       err,
	}
}

// wrapRoute53Error classifies Route53 errors: authorization failures and a
// missing zone are permanent, throttling stays transient.
// Note: Uses %v (not %w) for the original error to normalize error types -
// callers should use errors.Is() with sentinel errors, not errors.As() for AWS types.
func wrapRoute53Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "AccessDeniedException", "InvalidClientTokenId", "SignatureDoesNotMatch":
			return converge.Permanent(fmt.Errorf("%w: %v", ErrAccessDenied, err))
		case "NoSuchHostedZone":
			return converge.Permanent(fmt.Errorf("%w: %v", ErrZoneNotFound, err))
		case "Throttling", "ThrottlingException", "PriorRequestNotComplete", "ServiceUnavailable":
			return fmt.Errorf("%w: %v", ErrThrottled, err)
		}
	}
	return err
}
