package sesmail

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"

	"github.com/dmitrymomot/sesdomain/pkg/converge"
)

// Sentinel errors for SES operations.
var (
	ErrIdentityNotFound = errors.New("sesmail: domain identity not found")
	ErrAccessDenied     = errors.New("sesmail: access denied")
	ErrThrottled        = errors.New("sesmail: request throttled")
	ErrRuleSetNotFound  = errors.New("sesmail: receipt rule set not found")
	ErrEmptyRuleSetName = errors.New("sesmail: receipt rule set name is empty")
)

// wrapSESError classifies SES errors for the orchestrator: authentication
// and authorization failures cannot be fixed by retrying and are marked
// permanent; throttling and availability errors stay transient so the
// caller retries within its budget.
// Note: Uses %v (not %w) for the original error to normalize error types -
// callers should use errors.Is() with sentinel errors, not errors.As() for AWS types.
func wrapSESError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation",
			"InvalidClientTokenId", "SignatureDoesNotMatch", "ExpiredToken":
			return converge.Permanent(fmt.Errorf("%w: %v", ErrAccessDenied, err))
		case "RuleSetDoesNotExist":
			return converge.Permanent(fmt.Errorf("%w: %v", ErrRuleSetNotFound, err))
		case "Throttling", "ThrottlingException", "RequestLimitExceeded", "ServiceUnavailable":
			return fmt.Errorf("%w: %v", ErrThrottled, err)
		}
	}

	// Timeouts and network failures fall through as transient.
	return err
}
