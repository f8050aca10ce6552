package domain

import "errors"

var (
	// ErrAuthentication indicates a missing, malformed or rejected credential.
	ErrAuthentication = errors.New("authentication failed")
	// ErrQuotaExceeded indicates the free-tier analysis limit is used up.
	ErrQuotaExceeded = errors.New("usage limit exceeded, please upgrade to pro")
	// ErrEntitlement indicates a premium operation requested on the free tier.
	ErrEntitlement = errors.New("pro subscription required")
	// ErrInput indicates a request that lacks required input.
	ErrInput = errors.New("invalid input")
	// ErrUpstream indicates a failure of the model, scraper or extractor.
	ErrUpstream = errors.New("upstream failure")
	// ErrUnsupportedFormat indicates an upload with an unknown file extension.
	ErrUnsupportedFormat = errors.New("unsupported file type")
	// ErrFetch indicates the job posting could not be fetched or parsed.
	ErrFetch = errors.New("fetch job posting")
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("not found")
)

// IsClientError reports whether err should be surfaced as a 4xx response.
func IsClientError(err error) bool {
	return errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrEntitlement) ||
		errors.Is(err, ErrInput) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrNotFound)
}
