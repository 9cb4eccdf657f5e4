package voice

import "errors"

// ErrCatalogUnavailable is matched by every UnavailableError.
var ErrCatalogUnavailable = errors.New("voice catalog unavailable")

// UnavailableError reports that the voice list could not be fetched. There
// is nothing to select from afterwards, so callers treat it as fatal.
type UnavailableError struct {
	Cause error
}

func (e *UnavailableError) Error() string {
	if e.Cause != nil {
		return ErrCatalogUnavailable.Error() + ": " + e.Cause.Error()
	}
	return ErrCatalogUnavailable.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrCatalogUnavailable
}
