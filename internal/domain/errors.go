package domain

import "github.com/m-mizutani/goerr/v2"

var (
	ErrUnsupportedFormat  = goerr.New("unsupported format")
	ErrTransport          = goerr.New("transport error")
	ErrValidation         = goerr.New("validation error")
	ErrDimensionMismatch  = goerr.New("dimension mismatch")
	ErrSessionNotFound    = goerr.New("session not found")
	ErrCollectionNotFound = goerr.New("collection not found")
)

// Invalid builds a validation error carrying the offending value.
func Invalid(msg, key string, value any) error {
	return goerr.Wrap(ErrValidation, msg, goerr.V(key, value))
}

// Transport wraps a failed call to an external service.
func Transport(err error, msg string, opts ...goerr.Option) error {
	return goerr.Wrap(ErrTransport, msg, append(opts, goerr.V("cause", err.Error()))...)
}
