package endpoint

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceNotFound    = errors.New("device not found")
	ErrUnsupportedPrefix = errors.New("unsupported device specifier")
	ErrAllocationFailed  = errors.New("backend allocation failed")
	ErrMalformedAddress  = errors.New("malformed network address")
	ErrSymbolRequired    = errors.New("format requires a symbol")
)

// ResolveError reports a specifier that could not become a live endpoint.
// Kind is one of the Err* sentinels above.
type ResolveError struct {
	Kind error
	Err  error
	Spec string
}

func newResolveError(spec string, kind, err error) *ResolveError {
	return &ResolveError{Spec: spec, Kind: kind, Err: err}
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %q: %v: %v", e.Spec, e.Kind, e.Err)
	}
	return fmt.Sprintf("resolve %q: %v", e.Spec, e.Kind)
}

func (e *ResolveError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
