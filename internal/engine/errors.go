package engine

import (
	"errors"
	"fmt"

	"github.com/bamsammich/gload/internal/endpoint"
)

// ErrPayloadTooLarge is returned when a single-pass source does not fit the
// transfer buffer.
var ErrPayloadTooLarge = errors.New("payload larger than transfer buffer")

// UnsupportedEndpointError reports a (kind, format, extras) combination with
// no backend. It is raised while building the pipeline, before any I/O.
type UnsupportedEndpointError struct {
	Role   endpoint.Role
	Kind   endpoint.Kind
	Format endpoint.Format
	Extras endpoint.Extras
}

func (e *UnsupportedEndpointError) Error() string {
	return fmt.Sprintf("unsupported %s endpoint: kind=%s format=%s extras=%s",
		e.Role, e.Kind, e.Format, e.Extras)
}

// Stage names for StageError.
const (
	StageLoad         = "load"
	StageBurn         = "burn"
	StageLoadFinalize = "load-finalize"
	StageBurnFinalize = "burn-finalize"
	StageVerify       = "verify"
)

// StageError is an I/O failure in one stage of the pipeline.
type StageError struct {
	Err    error
	Stage  string
	Offset uint64
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s at offset 0x%x: %v", e.Stage, e.Offset, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
