package geometry

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// InvalidGeometryError reports a geometry engine failure for a single operation,
// typically a topology exception raised by a malformed input. It is recoverable:
// callers skip the offending candidate and continue.
type InvalidGeometryError struct {
	Op  string
	Err error
}

func (e *InvalidGeometryError) Error() string {
	return fmt.Sprintf("geometry: %s: %v", e.Op, e.Err)
}

func (e *InvalidGeometryError) Unwrap() error {
	return e.Err
}

// IsInvalid returns true if err (or any error in its chain) is an InvalidGeometryError.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	var ie *InvalidGeometryError
	return errors.As(err, &ie)
}

// newInvalid converts a recovered GEOS panic value into an InvalidGeometryError.
func newInvalid(op string, recovered any) *InvalidGeometryError {
	if err, ok := recovered.(error); ok {
		return &InvalidGeometryError{Op: op, Err: err}
	}
	return &InvalidGeometryError{Op: op, Err: eris.Errorf("%v", recovered)}
}

// guard runs a GEOS call and turns a panic into an InvalidGeometryError.
// go-geos panics on engine errors instead of returning them.
func guard[T any](op string, fn func() T) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newInvalid(op, r)
		}
	}()
	return fn(), nil
}
