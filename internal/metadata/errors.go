package metadata

import (
	"errors"
	"fmt"

	"github.com/sells-group/areamatch/internal/model"
)

// SchemaMismatchError reports a reformat or derive output that cannot be
// represented in its declared output field. It is fatal for the run.
type SchemaMismatchError struct {
	Field string
	Type  model.FieldType
	Value any
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("metadata: field %q declared %s cannot hold %T value %v", e.Field, e.Type, e.Value, e.Value)
}

// IsSchemaMismatch returns true if err (or any error in its chain) is a SchemaMismatchError.
func IsSchemaMismatch(err error) bool {
	if err == nil {
		return false
	}
	var se *SchemaMismatchError
	return errors.As(err, &se)
}
