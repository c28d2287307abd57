package common

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrNotFound                 = errors.New("not found")
	ErrValidation               = errors.New("validation")
	ErrDuplicate                = errors.New("duplicate")
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")
	ErrPreconditionFailed       = errors.New("precondition failed")
	ErrExternalTool             = errors.New("external tool failure")
	ErrPersistence              = errors.New("persistence failure")
	ErrConflict                 = errors.New("conflict")
)

var errorKinds = []error{
	ErrNotFound,
	ErrValidation,
	ErrDuplicate,
	ErrUnsupportedConfiguration,
	ErrPreconditionFailed,
	ErrExternalTool,
	ErrPersistence,
	ErrConflict,
}

// ErrorKind returns the taxonomy sentinel err belongs to, or nil for
// unclassified errors.
func ErrorKind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range errorKinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

func ErrorStatus(err error) int {
	switch ErrorKind(err) {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrValidation, ErrPreconditionFailed:
		return http.StatusBadRequest
	case ErrDuplicate, ErrConflict:
		return http.StatusConflict
	case ErrUnsupportedConfiguration:
		return http.StatusUnprocessableEntity
	case ErrExternalTool:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
