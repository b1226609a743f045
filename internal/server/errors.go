package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/fineprint/internal/pipeline"
)

// ErrNoActiveRun is returned when an operation needs a run in progress.
var ErrNoActiveRun = errors.New("no search run is active")

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// validationError converts validator output into an *ErrValidation for the first failing field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ErrValidation{Field: fe.Field(), Message: fmt.Sprintf("failed on '%s'", fe.Tag())}
	}
	return &ErrValidation{Field: "(body)", Message: err.Error()}
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var verr *ErrValidation
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrRunActive), errors.Is(err, ErrNoActiveRun):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
