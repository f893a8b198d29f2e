package query

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/kdevda/go-mailflow/core"
)

func queryDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.MailflowErrorInternal)
}

func queryValidationError(field string, message string) error {
	return goerrors.NewValidation("query: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.MailflowErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

func queryInvalidInputError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.MailflowErrorBadInput)
}

func queryWrapNotFound(err error) error {
	if !errors.Is(err, core.ErrConfigEntryNotFound) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryNotFound, "query: config entry not found").
		WithCode(http.StatusNotFound).
		WithTextCode(core.MailflowErrorNotFound)
}
