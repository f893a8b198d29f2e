package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	MailflowErrorConfigurationMissing = "MAILFLOW_CONFIGURATION_MISSING"
	MailflowErrorSignatureInvalid     = "MAILFLOW_SIGNATURE_INVALID"
	MailflowErrorMalformedPayload     = "MAILFLOW_MALFORMED_PAYLOAD"
	MailflowErrorProviderError        = "MAILFLOW_PROVIDER_ERROR"
	MailflowErrorPersistenceError     = "MAILFLOW_PERSISTENCE_ERROR"
	MailflowErrorBadInput             = "MAILFLOW_BAD_INPUT"
	MailflowErrorNotFound             = "MAILFLOW_NOT_FOUND"
	MailflowErrorInternal             = "MAILFLOW_INTERNAL_ERROR"
)

var (
	ErrMessageNotFound            = errors.New("core: message not found")
	ErrConfigEntryNotFound        = errors.New("core: config entry not found")
	ErrVersionConflict            = errors.New("core: message version conflict")
	ErrProviderMessageIDImmutable = errors.New("core: provider message id already set")
	ErrProviderNotRegistered      = errors.New("core: provider not registered")
)

type Kind string

const (
	KindNone                 Kind = ""
	KindConfigurationMissing Kind = "ConfigurationMissing"
	KindSignatureInvalid     Kind = "SignatureInvalid"
	KindMalformedPayload     Kind = "MalformedPayload"
	KindProviderError        Kind = "ProviderError"
	KindPersistenceError     Kind = "PersistenceError"
	KindBadInput             Kind = "BadInput"
	KindNotFound             Kind = "NotFound"
	KindInternal             Kind = "Internal"
)

// ErrorKind maps an error to the mailflow error taxonomy.
func ErrorKind(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrMessageNotFound) || errors.Is(err, ErrConfigEntryNotFound) || errors.Is(err, ErrProviderNotRegistered) {
		return KindNotFound
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		switch rich.TextCode {
		case MailflowErrorConfigurationMissing:
			return KindConfigurationMissing
		case MailflowErrorSignatureInvalid:
			return KindSignatureInvalid
		case MailflowErrorMalformedPayload:
			return KindMalformedPayload
		case MailflowErrorProviderError:
			return KindProviderError
		case MailflowErrorPersistenceError:
			return KindPersistenceError
		case MailflowErrorBadInput:
			return KindBadInput
		case MailflowErrorNotFound:
			return KindNotFound
		}
		switch rich.Category {
		case goerrors.CategoryBadInput, goerrors.CategoryValidation:
			return KindBadInput
		case goerrors.CategoryNotFound:
			return KindNotFound
		case goerrors.CategoryAuth:
			return KindSignatureInvalid
		case goerrors.CategoryExternal:
			return KindProviderError
		}
		return KindInternal
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindProviderError
	}
	return KindInternal
}

// ToServiceError normalizes any error into a go-errors envelope with an HTTP
// status code and a mailflow text code.
func ToServiceError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return ensureServiceErrorEnvelope(rich)
	}

	switch {
	case errors.Is(err, ErrMessageNotFound), errors.Is(err, ErrConfigEntryNotFound), errors.Is(err, ErrProviderNotRegistered):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, MailflowErrorNotFound)
	case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrProviderMessageIDImmutable):
		return newServiceError(err.Error(), goerrors.CategoryConflict, MailflowErrorPersistenceError)
	case errors.Is(err, context.DeadlineExceeded):
		return ensureServiceErrorEnvelope(
			goerrors.Wrap(err, goerrors.CategoryExternal, "provider call timed out").
				WithTextCode(MailflowErrorProviderError),
		)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") {
		return newServiceError(err.Error(), goerrors.CategoryBadInput, MailflowErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func ConfigurationMissingError(key string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New("core: configuration value "+key+" is not set", goerrors.CategoryOperation).
			WithCode(http.StatusInternalServerError).
			WithTextCode(MailflowErrorConfigurationMissing).
			WithMetadata(map[string]any{"key": key}),
	)
}

func SignatureInvalidError() *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New("Invalid signature", goerrors.CategoryAuth).
			WithCode(http.StatusUnauthorized).
			WithTextCode(MailflowErrorSignatureInvalid),
	)
}

func MalformedPayloadError(message string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(MailflowErrorMalformedPayload)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return ensureServiceErrorEnvelope(err)
}

// ProviderError carries the provider's error description. The detail is the
// serialized provider payload so callers never lose the original body.
func ProviderError(providerID string, statusCode int, detail string, cause error) *goerrors.Error {
	message := strings.TrimSpace(detail)
	if message == "" && cause != nil {
		message = cause.Error()
	}
	if message == "" {
		message = "provider request failed"
	}
	var err *goerrors.Error
	if cause != nil {
		err = goerrors.Wrap(cause, goerrors.CategoryExternal, message)
	} else {
		err = goerrors.New(message, goerrors.CategoryExternal)
	}
	metadata := map[string]any{"provider": providerID}
	if statusCode > 0 {
		metadata["status_code"] = statusCode
	}
	return ensureServiceErrorEnvelope(
		err.WithCode(http.StatusBadGateway).
			WithTextCode(MailflowErrorProviderError).
			WithMetadata(metadata),
	)
}

func PersistenceError(operation string, cause error) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.Wrap(cause, goerrors.CategoryInternal, "core: "+operation+" failed").
			WithCode(http.StatusInternalServerError).
			WithTextCode(MailflowErrorPersistenceError).
			WithMetadata(map[string]any{"operation": operation}),
	)
}

func newBadInputError(message string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryBadInput).WithTextCode(MailflowErrorBadInput)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return ensureServiceErrorEnvelope(err)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return MailflowErrorBadInput
	case goerrors.CategoryNotFound:
		return MailflowErrorNotFound
	case goerrors.CategoryAuth:
		return MailflowErrorSignatureInvalid
	case goerrors.CategoryExternal:
		return MailflowErrorProviderError
	default:
		return MailflowErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
