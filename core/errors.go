package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-credledger/money"
	"github.com/goliatone/go-credledger/signing"
)

const (
	ErrorInvalidInput             = "LEDGER_INVALID_INPUT"
	ErrorCredentialTypeNotTrusted = "LEDGER_CREDENTIAL_TYPE_NOT_RECOGNIZED"
	ErrorSchemaValidationFailed   = "LEDGER_SCHEMA_VALIDATION_FAILED"
	ErrorNotFound                 = "LEDGER_NOT_FOUND"
	ErrorUnconfigured             = "LEDGER_UNCONFIGURED"
	ErrorInternal                 = "LEDGER_INTERNAL_ERROR"
)

var (
	ErrCredentialNotFound = errors.New("core: credential not found")
	ErrSchemaNotFound     = errors.New("core: schema not found")
)

func InvalidInputError(field string, message string) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorInvalidInput)
	if field = strings.TrimSpace(field); field != "" {
		err = err.WithMetadata(map[string]any{
			"field":               field,
			validationMetadataKey: []goerrors.FieldError{{Field: field, Message: message}},
		})
	}
	return err
}

func NotRecognizedError(credentialType string) *goerrors.Error {
	return goerrors.New("credential type is not currently recognized by the trust registry", goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(ErrorCredentialTypeNotTrusted).
		WithMetadata(map[string]any{"credential_type": credentialType})
}

func SchemaValidationError(credentialType string, fields []goerrors.FieldError) *goerrors.Error {
	return goerrors.NewValidation("credential subject failed schema validation", fields...).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(ErrorSchemaValidationFailed).
		WithMetadata(map[string]any{
			"credential_type":     credentialType,
			validationMetadataKey: append([]goerrors.FieldError(nil), fields...),
		})
}

const validationMetadataKey = "validation"

// ValidationFields returns the field level detail attached to a schema or
// input error.
func ValidationFields(err error) []goerrors.FieldError {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return nil
	}
	if fields, ok := richErr.Metadata[validationMetadataKey].([]goerrors.FieldError); ok {
		return fields
	}
	var fields []goerrors.FieldError
	for _, field := range richErr.AllValidationErrors() {
		fields = append(fields, field)
	}
	return fields
}

func NotFoundError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorNotFound)
}

func UnconfiguredError(dependency string) *goerrors.Error {
	return goerrors.New(dependency+" is not configured", goerrors.CategoryExternal).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(ErrorUnconfigured)
}

// InternalError hides err behind a generic message; the source stays attached
// for logs only.
func InternalError(err error) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected error occurred").
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorInternal)
}

// HasTextCode reports whether err carries the given ledger text code.
func HasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if messageContractCodes[richErr.TextCode] {
			return fromMessageContract(richErr)
		}
		return ensureErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, money.ErrInvalidCurrency):
		return InvalidInputError("currency", err.Error())
	case errors.Is(err, money.ErrInvalidAmount), errors.Is(err, money.ErrAmountTooSmall):
		return InvalidInputError("amount", err.Error())
	case errors.Is(err, ErrCredentialNotFound):
		return NotFoundError("credential not found")
	case errors.Is(err, ErrSchemaNotFound):
		return NotFoundError("schema not found")
	case errors.Is(err, signing.ErrKeyUnavailable):
		return UnconfiguredError("signing key")
	}
	return InternalError(err)
}

// messageContractCodes are the text codes go-command stamps on a message that
// fails its Validate() during dispatch.
var messageContractCodes = map[string]bool{
	"VALIDATION_FAILED": true,
	"INVALID_MESSAGE":   true,
}

func fromMessageContract(err *goerrors.Error) *goerrors.Error {
	fields := ValidationFields(err)
	if len(fields) == 0 {
		return InvalidInputError("", "request is invalid")
	}
	return InvalidInputError(fields[0].Field, fields[0].Message).
		WithMetadata(map[string]any{validationMetadataKey: fields})
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = HTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ErrorInvalidInput
	case goerrors.CategoryValidation:
		return ErrorSchemaValidationFailed
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryConflict:
		return ErrorCredentialTypeNotTrusted
	case goerrors.CategoryExternal:
		return ErrorUnconfigured
	default:
		return ErrorInternal
	}
}

// HTTPStatus maps an error category to its transport status.
func HTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryValidation:
		return http.StatusUnprocessableEntity
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
