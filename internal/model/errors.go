package model

import "strings"

type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Коды ошибок валидации
const (
	ErrRequired        = "required"
	ErrTypeMismatch    = "type_mismatch"
	ErrOptionInvalid   = "option_invalid"
	ErrEmptyName       = "empty_name"
	ErrDuplicateName   = "duplicate_name"
	ErrInvalidKind     = "invalid_kind"
	ErrTooFewOptions   = "too_few_options"
	ErrUnknownField    = "unknown_field"
	ErrUnknownEntity   = "unknown_entity"
	ErrNotFound        = "not_found"
	ErrVersionConflict = "version_conflict"
)

func Ferr(code, field, msg string) FieldError {
	return FieldError{Code: code, Field: field, Message: msg}
}

// ValidationError: набор ошибок полей; мутация не выполнялась
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasCode: есть ли ошибка с данным кодом
func (e *ValidationError) HasCode(code string) bool {
	for _, fe := range e.Errors {
		if fe.Code == code {
			return true
		}
	}
	return false
}
