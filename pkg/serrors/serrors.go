package serrors

import "errors"

// BaseError is a coded sentinel error. Two BaseErrors match under errors.Is when their codes match.
type BaseError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	LocaleKey string `json:"locale_key,omitempty"`
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		LocaleKey: localeKey,
	}
}

func (e *BaseError) Error() string {
	return e.Message
}

func (e *BaseError) Is(target error) bool {
	var t *BaseError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first BaseError in the chain, or "".
func CodeOf(err error) string {
	var be *BaseError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
