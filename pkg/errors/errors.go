package errors

import (
	"errors"
)

type Code string

const (
	CodeStatusFailure             Code = "status_failure"
	CodeSignatureInvalid          Code = "signature_invalid"
	CodeSignatureRequired         Code = "signature_required"
	CodeMessageExpired            Code = "message_expired"
	CodeAssertionExpired          Code = "assertion_expired"
	CodeAssertionNotYetValid      Code = "assertion_not_yet_valid"
	CodeUnsolicitedResponse       Code = "unsolicited_response"
	CodeDestinationMismatch       Code = "destination_mismatch"
	CodeIssuerInvalid             Code = "issuer_invalid"
	CodeConfirmationInvalid       Code = "confirmation_invalid"
	CodeAudienceMissing           Code = "audience_missing"
	CodeAudienceInvalid           Code = "audience_invalid"
	CodeNoAuthenticationStatement Code = "no_authentication_statement"
	CodeCredentialsExpired        Code = "credentials_expired"
	CodeAddressMismatch           Code = "address_mismatch"
	CodeUnknownCondition          Code = "unknown_condition"
)

const (
	CodeUnknown            Code = "unknown"
	CodeStorageUnavailable Code = "storage_unavailable"
)

var ErrMissingConsumer = errors.New("websso: consumer is required")
var ErrMissingRequestStore = errors.New("websso: request store is required")
var ErrMissingVerifier = errors.New("websso: trust verifier is required")
var ErrMissingServiceProvider = errors.New("websso: service provider metadata is required")
var ErrMissingPeerEntity = errors.New("websso: validation context has no peer entity")
var ErrNilResponse = errors.New("websso: response is required")

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	if e.Message != "" {
		return e.Message
	}

	if e.Err != nil {
		return e.Err.Error()
	}

	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsCode(err error, code Code) bool {
	var typed *Error
	if !errors.As(err, &typed) {
		return false
	}
	return typed.Code == code
}

// CodeOf extracts the validation code from an error chain. Errors that did
// not originate from this package map to CodeUnknown.
func CodeOf(err error) Code {
	var typed *Error
	if !errors.As(err, &typed) {
		return CodeUnknown
	}
	return typed.Code
}

func IsInternalCode(err error) bool {
	return IsCode(err, CodeUnknown) || IsCode(err, CodeStorageUnavailable)
}
