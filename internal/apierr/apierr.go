// Package apierr defines the error vocabulary shared by the field, merkletree,
// store, and kvpair packages so that a failure can cross package boundaries
// without losing its classification.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way the Request Handler reports it to callers.
type Kind string

const (
	InvalidIndex    Kind = "InvalidIndex"
	HashMismatch    Kind = "HashMismatch"
	FieldOutOfRange Kind = "FieldOutOfRange"
	InvalidEnum     Kind = "InvalidEnum"
	// InvalidContractID is a malformed ContractID: not valid hex, or over
	// contract.MaxLen bytes. Distinct from TenantUnknown, which is reserved
	// for a forbidden-tenant policy check on SetRoot/SetNonLeaf — a
	// well-formed ContractID is never TenantUnknown on its own, since
	// unknown tenants are otherwise treated as an empty tree.
	InvalidContractID Kind = "InvalidContractID"
	TenantUnknown     Kind = "TenantUnknown"
	StorageConflict   Kind = "StorageConflict"
	StorageFatal      Kind = "StorageFatal"
	RateLimited       Kind = "RateLimited"
	Internal          Kind = "Internal"
)

// Error is the concrete error type every layer of this service returns.
type Error struct {
	Kind      Kind
	Retryable bool
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches kind to an existing error without marking it retryable.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WrapRetryable is Wrap for failures the caller may reasonably retry, such as
// a transaction aborted by a concurrent writer.
func WrapRetryable(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause, Retryable: true}
}

// Of reports the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
