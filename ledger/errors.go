/*
errors.go - Centralized error types for the ledger

PURPOSE:
  All error types in one place for consistency and discoverability.

ERROR CATEGORIES:
  1. Rejections - business-rule violations found before any write. The
     message is shown to the end user verbatim; nothing was persisted.
  2. Not found - a referenced row does not exist (also a rejection).
  3. Store errors - anything else. The whole unit rolled back and the
     caller only sees a generic failure.

USAGE:
    _, err := manager.Create(ctx, input)
    if ledger.IsRejection(err) {
        // show err.Error() to the user
    }
    res := ledger.ResultOf(err) // {Success} or {Error}

SEE ALSO:
  - lifecycle.go: Produces rejections
  - api/handlers.go: Maps errors to HTTP status codes
*/
package ledger

import (
	"errors"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is the root of every input validation rejection.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSelfTransfer is returned when a transfer names the same account twice.
	ErrSelfTransfer = errors.New("transfer to the same account")

	// ErrTaxTransaction is returned when a digital tax sub-transaction is
	// edited or deleted directly instead of through its parent.
	ErrTaxTransaction = errors.New("digital tax transaction is managed by its parent")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrCategoryNotFound is returned when a referenced category doesn't exist.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrTransactionNotFound is returned when a referenced transaction doesn't exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrCategoryExists is returned when a category with the same name and type exists.
	ErrCategoryExists = errors.New("category already exists")
)

// Messages shown to the user. Kept stable: clients display them as-is.
const (
	MsgRequired            = "Type, amount, and account are required"
	MsgInvalidType         = "Invalid transaction type"
	MsgAmountPositive      = "Amount must be positive"
	MsgDestinationRequired = "Destination account is required for transfers"
	MsgSelfTransfer        = "Cannot transfer to the same account"
	MsgAccountNotFound     = "Account not found"
	MsgDestinationNotFound = "Destination account not found"
	MsgCategoryNotFound    = "Category not found"
	MsgCategoryMismatch    = "Category type does not match transaction type"
	MsgTransactionNotFound = "Transaction not found"
	MsgTaxEdit             = "Digital tax transactions cannot be edited directly. Edit the original transaction."
	MsgTaxDelete           = "Digital tax transactions cannot be deleted directly. Delete the original transaction."
	MsgAccountNameRequired = "Account name is required"
	MsgCategoryRequired    = "Name and type are required"
	MsgCategoryExists      = "Category already exists"
	MsgGenericFailure      = "Something went wrong, please try again"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RejectionError is a business-rule violation detected before any write.
// Message is user-facing; Cause classifies it for errors.Is.
type RejectionError struct {
	Message string
	Cause   error
}

func (e *RejectionError) Error() string { return e.Message }

func (e *RejectionError) Unwrap() error { return e.Cause }

func reject(cause error, message string) *RejectionError {
	return &RejectionError{Message: message, Cause: cause}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRejection returns true if err is a business-rule violation whose
// message may be shown to the user.
func IsRejection(err error) bool {
	var r *RejectionError
	return errors.As(err, &r)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

// Result is the discriminated outcome of a lifecycle operation:
// exactly one of Success or Error is set.
type Result struct {
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ResultOf converts an operation error into a Result. Rejections keep
// their message; any other failure is reported generically.
func ResultOf(err error) Result {
	if err == nil {
		return Result{Success: true}
	}
	var r *RejectionError
	if errors.As(err, &r) {
		return Result{Error: r.Message}
	}
	return Result{Error: MsgGenericFailure}
}
