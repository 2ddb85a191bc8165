package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrImbalanced marks vouchers whose debits and credits differ beyond the rounding epsilon.
	ErrImbalanced = errors.New("voucher debits and credits do not balance")
	// ErrInsufficientStock marks consumptions the eligible batch pool cannot satisfy.
	ErrInsufficientStock = errors.New("insufficient eligible stock")
	// ErrDuplicateCode occurs when an account code is already registered for the tenant.
	ErrDuplicateCode = errors.New("duplicate code")
	// ErrConcurrentModification is returned when a competing writer won; callers may retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")
	// ErrSourceAlreadyPosted occurs when a business document was already recorded.
	ErrSourceAlreadyPosted = errors.New("source already posted")
	// ErrAlreadyReversed occurs when a voucher has a reversal already.
	ErrAlreadyReversed = errors.New("voucher already reversed")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ImbalancedVoucherError carries the rounded totals of a rejected voucher.
type ImbalancedVoucherError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// Difference returns debit minus credit.
func (e *ImbalancedVoucherError) Difference() decimal.Decimal {
	return e.Debit.Sub(e.Credit)
}

func (e *ImbalancedVoucherError) Error() string {
	return fmt.Sprintf("imbalanced voucher: debit %s, credit %s, difference %s",
		e.Debit.StringFixed(2), e.Credit.StringFixed(2), e.Difference().StringFixed(2))
}

func (e *ImbalancedVoucherError) Unwrap() error { return ErrImbalanced }

// InsufficientStockError reports the eligible quantity seen when a consumption was refused.
type InsufficientStockError struct {
	ItemID           int64
	SiteID           int64
	Requested        decimal.Decimal
	Available        decimal.Decimal
	RequireGSTBacked bool
}

// Shortfall is the quantity the eligible pool is missing.
func (e *InsufficientStockError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientStockError) Error() string {
	kind := "any"
	if e.RequireGSTBacked {
		kind = "gst-backed"
	}
	return fmt.Sprintf("insufficient %s stock for item %d at site %d: requested %s, available %s",
		kind, e.ItemID, e.SiteID, e.Requested.String(), e.Available.String())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// DuplicateCodeError reports a code collision inside one tenant.
type DuplicateCodeError struct {
	Code string
}

func (e *DuplicateCodeError) Error() string {
	return fmt.Sprintf("duplicate code %q", e.Code)
}

func (e *DuplicateCodeError) Unwrap() error { return ErrDuplicateCode }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string
	Key  string
}

// NotFound builds a NotFoundError for a numeric id.
func NotFound(kind string, id int64) *NotFoundError {
	return &NotFoundError{Kind: kind, Key: fmt.Sprintf("%d", id)}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConcurrentModificationError wraps the store-level conflict that aborted an operation.
type ConcurrentModificationError struct {
	Op  string
	Err error
}

func (e *ConcurrentModificationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: concurrent modification, retry", e.Op)
	}
	return fmt.Sprintf("%s: concurrent modification, retry: %v", e.Op, e.Err)
}

// Is lets errors.Is match both the sentinel and the wrapped cause.
func (e *ConcurrentModificationError) Is(target error) bool {
	return target == ErrConcurrentModification
}

func (e *ConcurrentModificationError) Unwrap() error { return e.Err }

// IsRetryable reports whether the caller may safely retry the whole operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
