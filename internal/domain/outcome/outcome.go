// Package outcome defines the result object every cart operation returns and
// the codes of the recoverable business failures it may carry.
package outcome

import "github.com/go-faster/errors"

// Kind classifies a result for the notification sink.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
)

// Code identifies a recoverable business failure.
type Code string

const (
	CodeOutOfStock           Code = "OUT_OF_STOCK"
	CodeStockExceeded        Code = "STOCK_EXCEEDED"
	CodeInvalidDiscountValue Code = "INVALID_DISCOUNT_VALUE"
	CodeDuplicateCouponCode  Code = "DUPLICATE_COUPON_CODE"
	CodeBelowMinimum         Code = "BELOW_MINIMUM_FOR_PERCENTAGE"
	CodeCouponNoLongerValid  Code = "COUPON_NO_LONGER_VALID"
	CodeProductNotFound      Code = "PRODUCT_NOT_FOUND"
)

// Error is a business failure identified only by its code.
type Error struct {
	Code Code
	Msg  string
}

// NewError returns an Error usable as a sentinel.
func NewError(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func (e *Error) Error() string { return e.Msg }

// ErrorCode implements Coder.
func (e *Error) ErrorCode() Code { return e.Code }

// Coder is implemented by errors that carry a failure code.
type Coder interface {
	ErrorCode() Code
}

// CodeOf returns the failure code carried by err, or "" if there is none.
func CodeOf(err error) Code {
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return ""
}

// Result reports whether an operation succeeded together with the message to
// show the user. Err is set on failures and warnings.
type Result struct {
	Success bool
	Message string
	Kind    Kind
	Err     error
}

// OK returns a successful result.
func OK(msg string) Result {
	return Result{Success: true, Message: msg, Kind: KindSuccess}
}

// Fail returns a failed result caused by err.
func Fail(err error, msg string) Result {
	return Result{Message: msg, Kind: KindError, Err: err}
}

// Warn returns a successful result that the user should still be told about,
// e.g. a coupon that was dropped because it left the catalog.
func Warn(err error, msg string) Result {
	return Result{Success: true, Message: msg, Kind: KindWarning, Err: err}
}

// Code returns the failure code of the result, or "" on plain success.
func (r Result) Code() Code {
	return CodeOf(r.Err)
}
