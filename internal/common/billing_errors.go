package common

import "net/http"

// Error codes shared across the billing, cart, checkout, and payment
// handlers. Handlers map these onto the canonical error body in response.go.
const (
	CodeAlreadyPaid         = "ALREADY_PAID"
	CodeStaleCart           = "STALE_CART"
	CodeReservationConflict = "RESERVATION_CONFLICT"
	CodeChannelTimeout      = "CHANNEL_TIMEOUT"
	CodeChannelRejected     = "CHANNEL_REJECTED"
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeNotFound            = "NOT_FOUND"
	CodeValidation          = "VALIDATION_ERROR"
	CodeInternal            = "INTERNAL"
)

// ErrAlreadyPaid is returned when a settled record is added to a cart or
// referenced by a new checkout.
func ErrAlreadyPaid(err error) *AppError {
	return &AppError{Code: CodeAlreadyPaid, Message: "billing record is already paid", HTTPStatus: http.StatusConflict, Err: err}
}

// ErrStaleCart carries the refreshed cart summary so the caller can
// re-confirm the corrected amounts.
func ErrStaleCart(summary any) *AppError {
	return &AppError{
		Code:       CodeStaleCart,
		Message:    "cart amounts changed since selection, please re-confirm",
		HTTPStatus: http.StatusConflict,
		Details:    summary,
	}
}

// ErrReservationConflict is surfaced when another order holds one of the
// requested billing records. Not retried automatically.
func ErrReservationConflict(err error) *AppError {
	return &AppError{Code: CodeReservationConflict, Message: "one of the items was just paid by another order", HTTPStatus: http.StatusConflict, Err: err}
}

// ErrChannelTimeout marks a payment channel call that exceeded its deadline.
// The order stays pending for the reconciliation sweep.
func ErrChannelTimeout(err error) *AppError {
	return &AppError{Code: CodeChannelTimeout, Message: "payment channel did not respond in time", HTTPStatus: http.StatusGatewayTimeout, Err: err}
}

// ErrChannelRejected marks a definitive rejection from the payment channel.
func ErrChannelRejected(err error) *AppError {
	return &AppError{Code: CodeChannelRejected, Message: "payment channel rejected the order", HTTPStatus: http.StatusBadGateway, Err: err}
}

// ErrInvalidAmount is returned when a confirmation reports an amount that
// does not match the order total.
func ErrInvalidAmount(err error) *AppError {
	return &AppError{Code: CodeInvalidAmount, Message: "confirmed amount does not match order total", HTTPStatus: http.StatusUnprocessableEntity, Err: err}
}
