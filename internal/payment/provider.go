package payment

import (
	"context"
	"net/http"
	"time"
)

// ChargeRequest captures the information required to open a charge with a
// payment channel.
type ChargeRequest struct {
	OrderID     string
	OrderNumber string
	Amount      int64
	Method      string
	ExpiresAt   time.Time
}

// ChargeResponse is the minimal information returned by a channel when a
// charge is opened.
type ChargeResponse struct {
	Provider    string
	Reference   string
	RedirectURL string
}

// Result is the normalised outcome reported by a channel callback.
type Result string

const (
	ResultPaid    Result = "PAID"
	ResultPending Result = "PENDING"
	ResultFailed  Result = "FAILED"
	ResultExpired Result = "EXPIRED"
)

// Confirmation contains the normalised data extracted from a webhook
// notification after signature verification.
type Confirmation struct {
	Valid   bool
	OrderID string
	Amount  int64
	Result  Result
	Payload []byte
	Err     error
}

// Provider abstracts the operations required from an upstream payment channel.
type Provider interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResponse, error)
	VerifyWebhook(r *http.Request, body []byte) (Confirmation, error)
}
