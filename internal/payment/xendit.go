package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Xendit implements the Provider interface for a simplified invoice/e-wallet
// integration.
type Xendit struct {
	SecretKey string
	BaseURL   string
}

// Charge builds a deterministic invoice reference for the order.
func (x Xendit) Charge(_ context.Context, req ChargeRequest) (ChargeResponse, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return ChargeResponse{}, errors.New("order id is required")
	}
	token := fmt.Sprintf("xendit-%s", req.OrderID)
	host := strings.TrimRight(strings.TrimSpace(x.BaseURL), "/")
	if host == "" {
		host = "https://checkout-stub.xendit"
	}
	return ChargeResponse{
		Provider:    "xendit",
		Reference:   token,
		RedirectURL: fmt.Sprintf("%s/%s", host, token),
	}, nil
}

// VerifyWebhook validates the callback signature header and normalises the
// payload. The signature is an HMAC-SHA256 of the raw body.
func (x Xendit) VerifyWebhook(r *http.Request, body []byte) (Confirmation, error) {
	expected := x.computeSignature(body)
	provided := strings.TrimSpace(r.Header.Get("x-callback-signature"))
	if expected == "" || provided == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
		return Confirmation{Valid: false, Err: errors.New("invalid signature")}, nil
	}

	var payload struct {
		ExternalID string      `json:"external_id"`
		Amount     json.Number `json:"amount"`
		Status     string      `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Confirmation{Valid: false, Err: err}, nil
	}
	if payload.ExternalID == "" {
		return Confirmation{Valid: false, Err: errors.New("missing external id")}, nil
	}

	amount, _ := payload.Amount.Int64()
	if amount == 0 {
		if f, err := payload.Amount.Float64(); err == nil {
			amount = int64(f)
		}
	}

	return Confirmation{
		Valid:   true,
		OrderID: payload.ExternalID,
		Amount:  amount,
		Result:  normaliseXenditStatus(payload.Status),
		Payload: body,
	}, nil
}

func (x Xendit) computeSignature(body []byte) string {
	key := strings.TrimSpace(x.SecretKey)
	if key == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func normaliseXenditStatus(status string) Result {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid", "settled", "success":
		return ResultPaid
	case "expired":
		return ResultExpired
	case "failed", "canceled":
		return ResultFailed
	default:
		return ResultPending
	}
}
