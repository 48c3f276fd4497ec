package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// Midtrans implements the Provider interface for Midtrans SNAP style
// integrations.
type Midtrans struct {
	ServerKey string
	BaseURL   string
	Sandbox   bool
}

// Charge issues a minimal SNAP-like response without performing a network
// call. The real integration calls the Midtrans API; tests drive the rest of
// the flow with the deterministic token.
func (m Midtrans) Charge(_ context.Context, req ChargeRequest) (ChargeResponse, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return ChargeResponse{}, errors.New("order id is required")
	}
	token := fmt.Sprintf("SNAP-%s", req.OrderID)
	return ChargeResponse{
		Provider:    "midtrans",
		Reference:   token,
		RedirectURL: fmt.Sprintf("%s/snap/v2/vtweb/%s", strings.TrimRight(m.snapHost(), "/"), token),
	}, nil
}

func (m Midtrans) snapHost() string {
	host := strings.TrimSpace(m.BaseURL)
	if host == "" {
		if m.Sandbox {
			return "https://app.sandbox.midtrans.com"
		}
		return "https://app.midtrans.com"
	}
	return host
}

// VerifyWebhook validates the Midtrans signature and normalises the payload.
// The signature is SHA512(order_id + status_code + gross_amount + server_key).
func (m Midtrans) VerifyWebhook(_ *http.Request, body []byte) (Confirmation, error) {
	var payload struct {
		OrderID           string `json:"order_id"`
		StatusCode        string `json:"status_code"`
		GrossAmount       string `json:"gross_amount"`
		SignatureKey      string `json:"signature_key"`
		TransactionStatus string `json:"transaction_status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Confirmation{Valid: false, Err: err}, nil
	}
	if payload.OrderID == "" {
		return Confirmation{Valid: false, Err: errors.New("missing order id")}, nil
	}

	expected := m.computeSignature(payload.OrderID, payload.StatusCode, payload.GrossAmount)
	provided := strings.TrimSpace(payload.SignatureKey)
	if expected == "" || provided == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
		return Confirmation{Valid: false, Err: errors.New("invalid signature")}, nil
	}

	amount, err := parseMidtransAmount(payload.GrossAmount)
	if err != nil {
		return Confirmation{Valid: false, Err: err}, nil
	}

	return Confirmation{
		Valid:   true,
		OrderID: payload.OrderID,
		Amount:  amount,
		Result:  normaliseMidtransStatus(payload.TransactionStatus),
		Payload: body,
	}, nil
}

func (m Midtrans) computeSignature(orderID, statusCode, grossAmount string) string {
	key := strings.TrimSpace(m.ServerKey)
	if key == "" {
		return ""
	}
	mac := hmac.New(sha512.New, []byte(key))
	mac.Write([]byte(orderID))
	mac.Write([]byte(statusCode))
	mac.Write([]byte(grossAmount))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseMidtransAmount(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	if !strings.Contains(trimmed, ".") {
		return strconv.ParseInt(trimmed, 10, 64)
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f)), nil
}

func normaliseMidtransStatus(status string) Result {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "capture", "settlement":
		return ResultPaid
	case "pending":
		return ResultPending
	case "deny", "cancel":
		return ResultFailed
	case "expire":
		return ResultExpired
	default:
		return ResultPending
	}
}
