package payment

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/common"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/obs"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

// Webhook handles payment channel callbacks: signature verification, replay
// protection, and settlement through the reconciliation service.
type Webhook struct {
	Svc       *Service
	Providers map[string]Provider
	Replay    *redis.Client
	ReplayTTL time.Duration
}

// Handle processes a callback for the provider named in the URL.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Providers == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	providerKey := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	provider, ok := h.Providers[providerKey]
	if !ok {
		common.JSONError(w, http.StatusNotFound, "PROVIDER_NOT_SUPPORTED", "unknown provider", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	confirmation, err := provider.VerifyWebhook(r, body)
	if err != nil {
		h.metric(providerKey, "error")
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}
	if !confirmation.Valid {
		h.metric(providerKey, "invalid_signature")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	if h.Replay != nil && h.ReplayTTL > 0 {
		key := fmt.Sprintf("wh:%s:%s", providerKey, common.Sha256Hex(string(body)))
		ok, err := h.Replay.SetNX(r.Context(), key, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !ok {
			h.metric(providerKey, "replay")
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook", nil)
			return
		}
	}
	orderID, err := uuid.Parse(confirmation.OrderID)
	if err != nil {
		h.metric(providerKey, "invalid_order")
		common.JSONError(w, http.StatusBadRequest, "INVALID_ORDER_ID", "invalid order identifier", nil)
		return
	}

	ctx := r.Context()
	switch confirmation.Result {
	case ResultPaid:
		err = h.Svc.Confirm(ctx, orderID, confirmation.Amount, "webhook:"+providerKey)
	case ResultFailed:
		err = h.Svc.Fail(ctx, orderID, "channel reported failure", "webhook:"+providerKey)
	case ResultExpired:
		err = h.Svc.Expire(ctx, orderID)
	default:
		// channel still pending, nothing to reconcile yet
		h.metric(providerKey, "pending")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			h.metric(providerKey, "unknown_order")
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "order not found", nil)
		case errors.Is(err, ErrInvalidAmount):
			h.metric(providerKey, "amount_mismatch")
			common.JSONError(w, http.StatusUnprocessableEntity, common.CodeInvalidAmount, "provider amount mismatch", nil)
		case errors.Is(err, ErrOrderClosed):
			h.metric(providerKey, "order_closed")
			common.JSONError(w, http.StatusConflict, "ORDER_CLOSED", err.Error(), nil)
		default:
			h.metric(providerKey, "error")
			common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "settlement failed", nil)
		}
		return
	}
	h.metric(providerKey, "success")
	w.WriteHeader(http.StatusNoContent)
}

func (h Webhook) metric(provider, result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(provider, result).Inc()
	}
}
