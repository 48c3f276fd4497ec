package analytics

import (
	"net/http"
	"time"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/common"
)

// Handler exposes the admin analytics endpoint.
type Handler struct {
	Svc *Service
}

// Summary returns the dashboard summary for the requested window. Without
// query parameters it covers the current month to date; `from`/`to` accept
// RFC3339 bounds and `days` selects a trailing window.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return
	}
	if !common.IsAdmin(r.Context()) {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "admin access required", nil)
		return
	}

	query := r.URL.Query()
	fromStr := query.Get("from")
	toStr := query.Get("to")
	now := h.Svc.now().UTC()

	var (
		out Summary
		err error
	)
	switch {
	case fromStr != "" && toStr != "":
		from, perr := time.Parse(time.RFC3339, fromStr)
		if perr != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid from date", nil)
			return
		}
		to, perr := time.Parse(time.RFC3339, toStr)
		if perr != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid to date", nil)
			return
		}
		if !from.Before(to) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "from must be before to", nil)
			return
		}
		out, err = h.Svc.Summarize(r.Context(), from, to)
	case query.Get("days") != "":
		days := common.AtoiDefault(query.Get("days"), 30)
		if days <= 0 {
			days = 30
		}
		out, err = h.Svc.Summarize(r.Context(), now.AddDate(0, 0, -days), now)
	default:
		out, err = h.Svc.MonthToDate(r.Context())
	}
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_ERROR", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}
