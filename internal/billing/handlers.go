package billing

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/common"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

// Handler wires the billing service to HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// ListOutstanding returns the authenticated guardian's unsettled records.
func (h *Handler) ListOutstanding(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "billing service not configured", nil)
		return
	}
	guardianID, ok := common.GuardianID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	views, err := h.Svc.ListOutstanding(r.Context(), guardianID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to load billing records", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}

type generatePeriodRequest struct {
	Month   int    `json:"month" validate:"required,min=1,max=12"`
	Year    int    `json:"year" validate:"required,min=2000,max=2200"`
	Title   string `json:"title" validate:"required"`
	DueDate string `json:"dueDate" validate:"required"`
	Records []struct {
		StudentID   string `json:"studentId" validate:"required,uuid4"`
		GuardianID  string `json:"guardianId" validate:"required,uuid4"`
		StudentName string `json:"studentName"`
		Category    string `json:"category"`
		BaseAmount  int64  `json:"baseAmount" validate:"required,gt=0"`
		Discount    int64  `json:"discount" validate:"gte=0"`
	} `json:"records" validate:"required,min=1,dive"`
}

// GeneratePeriod creates the billing records for a new period. Admin only.
func (h *Handler) GeneratePeriod(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "billing service not configured", nil)
		return
	}
	if !common.IsAdmin(r.Context()) {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "admin role required", nil)
		return
	}
	var payload generatePeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request", map[string]any{"error": err.Error()})
			return
		}
	}
	dueDate, err := time.Parse("2006-01-02", payload.DueDate)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "dueDate must be YYYY-MM-DD", nil)
		return
	}
	inputs := make([]GeneratePeriodInput, 0, len(payload.Records))
	for _, rec := range payload.Records {
		studentID, err := uuid.Parse(rec.StudentID)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid student id", nil)
			return
		}
		guardianID, err := uuid.Parse(rec.GuardianID)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid guardian id", nil)
			return
		}
		inputs = append(inputs, GeneratePeriodInput{
			StudentID:   studentID,
			GuardianID:  guardianID,
			StudentName: rec.StudentName,
			Category:    store.Category(rec.Category),
			BaseAmount:  rec.BaseAmount,
			Discount:    rec.Discount,
		})
	}
	result, err := h.Svc.GeneratePeriod(r.Context(), store.Period{Month: payload.Month, Year: payload.Year}, dueDate, payload.Title, inputs)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to generate billing period", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": result})
}
