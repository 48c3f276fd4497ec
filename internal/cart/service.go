package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/policy"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

// ErrNotFound indicates the requested cart could not be located.
var ErrNotFound = errors.New("cart not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// ErrAlreadyPaid is returned when a settled billing record is added to a cart.
var ErrAlreadyPaid = errors.New("billing record already paid")

// Service consolidates a guardian's selected billing records into one payable
// cart. Amounts are snapshotted at add-time; checkout re-validates them.
type Service struct {
	Store store.Store
	Rule  policy.Rule
	TTL   time.Duration
	Now   func() time.Time
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 24 * time.Hour
	}
	return s.TTL
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// EnsureCart loads or creates the guardian's active cart and extends its TTL.
func (s *Service) EnsureCart(ctx context.Context, guardianID uuid.UUID) (store.Cart, error) {
	if s == nil || s.Store == nil {
		return store.Cart{}, errors.New("cart service not configured")
	}
	if guardianID == uuid.Nil {
		return store.Cart{}, fmt.Errorf("guardian id required: %w", ErrInvalidInput)
	}
	expires := s.now().Add(s.ttl())
	cart, err := s.Store.GetCartByGuardian(ctx, guardianID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.Store.CreateCart(ctx, guardianID, expires)
		}
		return store.Cart{}, err
	}
	if cart.ExpiresAt.Before(s.now()) {
		_ = s.Store.ClearCart(ctx, cart.ID)
	}
	_ = s.Store.TouchCart(ctx, cart.ID, expires)
	cart.ExpiresAt = expires
	return cart, nil
}

// AddItem snapshots the record's current outstanding amount into the cart.
// Adding the same record twice refreshes the snapshot instead of duplicating.
func (s *Service) AddItem(ctx context.Context, guardianID, recordID uuid.UUID) error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	rec, err := s.Store.GetBillingRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.GuardianID != guardianID {
		return fmt.Errorf("record belongs to another guardian: %w", store.ErrNotFound)
	}
	if rec.Settled() {
		return fmt.Errorf("record %s: %w", recordID, ErrAlreadyPaid)
	}
	if rec.Status == store.RecordPendingVerification {
		return fmt.Errorf("record %s awaiting verification: %w", recordID, ErrInvalidInput)
	}
	cart, err := s.EnsureCart(ctx, guardianID)
	if err != nil {
		return err
	}
	now := s.now()
	return s.Store.UpsertCartItem(ctx, store.CartItem{
		CartID:          cart.ID,
		BillingRecordID: rec.ID,
		StudentID:       rec.StudentID,
		StudentName:     rec.StudentName,
		Title:           rec.Title,
		Category:        rec.Category,
		Period:          rec.Period,
		SnapshotAmount:  s.Rule.Outstanding(rec, now),
		AddedAt:         now,
	})
}

// RemoveItem drops the record from the cart. Removing an absent record is a
// no-op.
func (s *Service) RemoveItem(ctx context.Context, guardianID, recordID uuid.UUID) error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	cart, err := s.Store.GetCartByGuardian(ctx, guardianID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.Store.DeleteCartItem(ctx, cart.ID, recordID)
}

// Line is one cart entry enriched with the record's live amount.
type Line struct {
	BillingRecordID uuid.UUID      `json:"billingRecordId"`
	StudentID       uuid.UUID      `json:"studentId"`
	StudentName     string         `json:"studentName"`
	Title           string         `json:"title"`
	Category        store.Category `json:"category"`
	Period          string         `json:"period"`
	PeriodRaw       store.Period   `json:"-"`
	SnapshotAmount  int64          `json:"snapshotAmount"`
	CurrentAmount   int64          `json:"currentAmount"`
	Invalid         bool           `json:"invalid,omitempty"`
	Reason          string         `json:"reason,omitempty"`
}

// StudentSubtotal preserves per-student attribution for receipts.
type StudentSubtotal struct {
	StudentID   uuid.UUID `json:"studentId"`
	StudentName string    `json:"studentName"`
	Subtotal    int64     `json:"subtotal"`
}

// Summary is the cart view returned to the guardian and re-validated at
// checkout. Stale is set when any line's live amount exceeds its snapshot or
// its record was settled elsewhere.
type Summary struct {
	CartID   uuid.UUID         `json:"cartId"`
	Lines    []Line            `json:"items"`
	Students []StudentSubtotal `json:"students"`
	Total    int64             `json:"total"`
	Stale    bool              `json:"stale"`
}

// Summarize builds the cart summary against live record state. Records that
// have been deleted or cancelled since selection are marked invalid rather
// than dropped, so the caller can explain the discrepancy.
func (s *Service) Summarize(ctx context.Context, guardianID uuid.UUID) (Summary, error) {
	if s == nil || s.Store == nil {
		return Summary{}, errors.New("cart service not configured")
	}
	cart, err := s.Store.GetCartByGuardian(ctx, guardianID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Summary{}, ErrNotFound
		}
		return Summary{}, err
	}
	items, err := s.Store.ListCartItems(ctx, cart.ID)
	if err != nil {
		return Summary{}, err
	}
	now := s.now()
	summary := Summary{CartID: cart.ID, Lines: make([]Line, 0, len(items))}
	perStudent := map[uuid.UUID]*StudentSubtotal{}
	var studentOrder []uuid.UUID

	for _, it := range items {
		line := Line{
			BillingRecordID: it.BillingRecordID,
			StudentID:       it.StudentID,
			StudentName:     it.StudentName,
			Title:           it.Title,
			Category:        it.Category,
			Period:          it.Period.String(),
			PeriodRaw:       it.Period,
			SnapshotAmount:  it.SnapshotAmount,
		}
		rec, err := s.Store.GetBillingRecord(ctx, it.BillingRecordID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			line.Invalid = true
			line.Reason = "record no longer exists"
		case err != nil:
			return Summary{}, err
		case rec.Status == store.RecordCancelled:
			line.Invalid = true
			line.Reason = "record was cancelled"
		case rec.Settled():
			line.Invalid = true
			line.Reason = "record already paid"
			summary.Stale = true
		default:
			line.CurrentAmount = s.Rule.Outstanding(rec, now)
			if line.CurrentAmount > line.SnapshotAmount {
				summary.Stale = true
			}
		}
		summary.Lines = append(summary.Lines, line)
		if line.Invalid {
			continue
		}
		summary.Total += line.SnapshotAmount
		if _, ok := perStudent[line.StudentID]; !ok {
			perStudent[line.StudentID] = &StudentSubtotal{StudentID: line.StudentID, StudentName: line.StudentName}
			studentOrder = append(studentOrder, line.StudentID)
		}
		perStudent[line.StudentID].Subtotal += line.SnapshotAmount
	}
	for _, id := range studentOrder {
		summary.Students = append(summary.Students, *perStudent[id])
	}
	return summary, nil
}

// RefreshSnapshots re-quotes every line to its live amount. Used after a
// stale-cart rejection so the guardian can re-confirm corrected amounts.
func (s *Service) RefreshSnapshots(ctx context.Context, guardianID uuid.UUID) (Summary, error) {
	if s == nil || s.Store == nil {
		return Summary{}, errors.New("cart service not configured")
	}
	cart, err := s.Store.GetCartByGuardian(ctx, guardianID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Summary{}, ErrNotFound
		}
		return Summary{}, err
	}
	items, err := s.Store.ListCartItems(ctx, cart.ID)
	if err != nil {
		return Summary{}, err
	}
	now := s.now()
	for _, it := range items {
		rec, err := s.Store.GetBillingRecord(ctx, it.BillingRecordID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				_ = s.Store.DeleteCartItem(ctx, cart.ID, it.BillingRecordID)
				continue
			}
			return Summary{}, err
		}
		if rec.Settled() || rec.Status == store.RecordCancelled {
			_ = s.Store.DeleteCartItem(ctx, cart.ID, it.BillingRecordID)
			continue
		}
		it.SnapshotAmount = s.Rule.Outstanding(rec, now)
		it.AddedAt = now
		if err := s.Store.UpsertCartItem(ctx, it); err != nil {
			return Summary{}, err
		}
	}
	return s.Summarize(ctx, guardianID)
}

// Clear empties the cart after a successful checkout.
func (s *Service) Clear(ctx context.Context, guardianID uuid.UUID) error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	cart, err := s.Store.GetCartByGuardian(ctx, guardianID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.Store.ClearCart(ctx, cart.ID)
}
