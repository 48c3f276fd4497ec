package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and local development. It
// mirrors the postgres implementation's semantics, including optimistic
// version checks, reservation conflicts and transactional rollback.
type Memory struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	records   map[uuid.UUID]BillingRecord
	carts     map[uuid.UUID]Cart
	cartItems map[uuid.UUID][]CartItem
	orders    map[uuid.UUID]Order
	orderSeq  []uuid.UUID
	items     map[uuid.UUID][]OrderItem
	events    []DomainEvent

	Now func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records:   make(map[uuid.UUID]BillingRecord),
		carts:     make(map[uuid.UUID]Cart),
		cartItems: make(map[uuid.UUID][]CartItem),
		orders:    make(map[uuid.UUID]Order),
		items:     make(map[uuid.UUID][]OrderItem),
	}
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

type memorySnapshot struct {
	records   map[uuid.UUID]BillingRecord
	carts     map[uuid.UUID]Cart
	cartItems map[uuid.UUID][]CartItem
	orders    map[uuid.UUID]Order
	orderSeq  []uuid.UUID
	items     map[uuid.UUID][]OrderItem
	events    []DomainEvent
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := memorySnapshot{
		records:   make(map[uuid.UUID]BillingRecord, len(m.records)),
		carts:     make(map[uuid.UUID]Cart, len(m.carts)),
		cartItems: make(map[uuid.UUID][]CartItem, len(m.cartItems)),
		orders:    make(map[uuid.UUID]Order, len(m.orders)),
		orderSeq:  append([]uuid.UUID(nil), m.orderSeq...),
		items:     make(map[uuid.UUID][]OrderItem, len(m.items)),
		events:    append([]DomainEvent(nil), m.events...),
	}
	for k, v := range m.records {
		s.records[k] = v
	}
	for k, v := range m.carts {
		s.carts[k] = v
	}
	for k, v := range m.cartItems {
		s.cartItems[k] = append([]CartItem(nil), v...)
	}
	for k, v := range m.orders {
		s.orders[k] = v
	}
	for k, v := range m.items {
		s.items[k] = append([]OrderItem(nil), v...)
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = s.records
	m.carts = s.carts
	m.cartItems = s.cartItems
	m.orders = s.orders
	m.orderSeq = s.orderSeq
	m.items = s.items
	m.events = s.events
}

// WithinTx serializes transactions and rolls the whole store back when fn
// fails, so partially-applied money mutations are never observable.
func (m *Memory) WithinTx(ctx context.Context, fn func(Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *Memory) CreateBillingRecord(ctx context.Context, rec BillingRecord) (BillingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	for _, existing := range m.records {
		if existing.StudentID == rec.StudentID && existing.Period == rec.Period && existing.Category == rec.Category {
			return BillingRecord{}, fmt.Errorf("record for %s %s: %w", rec.StudentID, rec.Period, ErrDuplicate)
		}
	}
	now := m.now()
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = RecordUnpaid
	}
	m.records[rec.ID] = rec
	return rec, nil
}

func (m *Memory) GetBillingRecord(ctx context.Context, id uuid.UUID) (BillingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return BillingRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ListOutstandingByGuardian(ctx context.Context, guardianID uuid.UUID) ([]BillingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []BillingRecord
	for _, rec := range m.records {
		if rec.GuardianID == guardianID && !rec.Settled() {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

func (m *Memory) ListRecordsByPeriod(ctx context.Context, p Period) ([]BillingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []BillingRecord
	for _, rec := range m.records {
		if rec.Period == p {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

func (m *Memory) ListOverdueUnpaid(ctx context.Context, asOf time.Time, limit int) ([]BillingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []BillingRecord
	for _, rec := range m.records {
		if rec.Settled() || rec.Status == RecordPendingVerification {
			continue
		}
		if rec.DueDate.Before(asOf) {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ReserveBillingRecords(ctx context.Context, orderID uuid.UUID, recordIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range recordIDs {
		rec, ok := m.records[id]
		if !ok {
			return fmt.Errorf("record %s: %w", id, ErrNotFound)
		}
		if rec.Settled() || rec.Status == RecordPendingVerification {
			return fmt.Errorf("record %s already settled or pending: %w", id, ErrReservationConflict)
		}
		if rec.ReservedBy != nil && *rec.ReservedBy != orderID {
			return fmt.Errorf("record %s held by another order: %w", id, ErrReservationConflict)
		}
	}
	now := m.now()
	for _, id := range recordIDs {
		rec := m.records[id]
		oid := orderID
		rec.ReservedBy = &oid
		rec.Version++
		rec.UpdatedAt = now
		m.records[id] = rec
	}
	return nil
}

func (m *Memory) ReleaseBillingRecords(ctx context.Context, orderID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, rec := range m.records {
		if rec.ReservedBy == nil || *rec.ReservedBy != orderID {
			continue
		}
		rec.ReservedBy = nil
		if rec.Status == RecordPendingVerification {
			if rec.PaidAmount > 0 {
				rec.Status = RecordPartial
			} else {
				rec.Status = RecordUnpaid
			}
		}
		rec.Version++
		rec.UpdatedAt = now
		m.records[id] = rec
	}
	return nil
}

func (m *Memory) SetRecordStatus(ctx context.Context, recordID uuid.UUID, status RecordStatus, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok {
		return ErrNotFound
	}
	if rec.Version != expectedVersion {
		return ErrVersionConflict
	}
	rec.Status = status
	rec.Version++
	rec.UpdatedAt = m.now()
	m.records[recordID] = rec
	return nil
}

func (m *Memory) ApplyPayment(ctx context.Context, p ApplyPaymentParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[p.RecordID]
	if !ok {
		return ErrNotFound
	}
	if rec.Version != p.ExpectedVersion {
		return ErrVersionConflict
	}
	rec.PaidAmount += p.Amount
	rec.Fine = p.Fine
	paidAt := p.PaidAt
	rec.PaidAt = &paidAt
	rec.Status = p.Status
	rec.ReservedBy = nil
	rec.Version++
	rec.UpdatedAt = m.now()
	m.records[p.RecordID] = rec
	return nil
}

func (m *Memory) GetCartByGuardian(ctx context.Context, guardianID uuid.UUID) (Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.carts {
		if c.GuardianID == guardianID {
			return c, nil
		}
	}
	return Cart{}, ErrNotFound
}

func (m *Memory) CreateCart(ctx context.Context, guardianID uuid.UUID, expiresAt time.Time) (Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	c := Cart{ID: uuid.New(), GuardianID: guardianID, ExpiresAt: expiresAt, CreatedAt: now, UpdatedAt: now}
	m.carts[c.ID] = c
	return c, nil
}

func (m *Memory) TouchCart(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[cartID]
	if !ok {
		return ErrNotFound
	}
	c.ExpiresAt = expiresAt
	c.UpdatedAt = m.now()
	m.carts[cartID] = c
	return nil
}

func (m *Memory) UpsertCartItem(ctx context.Context, item CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.carts[item.CartID]; !ok {
		return ErrNotFound
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = m.now()
	}
	items := m.cartItems[item.CartID]
	for i, it := range items {
		if it.BillingRecordID == item.BillingRecordID {
			item.ID = it.ID
			items[i] = item
			m.cartItems[item.CartID] = items
			return nil
		}
	}
	m.cartItems[item.CartID] = append(items, item)
	return nil
}

func (m *Memory) DeleteCartItem(ctx context.Context, cartID, recordID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.cartItems[cartID]
	for i, it := range items {
		if it.BillingRecordID == recordID {
			m.cartItems[cartID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) ListCartItems(ctx context.Context, cartID uuid.UUID) ([]CartItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]CartItem(nil), m.cartItems[cartID]...), nil
}

func (m *Memory) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cartItems, cartID)
	return nil
}

func (m *Memory) DeleteExpiredCarts(ctx context.Context, asOf time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, c := range m.carts {
		if c.ExpiresAt.Before(asOf) {
			delete(m.carts, id)
			delete(m.cartItems, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreateOrder(ctx context.Context, ord Order, items []OrderItem) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ord.ID == uuid.Nil {
		ord.ID = uuid.New()
	}
	if ord.CreatedAt.IsZero() {
		ord.CreatedAt = m.now()
	}
	if ord.Status == "" {
		ord.Status = OrderPending
	}
	m.orders[ord.ID] = ord
	m.orderSeq = append(m.orderSeq, ord.ID)
	copied := make([]OrderItem, len(items))
	for i, it := range items {
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		it.OrderID = ord.ID
		copied[i] = it
	}
	m.items[ord.ID] = copied
	return ord, nil
}

func (m *Memory) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ord, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return ord, nil
}

func (m *Memory) GetOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]OrderItem(nil), m.items[orderID]...), nil
}

func (m *Memory) ListOrdersByGuardian(ctx context.Context, guardianID uuid.UUID, limit, offset int) ([]Order, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []Order
	for i := len(m.orderSeq) - 1; i >= 0; i-- {
		ord := m.orders[m.orderSeq[i]]
		if ord.GuardianID == guardianID {
			all = append(all, ord)
		}
	}
	total := int64(len(all))
	return paginate(all, limit, offset), total, nil
}

func (m *Memory) ListOrders(ctx context.Context, f OrderFilter) ([]Order, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []Order
	for i := len(m.orderSeq) - 1; i >= 0; i-- {
		ord := m.orders[m.orderSeq[i]]
		if f.Status != "" && ord.Status != f.Status {
			continue
		}
		if f.Method != "" && !strings.EqualFold(ord.PaymentMethod, f.Method) {
			continue
		}
		all = append(all, ord)
	}
	total := int64(len(all))
	return paginate(all, f.Limit, f.Offset), total, nil
}

func (m *Memory) TransitionOrder(ctx context.Context, id uuid.UUID, from, to OrderStatus, confirmedAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ord, ok := m.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if ord.Status != from {
		return false, nil
	}
	ord.Status = to
	if confirmedAt != nil {
		t := *confirmedAt
		ord.ConfirmedAt = &t
	}
	m.orders[id] = ord
	return true, nil
}

func (m *Memory) SetOrderChannelRef(ctx context.Context, id uuid.UUID, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ord, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	ord.ChannelRef = ref
	m.orders[id] = ord
	return nil
}

func (m *Memory) SetOrderProofNote(ctx context.Context, id uuid.UUID, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ord, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	ord.ProofNote = note
	m.orders[id] = ord
	return nil
}

func (m *Memory) ListExpiredPendingOrders(ctx context.Context, asOf time.Time, limit int) ([]Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Order
	for _, id := range m.orderSeq {
		ord := m.orders[id]
		if ord.Status == OrderPending && !ord.ExpiresAt.IsZero() && ord.ExpiresAt.Before(asOf) {
			out = append(out, ord)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) InsertDomainEvent(ctx context.Context, topic string, aggregateID uuid.UUID, payload []byte) (DomainEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := DomainEvent{
		ID:          uuid.New(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     append([]byte(nil), payload...),
		OccurredAt:  m.now(),
	}
	m.events = append(m.events, ev)
	return ev, nil
}

func (m *Memory) OrderStatsInWindow(ctx context.Context, from, to time.Time) (OrderStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stats OrderStats
	for _, ord := range m.orders {
		if !inWindow(ord.CreatedAt, from, to) {
			continue
		}
		stats.TotalCount++
		if ord.Status == OrderPaid {
			stats.PaidCount++
			stats.Revenue += ord.TotalAmount
		}
	}
	return stats, nil
}

func (m *Memory) MethodStatsInWindow(ctx context.Context, from, to time.Time) ([]MethodStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byMethod := map[string]*MethodStat{}
	for _, ord := range m.orders {
		if !inWindow(ord.CreatedAt, from, to) {
			continue
		}
		method := strings.ToLower(ord.PaymentMethod)
		st, ok := byMethod[method]
		if !ok {
			st = &MethodStat{Method: method}
			byMethod[method] = st
		}
		st.TotalCount++
		if ord.Status == OrderPaid {
			st.PaidCount++
			st.Revenue += ord.TotalAmount
		}
	}
	out := make([]MethodStat, 0, len(byMethod))
	for _, st := range byMethod {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revenue > out[j].Revenue })
	return out, nil
}

func (m *Memory) CategoryStatsInWindow(ctx context.Context, from, to time.Time) ([]CategoryStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byCat := map[Category]*CategoryStat{}
	for id, ord := range m.orders {
		if ord.Status != OrderPaid || !inWindow(ord.CreatedAt, from, to) {
			continue
		}
		for _, it := range m.items[id] {
			st, ok := byCat[it.Category]
			if !ok {
				st = &CategoryStat{Category: it.Category}
				byCat[it.Category] = st
			}
			st.Count++
			st.Revenue += it.Amount
		}
	}
	out := make([]CategoryStat, 0, len(byCat))
	for _, st := range byCat {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revenue > out[j].Revenue })
	return out, nil
}

func (m *Memory) TopPayersInWindow(ctx context.Context, from, to time.Time, limit int) ([]PayerStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byStudent := map[uuid.UUID]*PayerStat{}
	for id, ord := range m.orders {
		if ord.Status != OrderPaid || !inWindow(ord.CreatedAt, from, to) {
			continue
		}
		seen := map[uuid.UUID]bool{}
		for _, it := range m.items[id] {
			st, ok := byStudent[it.StudentID]
			if !ok {
				st = &PayerStat{StudentID: it.StudentID, StudentName: it.StudentName}
				byStudent[it.StudentID] = st
			}
			st.TotalPaid += it.Amount
			if !seen[it.StudentID] {
				st.OrderCount++
				seen[it.StudentID] = true
			}
		}
	}
	out := make([]PayerStat, 0, len(byStudent))
	for _, st := range byStudent {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalPaid > out[j].TotalPaid })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) DailyStatsInWindow(ctx context.Context, from, to time.Time) ([]DailyStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byDay := map[time.Time]*DailyStat{}
	for _, ord := range m.orders {
		if ord.Status != OrderPaid || !inWindow(ord.CreatedAt, from, to) {
			continue
		}
		day := ord.CreatedAt.UTC().Truncate(24 * time.Hour)
		st, ok := byDay[day]
		if !ok {
			st = &DailyStat{Day: day}
			byDay[day] = st
		}
		st.Count++
		st.Revenue += ord.TotalAmount
	}
	out := make([]DailyStat, 0, len(byDay))
	for _, st := range byDay {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func paginate(orders []Order, limit, offset int) []Order {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(orders) {
		return nil
	}
	orders = orders[offset:]
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return append([]Order(nil), orders...)
}

func sortRecords(recs []BillingRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].DueDate.Equal(recs[j].DueDate) {
			return recs[i].DueDate.Before(recs[j].DueDate)
		}
		return recs[i].ID.String() < recs[j].ID.String()
	})
}
