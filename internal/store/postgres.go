package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so the same query code
// serves pooled and transactional access.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Store on top of pgx.
type Postgres struct {
	pool *pgxpool.Pool
	db   DBTX
}

// NewPostgres wraps the connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, db: pool}
}

// WithinTx begins a transaction and yields a transactional store view. Nested
// calls reuse the ambient transaction.
func (p *Postgres) WithinTx(ctx context.Context, fn func(Store) error) error {
	if p.pool == nil {
		return fn(p)
	}
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(&Postgres{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const billingRecordCols = `id, student_id, guardian_id, student_name, title, category,
	period_month, period_year, base_amount, discount, fine, paid_amount,
	due_date, paid_at, status, reserved_by, version, created_at, updated_at`

func scanBillingRecord(row pgx.Row) (BillingRecord, error) {
	var (
		rec        BillingRecord
		id         pgtype.UUID
		studentID  pgtype.UUID
		guardianID pgtype.UUID
		paidAt     pgtype.Timestamptz
		reservedBy pgtype.UUID
	)
	err := row.Scan(&id, &studentID, &guardianID, &rec.StudentName, &rec.Title, &rec.Category,
		&rec.Period.Month, &rec.Period.Year, &rec.BaseAmount, &rec.Discount, &rec.Fine, &rec.PaidAmount,
		&rec.DueDate, &paidAt, &rec.Status, &reservedBy, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BillingRecord{}, ErrNotFound
		}
		return BillingRecord{}, err
	}
	rec.ID = fromPg(id)
	rec.StudentID = fromPg(studentID)
	rec.GuardianID = fromPg(guardianID)
	if paidAt.Valid {
		t := paidAt.Time
		rec.PaidAt = &t
	}
	if reservedBy.Valid {
		u := fromPg(reservedBy)
		rec.ReservedBy = &u
	}
	return rec, nil
}

func (p *Postgres) CreateBillingRecord(ctx context.Context, rec BillingRecord) (BillingRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = RecordUnpaid
	}
	row := p.db.QueryRow(ctx, `
		INSERT INTO billing_records (id, student_id, guardian_id, student_name, title, category,
			period_month, period_year, base_amount, discount, fine, paid_amount, due_date, status, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0,0,$11,$12,1)
		RETURNING `+billingRecordCols,
		toPg(rec.ID), toPg(rec.StudentID), toPg(rec.GuardianID), rec.StudentName, rec.Title, rec.Category,
		rec.Period.Month, rec.Period.Year, rec.BaseAmount, rec.Discount, rec.DueDate, rec.Status)
	created, err := scanBillingRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return BillingRecord{}, fmt.Errorf("record for %s %s: %w", rec.StudentID, rec.Period, ErrDuplicate)
		}
		return BillingRecord{}, err
	}
	return created, nil
}

func (p *Postgres) GetBillingRecord(ctx context.Context, id uuid.UUID) (BillingRecord, error) {
	row := p.db.QueryRow(ctx, `SELECT `+billingRecordCols+` FROM billing_records WHERE id = $1`, toPg(id))
	return scanBillingRecord(row)
}

func (p *Postgres) listRecords(ctx context.Context, query string, args ...any) ([]BillingRecord, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BillingRecord
	for rows.Next() {
		rec, err := scanBillingRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) ListOutstandingByGuardian(ctx context.Context, guardianID uuid.UUID) ([]BillingRecord, error) {
	return p.listRecords(ctx, `
		SELECT `+billingRecordCols+` FROM billing_records
		WHERE guardian_id = $1 AND status NOT IN ('PAID','CANCELLED')
		ORDER BY due_date, id`, toPg(guardianID))
}

func (p *Postgres) ListRecordsByPeriod(ctx context.Context, per Period) ([]BillingRecord, error) {
	return p.listRecords(ctx, `
		SELECT `+billingRecordCols+` FROM billing_records
		WHERE period_month = $1 AND period_year = $2
		ORDER BY due_date, id`, per.Month, per.Year)
}

func (p *Postgres) ListOverdueUnpaid(ctx context.Context, asOf time.Time, limit int) ([]BillingRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	return p.listRecords(ctx, `
		SELECT `+billingRecordCols+` FROM billing_records
		WHERE status IN ('UNPAID','PARTIAL') AND due_date < $1
		ORDER BY due_date, id
		LIMIT $2`, asOf, limit)
}

func (p *Postgres) ReserveBillingRecords(ctx context.Context, orderID uuid.UUID, recordIDs []uuid.UUID) error {
	ids := make([]pgtype.UUID, len(recordIDs))
	for i, id := range recordIDs {
		ids[i] = toPg(id)
	}
	tag, err := p.db.Exec(ctx, `
		UPDATE billing_records
		SET reserved_by = $1, version = version + 1, updated_at = now()
		WHERE id = ANY($2)
		  AND (reserved_by IS NULL OR reserved_by = $1)
		  AND status IN ('UNPAID','PARTIAL')`, toPg(orderID), ids)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != int64(len(recordIDs)) {
		return fmt.Errorf("reserved %d of %d records: %w", tag.RowsAffected(), len(recordIDs), ErrReservationConflict)
	}
	return nil
}

func (p *Postgres) ReleaseBillingRecords(ctx context.Context, orderID uuid.UUID) error {
	_, err := p.db.Exec(ctx, `
		UPDATE billing_records
		SET reserved_by = NULL,
		    status = CASE
		        WHEN status = 'PENDING_VERIFICATION' AND paid_amount > 0 THEN 'PARTIAL'
		        WHEN status = 'PENDING_VERIFICATION' THEN 'UNPAID'
		        ELSE status
		    END,
		    version = version + 1,
		    updated_at = now()
		WHERE reserved_by = $1`, toPg(orderID))
	return err
}

func (p *Postgres) SetRecordStatus(ctx context.Context, recordID uuid.UUID, status RecordStatus, expectedVersion int64) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE billing_records
		SET status = $1, version = version + 1, updated_at = now()
		WHERE id = $2 AND version = $3`, status, toPg(recordID), expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (p *Postgres) ApplyPayment(ctx context.Context, ap ApplyPaymentParams) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE billing_records
		SET paid_amount = paid_amount + $1,
		    fine = $2,
		    paid_at = $3,
		    status = $4,
		    reserved_by = NULL,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $5 AND version = $6`,
		ap.Amount, ap.Fine, ap.PaidAt, ap.Status, toPg(ap.RecordID), ap.ExpectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (p *Postgres) GetCartByGuardian(ctx context.Context, guardianID uuid.UUID) (Cart, error) {
	row := p.db.QueryRow(ctx, `
		SELECT id, guardian_id, expires_at, created_at, updated_at
		FROM carts WHERE guardian_id = $1`, toPg(guardianID))
	return scanCart(row)
}

func scanCart(row pgx.Row) (Cart, error) {
	var (
		c   Cart
		id  pgtype.UUID
		gid pgtype.UUID
	)
	if err := row.Scan(&id, &gid, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, err
	}
	c.ID = fromPg(id)
	c.GuardianID = fromPg(gid)
	return c, nil
}

func (p *Postgres) CreateCart(ctx context.Context, guardianID uuid.UUID, expiresAt time.Time) (Cart, error) {
	row := p.db.QueryRow(ctx, `
		INSERT INTO carts (id, guardian_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, guardian_id, expires_at, created_at, updated_at`,
		toPg(uuid.New()), toPg(guardianID), expiresAt)
	return scanCart(row)
}

func (p *Postgres) TouchCart(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE carts SET expires_at = $1, updated_at = now() WHERE id = $2`, expiresAt, toPg(cartID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpsertCartItem(ctx context.Context, item CartItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	_, err := p.db.Exec(ctx, `
		INSERT INTO cart_items (id, cart_id, billing_record_id, student_id, student_name,
			title, category, period_month, period_year, snapshot_amount)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (cart_id, billing_record_id)
		DO UPDATE SET snapshot_amount = EXCLUDED.snapshot_amount, added_at = now()`,
		toPg(item.ID), toPg(item.CartID), toPg(item.BillingRecordID), toPg(item.StudentID), item.StudentName,
		item.Title, item.Category, item.Period.Month, item.Period.Year, item.SnapshotAmount)
	return err
}

func (p *Postgres) DeleteCartItem(ctx context.Context, cartID, recordID uuid.UUID) error {
	_, err := p.db.Exec(ctx, `
		DELETE FROM cart_items WHERE cart_id = $1 AND billing_record_id = $2`,
		toPg(cartID), toPg(recordID))
	return err
}

func (p *Postgres) ListCartItems(ctx context.Context, cartID uuid.UUID) ([]CartItem, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, cart_id, billing_record_id, student_id, student_name,
			title, category, period_month, period_year, snapshot_amount, added_at
		FROM cart_items WHERE cart_id = $1
		ORDER BY added_at, id`, toPg(cartID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CartItem
	for rows.Next() {
		var (
			it  CartItem
			id  pgtype.UUID
			cid pgtype.UUID
			rid pgtype.UUID
			sid pgtype.UUID
		)
		if err := rows.Scan(&id, &cid, &rid, &sid, &it.StudentName,
			&it.Title, &it.Category, &it.Period.Month, &it.Period.Year, &it.SnapshotAmount, &it.AddedAt); err != nil {
			return nil, err
		}
		it.ID = fromPg(id)
		it.CartID = fromPg(cid)
		it.BillingRecordID = fromPg(rid)
		it.StudentID = fromPg(sid)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *Postgres) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	_, err := p.db.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, toPg(cartID))
	return err
}

func (p *Postgres) DeleteExpiredCarts(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM carts WHERE expires_at < $1`, asOf)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const orderCols = `id, order_number, guardian_id, status, payment_method, total_amount,
	channel_ref, proof_note, created_at, expires_at, confirmed_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		ord         Order
		id          pgtype.UUID
		gid         pgtype.UUID
		channelRef  pgtype.Text
		proofNote   pgtype.Text
		confirmedAt pgtype.Timestamptz
	)
	err := row.Scan(&id, &ord.OrderNumber, &gid, &ord.Status, &ord.PaymentMethod, &ord.TotalAmount,
		&channelRef, &proofNote, &ord.CreatedAt, &ord.ExpiresAt, &confirmedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	ord.ID = fromPg(id)
	ord.GuardianID = fromPg(gid)
	ord.ChannelRef = channelRef.String
	ord.ProofNote = proofNote.String
	if confirmedAt.Valid {
		t := confirmedAt.Time
		ord.ConfirmedAt = &t
	}
	return ord, nil
}

func (p *Postgres) CreateOrder(ctx context.Context, ord Order, items []OrderItem) (Order, error) {
	if ord.ID == uuid.Nil {
		ord.ID = uuid.New()
	}
	if ord.Status == "" {
		ord.Status = OrderPending
	}
	row := p.db.QueryRow(ctx, `
		INSERT INTO orders (id, order_number, guardian_id, status, payment_method, total_amount, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING `+orderCols,
		toPg(ord.ID), ord.OrderNumber, toPg(ord.GuardianID), ord.Status, ord.PaymentMethod, ord.TotalAmount, ord.ExpiresAt)
	created, err := scanOrder(row)
	if err != nil {
		return Order{}, err
	}
	for _, it := range items {
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		if _, err := p.db.Exec(ctx, `
			INSERT INTO order_items (id, order_id, billing_record_id, student_id, student_name,
				title, category, period_month, period_year, amount)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			toPg(it.ID), toPg(created.ID), toPg(it.BillingRecordID), toPg(it.StudentID), it.StudentName,
			it.Title, it.Category, it.Period.Month, it.Period.Year, it.Amount); err != nil {
			return Order{}, err
		}
	}
	return created, nil
}

func (p *Postgres) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := p.db.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, toPg(id))
	return scanOrder(row)
}

func (p *Postgres) GetOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, order_id, billing_record_id, student_id, student_name,
			title, category, period_month, period_year, amount
		FROM order_items WHERE order_id = $1
		ORDER BY id`, toPg(orderID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderItem
	for rows.Next() {
		var (
			it  OrderItem
			id  pgtype.UUID
			oid pgtype.UUID
			rid pgtype.UUID
			sid pgtype.UUID
		)
		if err := rows.Scan(&id, &oid, &rid, &sid, &it.StudentName,
			&it.Title, &it.Category, &it.Period.Month, &it.Period.Year, &it.Amount); err != nil {
			return nil, err
		}
		it.ID = fromPg(id)
		it.OrderID = fromPg(oid)
		it.BillingRecordID = fromPg(rid)
		it.StudentID = fromPg(sid)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *Postgres) ListOrdersByGuardian(ctx context.Context, guardianID uuid.UUID, limit, offset int) ([]Order, int64, error) {
	var total int64
	if err := p.db.QueryRow(ctx, `SELECT count(*) FROM orders WHERE guardian_id = $1`, toPg(guardianID)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := p.db.Query(ctx, `
		SELECT `+orderCols+` FROM orders
		WHERE guardian_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, toPg(guardianID), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out, err := collectOrders(rows)
	return out, total, err
}

func (p *Postgres) ListOrders(ctx context.Context, f OrderFilter) ([]Order, int64, error) {
	status := string(f.Status)
	method := f.Method
	var total int64
	if err := p.db.QueryRow(ctx, `
		SELECT count(*) FROM orders
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR lower(payment_method) = lower($2))`,
		status, method).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.db.Query(ctx, `
		SELECT `+orderCols+` FROM orders
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR lower(payment_method) = lower($2))
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, status, method, limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out, err := collectOrders(rows)
	return out, total, err
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	var out []Order
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ord)
	}
	return out, rows.Err()
}

func (p *Postgres) TransitionOrder(ctx context.Context, id uuid.UUID, from, to OrderStatus, confirmedAt *time.Time) (bool, error) {
	var ts pgtype.Timestamptz
	if confirmedAt != nil {
		ts = pgtype.Timestamptz{Time: *confirmedAt, Valid: true}
	}
	tag, err := p.db.Exec(ctx, `
		UPDATE orders
		SET status = $1, confirmed_at = COALESCE($2, confirmed_at)
		WHERE id = $3 AND status = $4`, to, ts, toPg(id), from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) SetOrderChannelRef(ctx context.Context, id uuid.UUID, ref string) error {
	tag, err := p.db.Exec(ctx, `UPDATE orders SET channel_ref = $1 WHERE id = $2`, ref, toPg(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetOrderProofNote(ctx context.Context, id uuid.UUID, note string) error {
	tag, err := p.db.Exec(ctx, `UPDATE orders SET proof_note = $1 WHERE id = $2`, note, toPg(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListExpiredPendingOrders(ctx context.Context, asOf time.Time, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.Query(ctx, `
		SELECT `+orderCols+` FROM orders
		WHERE status = 'PENDING' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`, asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (p *Postgres) InsertDomainEvent(ctx context.Context, topic string, aggregateID uuid.UUID, payload []byte) (DomainEvent, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	var (
		ev  DomainEvent
		id  pgtype.UUID
		agg pgtype.UUID
	)
	row := p.db.QueryRow(ctx, `
		INSERT INTO domain_events (id, topic, aggregate_id, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, topic, aggregate_id, payload, occurred_at`,
		toPg(uuid.New()), topic, toPg(aggregateID), payload)
	if err := row.Scan(&id, &ev.Topic, &agg, &ev.Payload, &ev.OccurredAt); err != nil {
		return DomainEvent{}, err
	}
	ev.ID = fromPg(id)
	ev.AggregateID = fromPg(agg)
	return ev, nil
}

func (p *Postgres) OrderStatsInWindow(ctx context.Context, from, to time.Time) (OrderStats, error) {
	var stats OrderStats
	err := p.db.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'PAID'),
		       COALESCE(sum(total_amount) FILTER (WHERE status = 'PAID'), 0)
		FROM orders
		WHERE created_at >= $1 AND created_at < $2`, from, to).
		Scan(&stats.TotalCount, &stats.PaidCount, &stats.Revenue)
	return stats, err
}

func (p *Postgres) MethodStatsInWindow(ctx context.Context, from, to time.Time) ([]MethodStat, error) {
	rows, err := p.db.Query(ctx, `
		SELECT lower(payment_method),
		       count(*),
		       count(*) FILTER (WHERE status = 'PAID'),
		       COALESCE(sum(total_amount) FILTER (WHERE status = 'PAID'), 0)
		FROM orders
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY lower(payment_method)
		ORDER BY 4 DESC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MethodStat
	for rows.Next() {
		var st MethodStat
		if err := rows.Scan(&st.Method, &st.TotalCount, &st.PaidCount, &st.Revenue); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (p *Postgres) CategoryStatsInWindow(ctx context.Context, from, to time.Time) ([]CategoryStat, error) {
	rows, err := p.db.Query(ctx, `
		SELECT oi.category, count(*), COALESCE(sum(oi.amount), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status = 'PAID' AND o.created_at >= $1 AND o.created_at < $2
		GROUP BY oi.category
		ORDER BY 3 DESC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CategoryStat
	for rows.Next() {
		var st CategoryStat
		if err := rows.Scan(&st.Category, &st.Count, &st.Revenue); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (p *Postgres) TopPayersInWindow(ctx context.Context, from, to time.Time, limit int) ([]PayerStat, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := p.db.Query(ctx, `
		SELECT oi.student_id, max(oi.student_name), count(DISTINCT o.id), COALESCE(sum(oi.amount), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status = 'PAID' AND o.created_at >= $1 AND o.created_at < $2
		GROUP BY oi.student_id
		ORDER BY 4 DESC
		LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PayerStat
	for rows.Next() {
		var (
			st  PayerStat
			sid pgtype.UUID
		)
		if err := rows.Scan(&sid, &st.StudentName, &st.OrderCount, &st.TotalPaid); err != nil {
			return nil, err
		}
		st.StudentID = fromPg(sid)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (p *Postgres) DailyStatsInWindow(ctx context.Context, from, to time.Time) ([]DailyStat, error) {
	rows, err := p.db.Query(ctx, `
		SELECT date_trunc('day', created_at AT TIME ZONE 'UTC'), count(*), COALESCE(sum(total_amount), 0)
		FROM orders
		WHERE status = 'PAID' AND created_at >= $1 AND created_at < $2
		GROUP BY 1
		ORDER BY 1`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DailyStat
	for rows.Next() {
		var st DailyStat
		if err := rows.Scan(&st.Day, &st.Count, &st.Revenue); err != nil {
			return nil, err
		}
		st.Day = st.Day.UTC()
		out = append(out, st)
	}
	return out, rows.Err()
}

func toPg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func fromPg(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return uuid.UUID(id.Bytes)
}
