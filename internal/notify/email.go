package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

// Directory resolves guardian contact addresses. Deployments back this with
// the school administration system; tests use StaticDirectory.
type Directory interface {
	GuardianEmail(ctx context.Context, guardianID uuid.UUID) (string, error)
}

// StaticDirectory is a fixed guardian-to-email mapping.
type StaticDirectory map[uuid.UUID]string

func (d StaticDirectory) GuardianEmail(_ context.Context, guardianID uuid.UUID) (string, error) {
	email, ok := d[guardianID]
	if !ok {
		return "", fmt.Errorf("no email registered for guardian %s", guardianID)
	}
	return email, nil
}

func formatRupiah(amount int64) string {
	digits := fmt.Sprintf("%d", amount)
	var sb strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			sb.WriteByte('.')
		}
		sb.WriteRune(r)
	}
	return "Rp " + sb.String()
}

func receiptSubject(ord store.Order) string {
	return fmt.Sprintf("Pembayaran berhasil - %s", ord.OrderNumber)
}

func receiptBody(ord store.Order, items []store.OrderItem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Pembayaran untuk pesanan %s telah kami terima.\n\n", ord.OrderNumber)
	byStudent := map[uuid.UUID][]store.OrderItem{}
	order := make([]uuid.UUID, 0, 2)
	for _, it := range items {
		if _, ok := byStudent[it.StudentID]; !ok {
			order = append(order, it.StudentID)
		}
		byStudent[it.StudentID] = append(byStudent[it.StudentID], it)
	}
	for _, studentID := range order {
		lines := byStudent[studentID]
		fmt.Fprintf(&sb, "%s:\n", lines[0].StudentName)
		var subtotal int64
		for _, it := range lines {
			fmt.Fprintf(&sb, "  - %s %s: %s\n", it.Title, it.Period, formatRupiah(it.Amount))
			subtotal += it.Amount
		}
		fmt.Fprintf(&sb, "  Subtotal: %s\n\n", formatRupiah(subtotal))
	}
	fmt.Fprintf(&sb, "Total: %s\n", formatRupiah(ord.TotalAmount))
	if ord.ConfirmedAt != nil {
		fmt.Fprintf(&sb, "Dibayar pada: %s\n", ord.ConfirmedAt.Format(time.RFC3339))
	}
	return sb.String()
}

func reminderSubject(rec store.BillingRecord) string {
	return fmt.Sprintf("Tagihan %s %s belum dibayar", rec.Title, rec.Period)
}

func reminderBody(rec store.BillingRecord, outstanding int64, asOf time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tagihan %s untuk %s periode %s telah melewati jatuh tempo (%s).\n",
		rec.Title, rec.StudentName, rec.Period, rec.DueDate.Format("2006-01-02"))
	fmt.Fprintf(&sb, "Sisa tagihan per %s: %s\n", asOf.Format("2006-01-02"), formatRupiah(outstanding))
	sb.WriteString("Mohon segera melakukan pembayaran melalui aplikasi.\n")
	return sb.String()
}

func proofAlertSubject(ord store.Order) string {
	return fmt.Sprintf("Bukti transfer menunggu verifikasi - %s", ord.OrderNumber)
}

func proofAlertBody(ord store.Order) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Pesanan %s senilai %s menunggu verifikasi transfer manual.\n",
		ord.OrderNumber, formatRupiah(ord.TotalAmount))
	if ord.ProofNote != "" {
		fmt.Fprintf(&sb, "Catatan wali: %s\n", ord.ProofNote)
	}
	return sb.String()
}
