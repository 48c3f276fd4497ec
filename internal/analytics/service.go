package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

// Overview summarizes settled payment activity inside one window.
type Overview struct {
	TotalOrders    int64   `json:"totalOrders"`
	PaidOrders     int64   `json:"paidOrders"`
	Revenue        int64   `json:"revenue"`
	SuccessRate    float64 `json:"successRate"`
	AvgTransaction int64   `json:"avgTransaction"`
	GrowthPercent  float64 `json:"growthPercent"`
}

// MethodBreakdown is one payment method's share of the window.
type MethodBreakdown struct {
	Method       string  `json:"method"`
	TotalOrders  int64   `json:"totalOrders"`
	PaidOrders   int64   `json:"paidOrders"`
	Revenue      int64   `json:"revenue"`
	RevenueShare float64 `json:"revenueShare"`
	SuccessRate  float64 `json:"successRate"`
}

// CategoryBreakdown is revenue attributed to one billing category via the
// line items of settled orders.
type CategoryBreakdown struct {
	Category store.Category `json:"category"`
	Count    int64          `json:"count"`
	Revenue  int64          `json:"revenue"`
}

// TopPayer is one student ranked by total paid in the window.
type TopPayer struct {
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
	OrderCount  int64  `json:"orderCount"`
	TotalPaid   int64  `json:"totalPaid"`
}

// DailyPoint is one day of the dense revenue series. Days without settled
// activity carry zeroes rather than being skipped.
type DailyPoint struct {
	Date    string `json:"date"`
	Count   int64  `json:"count"`
	Revenue int64  `json:"revenue"`
}

// Summary is the full dashboard payload for one window.
type Summary struct {
	From       time.Time           `json:"from"`
	To         time.Time           `json:"to"`
	Overview   Overview            `json:"overview"`
	Methods    []MethodBreakdown   `json:"methods"`
	Categories []CategoryBreakdown `json:"categories"`
	TopPayers  []TopPayer          `json:"topPayers"`
	Daily      []DailyPoint        `json:"daily"`
}

// Service computes dashboard summaries over settled orders, with a short
// redis cache in front of the aggregate queries.
type Service struct {
	Store store.Store
	R     *redis.Client
	TTL   time.Duration
	TopN  int
	Now   func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) topN() int {
	if s == nil || s.TopN <= 0 {
		return 5
	}
	return s.TopN
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// Summarize builds the dashboard summary for [from, to). Windows are
// half-open so adjacent windows never double-count a day.
func (s *Service) Summarize(ctx context.Context, from, to time.Time) (Summary, error) {
	if s == nil || s.Store == nil {
		return Summary{}, fmt.Errorf("analytics service not configured")
	}
	if !to.After(from) {
		return Summary{}, fmt.Errorf("window end %s is not after start %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	key := cacheKey("an", "summary", from.Format("2006-01-02"), to.Format("2006-01-02"))
	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	stats, err := s.Store.OrderStatsInWindow(ctx, from, to)
	if err != nil {
		return Summary{}, fmt.Errorf("order stats: %w", err)
	}

	// growth compares against the preceding window of equal length
	span := to.Sub(from)
	prev, err := s.Store.OrderStatsInWindow(ctx, from.Add(-span), from)
	if err != nil {
		return Summary{}, fmt.Errorf("previous window stats: %w", err)
	}

	methods, err := s.Store.MethodStatsInWindow(ctx, from, to)
	if err != nil {
		return Summary{}, fmt.Errorf("method stats: %w", err)
	}
	categories, err := s.Store.CategoryStatsInWindow(ctx, from, to)
	if err != nil {
		return Summary{}, fmt.Errorf("category stats: %w", err)
	}
	payers, err := s.Store.TopPayersInWindow(ctx, from, to, s.topN())
	if err != nil {
		return Summary{}, fmt.Errorf("top payers: %w", err)
	}
	daily, err := s.Store.DailyStatsInWindow(ctx, from, to)
	if err != nil {
		return Summary{}, fmt.Errorf("daily stats: %w", err)
	}

	out := Summary{
		From:       from,
		To:         to,
		Overview:   buildOverview(stats, prev),
		Methods:    buildMethods(methods, stats.Revenue),
		Categories: buildCategories(categories),
		TopPayers:  buildPayers(payers),
		Daily:      densify(daily, from, to),
	}
	s.toCache(ctx, key, out)
	return out, nil
}

// MonthToDate is the common dashboard window: the first of the current month
// through now.
func (s *Service) MonthToDate(ctx context.Context) (Summary, error) {
	now := s.now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.Summarize(ctx, from, now)
}

func buildOverview(cur, prev store.OrderStats) Overview {
	o := Overview{
		TotalOrders: cur.TotalCount,
		PaidOrders:  cur.PaidCount,
		Revenue:     cur.Revenue,
	}
	if cur.TotalCount > 0 {
		o.SuccessRate = float64(cur.PaidCount) / float64(cur.TotalCount)
	}
	if cur.PaidCount > 0 {
		o.AvgTransaction = cur.Revenue / cur.PaidCount
	}
	switch {
	case prev.Revenue > 0:
		o.GrowthPercent = (float64(cur.Revenue) - float64(prev.Revenue)) / float64(prev.Revenue) * 100
	case cur.Revenue > 0:
		o.GrowthPercent = 100
	}
	return o
}

func buildMethods(stats []store.MethodStat, totalRevenue int64) []MethodBreakdown {
	out := make([]MethodBreakdown, 0, len(stats))
	for _, m := range stats {
		b := MethodBreakdown{
			Method:      m.Method,
			TotalOrders: m.TotalCount,
			PaidOrders:  m.PaidCount,
			Revenue:     m.Revenue,
		}
		if totalRevenue > 0 {
			b.RevenueShare = float64(m.Revenue) / float64(totalRevenue)
		}
		if m.TotalCount > 0 {
			b.SuccessRate = float64(m.PaidCount) / float64(m.TotalCount)
		}
		out = append(out, b)
	}
	return out
}

func buildCategories(stats []store.CategoryStat) []CategoryBreakdown {
	out := make([]CategoryBreakdown, 0, len(stats))
	for _, c := range stats {
		out = append(out, CategoryBreakdown{Category: c.Category, Count: c.Count, Revenue: c.Revenue})
	}
	return out
}

func buildPayers(stats []store.PayerStat) []TopPayer {
	out := make([]TopPayer, 0, len(stats))
	for _, p := range stats {
		out = append(out, TopPayer{
			StudentID:   p.StudentID.String(),
			StudentName: p.StudentName,
			OrderCount:  p.OrderCount,
			TotalPaid:   p.TotalPaid,
		})
	}
	return out
}

// densify fills the [from, to) day range so charting clients receive a
// gap-free series.
func densify(stats []store.DailyStat, from, to time.Time) []DailyPoint {
	byDay := make(map[string]store.DailyStat, len(stats))
	for _, d := range stats {
		byDay[d.Day.UTC().Format("2006-01-02")] = d
	}
	start := time.Date(from.UTC().Year(), from.UTC().Month(), from.UTC().Day(), 0, 0, 0, 0, time.UTC)
	out := make([]DailyPoint, 0, int(to.Sub(start).Hours()/24)+1)
	for day := start; day.Before(to); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		point := DailyPoint{Date: key}
		if d, ok := byDay[key]; ok {
			point.Count = d.Count
			point.Revenue = d.Revenue
		}
		out = append(out, point)
	}
	return out
}

func (s *Service) fromCache(ctx context.Context, key string) (Summary, bool) {
	if s.R == nil || s.TTL <= 0 {
		return Summary{}, false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return Summary{}, false
	}
	var out Summary
	if err := json.Unmarshal(data, &out); err != nil {
		return Summary{}, false
	}
	return out, true
}

func (s *Service) toCache(ctx context.Context, key string, value Summary) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
