package recovery

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/resilience"
)

const topErrorCodes = 10

type errorRecord struct {
	id       string
	category domain.ErrorCategory
	code     string
	at       time.Time
}

// Analytics keeps a bounded window of handled errors and recovery outcomes.
type Analytics struct {
	limit int
	clock resilience.Clock

	mu        sync.Mutex
	records   []errorRecord
	seen      map[string]struct{}
	order     []string
	attempts  int
	successes int
}

func NewAnalytics(limit int, clock resilience.Clock) *Analytics {
	if limit <= 0 {
		limit = 10000
	}
	if clock == nil {
		clock = resilience.RealClock{}
	}
	return &Analytics{
		limit: limit,
		clock: clock,
		seen:  make(map[string]struct{}),
	}
}

func (a *Analytics) RecordError(ue domain.UploadError) {
	at := ue.Timestamp
	if at.IsZero() {
		at = a.clock.Now()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.records = append(a.records, errorRecord{id: ue.ID, category: ue.Category, code: ue.Code, at: at})
	if len(a.records) > a.limit {
		a.records = append(a.records[:0:0], a.records[len(a.records)-a.limit:]...)
	}

	if ue.ID == "" {
		return
	}
	if _, ok := a.seen[ue.ID]; ok {
		return
	}
	a.seen[ue.ID] = struct{}{}
	a.order = append(a.order, ue.ID)
	if len(a.order) > a.limit {
		delete(a.seen, a.order[0])
		a.order = append(a.order[:0:0], a.order[1:]...)
	}
}

func (a *Analytics) RecordRecovery(success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts++
	if success {
		a.successes++
	}
}

func (a *Analytics) Snapshot() domain.ErrorAnalytics {
	a.mu.Lock()
	records := append([]errorRecord(nil), a.records...)
	a.mu.Unlock()

	out := domain.ErrorAnalytics{
		TotalErrors:      len(records),
		ErrorsByCategory: make(map[domain.ErrorCategory]int),
		TopErrorCodes:    []domain.ErrorCodeCount{},
		GeneratedAt:      a.clock.Now(),
	}
	codes := make(map[string]int)
	for _, r := range records {
		out.ErrorsByCategory[r.category]++
		codes[r.code]++
	}
	for code, count := range codes {
		out.TopErrorCodes = append(out.TopErrorCodes, domain.ErrorCodeCount{
			Code:       code,
			Count:      count,
			Percentage: round2(float64(count) / float64(len(records)) * 100),
		})
	}
	sort.Slice(out.TopErrorCodes, func(i, j int) bool {
		if out.TopErrorCodes[i].Count != out.TopErrorCodes[j].Count {
			return out.TopErrorCodes[i].Count > out.TopErrorCodes[j].Count
		}
		return out.TopErrorCodes[i].Code < out.TopErrorCodes[j].Code
	})
	if len(out.TopErrorCodes) > topErrorCodes {
		out.TopErrorCodes = out.TopErrorCodes[:topErrorCodes]
	}
	return out
}

func (a *Analytics) Stats() domain.RecoveryStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := domain.RecoveryStats{
		Attempts:  a.attempts,
		Successes: a.successes,
		Failures:  a.attempts - a.successes,
	}
	if a.attempts > 0 {
		stats.SuccessRate = round2(float64(a.successes) / float64(a.attempts) * 100)
	}
	return stats
}

var categoryRecommendations = map[domain.ErrorCategory]string{
	domain.CategoryNetwork:     "investigate_network_issues",
	domain.CategoryStorage:     "check_storage_health",
	domain.CategoryPermissions: "review_permissions",
	domain.CategoryValidation:  "review_validation_rules",
	domain.CategorySmartRouter: "check_router_service",
}

// Trends compares the older and newer half of the window ending now.
// Codes holding at least a quarter of the window's errors are hotspots.
func (a *Analytics) Trends(window time.Duration) domain.ErrorTrends {
	if window <= 0 {
		window = time.Hour
	}
	now := a.clock.Now()
	start := now.Add(-window)
	mid := now.Add(-window / 2)

	a.mu.Lock()
	records := append([]errorRecord(nil), a.records...)
	a.mu.Unlock()

	out := domain.ErrorTrends{
		Window:         window,
		WindowSeconds:  window.Seconds(),
		Trend:          domain.TrendStable,
		Hotspots:       []string{},
		Recommendation: "none",
	}

	var older, newer int
	keys := make(map[string]int)
	categories := make(map[domain.ErrorCategory]int)
	for _, r := range records {
		if r.at.Before(start) || r.at.After(now) {
			continue
		}
		out.TotalErrors++
		if r.at.Before(mid) {
			older++
		} else {
			newer++
		}
		keys[string(r.category)+"."+r.code]++
		categories[r.category]++
	}
	if out.TotalErrors == 0 {
		return out
	}

	switch {
	case float64(newer) > float64(older)*1.25:
		out.Trend = domain.TrendIncreasing
	case float64(newer) < float64(older)*0.75:
		out.Trend = domain.TrendDecreasing
	}

	for key, count := range keys {
		if count*4 >= out.TotalErrors {
			out.Hotspots = append(out.Hotspots, key)
		}
	}
	sort.Slice(out.Hotspots, func(i, j int) bool {
		ci, cj := keys[out.Hotspots[i]], keys[out.Hotspots[j]]
		if ci != cj {
			return ci > cj
		}
		return out.Hotspots[i] < out.Hotspots[j]
	})

	var dominant domain.ErrorCategory
	for category, count := range categories {
		if count > categories[dominant] || (count == categories[dominant] && category < dominant) {
			dominant = category
		}
	}
	if rec, ok := categoryRecommendations[dominant]; ok {
		out.Recommendation = rec
	}
	return out
}

// ProcessedErrorIDs lists handled error ids once each, oldest first.
func (a *Analytics) ProcessedErrorIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.order...)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
