package domain

import "time"

type ErrorCodeCount struct {
	Code       string  `json:"code"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type ErrorAnalytics struct {
	TotalErrors      int                   `json:"totalErrors"`
	ErrorsByCategory map[ErrorCategory]int `json:"errorsByCategory"`
	TopErrorCodes    []ErrorCodeCount      `json:"topErrorCodes"`
	GeneratedAt      time.Time             `json:"generatedAt"`
}

type RecoveryStats struct {
	Attempts    int     `json:"attempts"`
	Successes   int     `json:"successes"`
	Failures    int     `json:"failures"`
	SuccessRate float64 `json:"successRate"`
}

type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

type ErrorTrends struct {
	Window         time.Duration `json:"-"`
	WindowSeconds  float64       `json:"windowSeconds"`
	TotalErrors    int           `json:"totalErrors"`
	Trend          Trend         `json:"trend"`
	Hotspots       []string      `json:"hotspots"`
	Recommendation string        `json:"recommendation"`
}
