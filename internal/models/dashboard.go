package models

import (
	"time"
)

// VenueFailure describes a target that produced no quote in a cycle
type VenueFailure struct {
	Exchange    string `json:"exchange"`
	Symbol      string `json:"symbol"`
	Message     string `json:"message"`
	StatusCode  int    `json:"status_code,omitempty"`
	RateLimited bool   `json:"rate_limited"`
}

// DashboardData is the snapshot handed to the presentation layer
type DashboardData struct {
	ID            string                 `json:"id"`
	GeneratedAt   time.Time              `json:"generated_at"`
	Quotes        []NormalizedQuote      `json:"quotes"`
	Opportunities []ArbitrageOpportunity `json:"opportunities"`
	Failures      []VenueFailure         `json:"failures,omitempty"`
	Stale         bool                   `json:"stale"`
}

// Exchanges returns the distinct venues that produced at least one quote, in quote order.
func (d *DashboardData) Exchanges() []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range d.Quotes {
		if !seen[q.Exchange] {
			seen[q.Exchange] = true
			out = append(out, q.Exchange)
		}
	}
	return out
}

// Partial reports whether any target failed in the cycle.
func (d *DashboardData) Partial() bool {
	return len(d.Failures) > 0
}
