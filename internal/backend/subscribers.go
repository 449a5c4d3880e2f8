package backend

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// CustomerID accepts both numeric and string ids.
type CustomerID string

func (id *CustomerID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = CustomerID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = CustomerID(n.String())
	return nil
}

// Subscriber is one row of the admin dashboard.
type Subscriber struct {
	CustomerID         CustomerID `json:"customer_id,omitempty"`
	FullName           string     `json:"full_name"`
	Email              string     `json:"email"`
	Plan               string     `json:"plan"`
	RemainingUses      *int       `json:"remaining_uses"`
	TrialUsed          bool       `json:"trial_used"`
	SubscriptionActive bool       `json:"subscription_active"`
	Expiry             string     `json:"expiry"`
}

// expiryLayouts are the timestamp forms the backend has been seen to send.
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
	"2006-01-02",
}

// ExpiryTime parses Expiry. ok is false when it is empty or unparseable.
// Timestamps without a zone are taken as UTC.
func (s Subscriber) ExpiryTime() (time.Time, bool) {
	v := strings.TrimSpace(s.Expiry)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Active reports whether the subscription is flagged active and not past expiry.
func (s Subscriber) Active(now time.Time) bool {
	if !s.SubscriptionActive {
		return false
	}
	exp, ok := s.ExpiryTime()
	return !ok || !exp.Before(now)
}

// LowUses reports a Tier1 plan with fewer than three uses left.
func (s Subscriber) LowUses() bool {
	return strings.EqualFold(strings.TrimSpace(s.Plan), "tier1") && s.RemainingUses != nil && *s.RemainingUses < 3
}

// DashboardMetrics are the headline counts of the admin dashboard.
type DashboardMetrics struct {
	Total     int `json:"total"`
	TrialUsed int `json:"trial_used"`
	Active    int `json:"active"`
	Expired   int `json:"expired"`
}

// Summarize counts subscribers. A subscriber with an expiry that is not active
// counts as expired.
func Summarize(subs []Subscriber, now time.Time) DashboardMetrics {
	m := DashboardMetrics{Total: len(subs)}
	for _, s := range subs {
		if s.TrialUsed {
			m.TrialUsed++
		}
		active := s.Active(now)
		if active {
			m.Active++
		}
		if _, hasExpiry := s.ExpiryTime(); !active && hasExpiry {
			m.Expired++
		}
	}
	return m
}

// Filter returns subscribers whose name or email contains query, case-insensitively.
// A blank query returns subs unchanged.
func Filter(subs []Subscriber, query string) []Subscriber {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return subs
	}
	out := make([]Subscriber, 0, len(subs))
	for _, s := range subs {
		if strings.Contains(strings.ToLower(s.FullName), q) || strings.Contains(strings.ToLower(s.Email), q) {
			out = append(out, s)
		}
	}
	return out
}
