package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formdepartment/capsule/internal/errors"
)

const customer = "7012345678901"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)
	return c
}

func TestCheckAccess(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantGranted bool
		wantReason  string
		wantCode    errors.ErrorCode
	}{
		{
			name:        "tier1 granted",
			status:      http.StatusOK,
			body:        `{"ok":true,"plan":"tier1","remaining_uses":4,"tool_url":"/tool"}`,
			wantGranted: true,
		},
		{
			name:       "no subscription",
			status:     http.StatusForbidden,
			body:       `{"ok":false,"reason":"no_active_subscription","redirect":"/pricing"}`,
			wantReason: "no_active_subscription",
		},
		{
			name:       "unknown customer",
			status:     http.StatusUnauthorized,
			body:       `{"ok":false,"reason":"not_found","redirect":"/account/login"}`,
			wantReason: "not_found",
		},
		{
			name:       "allowed false",
			status:     http.StatusOK,
			body:       `{"ok":true,"allowed":false,"reason":"tier1_exhausted"}`,
			wantReason: "tier1_exhausted",
		},
		{
			name:     "rejected id",
			status:   http.StatusBadRequest,
			body:     `{"ok":false,"reason":"invalid_customer_id","message":"bad id"}`,
			wantCode: errors.ErrInvalidRequest,
		},
		{
			name:     "backend down",
			status:   http.StatusInternalServerError,
			body:     `oops`,
			wantCode: errors.ErrUpstreamFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/proxy/tool", r.URL.Path)
				assert.Equal(t, customer, r.URL.Query().Get("customer_id"))
				assert.Equal(t, "suggestions", r.URL.Query().Get("page"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			res, err := c.CheckAccess(context.Background(), customer, "suggestions")
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantCode), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantGranted, res.Granted())
			assert.Equal(t, tt.wantReason, res.Reason)
		})
	}
}

func TestCheckAccess_RemainingUses(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"plan":"tier1","remaining_uses":2}`))
	})
	res, err := c.CheckAccess(context.Background(), customer, "")
	require.NoError(t, err)
	require.NotNil(t, res.RemainingUses)
	assert.Equal(t, 2, *res.RemainingUses)
	assert.Equal(t, "tier1", res.Plan)
}

func TestCheckAccess_InvalidIDNeverCallsBackend(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	for _, id := range []string{"", "123", "70123456789012", "70123456789ab"} {
		_, err := c.CheckAccess(context.Background(), id, "wizard")
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "id %q: err = %v", id, err)
	}
	assert.False(t, called)
}

func TestDashboard(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/dashboard", r.URL.Path)
		if r.URL.Query().Get("token") != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"ok":false,"message":"Invalid token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"users":[
			{"customer_id":7012345678901,"full_name":"Ada Lovelace","email":"ada@example.com","plan":"tier1","remaining_uses":1},
			{"customer_id":"7012345678902","full_name":"Grace Hopper","email":"grace@example.com","plan":"admin"}
		]}`))
	})

	users, err := c.Dashboard(context.Background(), "s3cret")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, CustomerID("7012345678901"), users[0].CustomerID)
	assert.Equal(t, CustomerID("7012345678902"), users[1].CustomerID)
	assert.True(t, users[0].LowUses())
	assert.False(t, users[1].LowUses())

	_, err = c.Dashboard(context.Background(), "wrong")
	assert.True(t, errors.Is(err, errors.ErrAccessDenied), "err = %v", err)

	_, err = c.Dashboard(context.Background(), " ")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "err = %v", err)
}

func TestDashboard_NotOK(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"message":"database unavailable"}`))
	})
	_, err := c.Dashboard(context.Background(), "s3cret")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUpstreamFailure))
	assert.Contains(t, err.Error(), "database unavailable")
}

func TestNewClient_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "backend:8000", "ftp://host"} {
		_, err := NewClient(u, nil)
		assert.Error(t, err, u)
	}
}

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	subs := []Subscriber{
		{FullName: "active", SubscriptionActive: true, Expiry: "2026-04-01T00:00:00"},
		{FullName: "active no expiry", SubscriptionActive: true, TrialUsed: true},
		{FullName: "lapsed", SubscriptionActive: true, Expiry: "2026-02-01T00:00:00Z", TrialUsed: true},
		{FullName: "cancelled", Expiry: "2026-05-01"},
		{FullName: "never subscribed"},
	}

	got := Summarize(subs, now)
	assert.Equal(t, DashboardMetrics{Total: 5, TrialUsed: 2, Active: 2, Expired: 2}, got)
}

func TestFilter(t *testing.T) {
	subs := []Subscriber{
		{FullName: "Ada Lovelace", Email: "ada@example.com"},
		{FullName: "Grace Hopper", Email: "grace@navy.mil"},
	}

	assert.Len(t, Filter(subs, ""), 2)
	assert.Len(t, Filter(subs, "  "), 2)

	got := Filter(subs, "LOVE")
	require.Len(t, got, 1)
	assert.Equal(t, "Ada Lovelace", got[0].FullName)

	got = Filter(subs, "navy")
	require.Len(t, got, 1)
	assert.Equal(t, "Grace Hopper", got[0].FullName)

	assert.Empty(t, Filter(subs, "turing"))
}

func TestExpiryTime(t *testing.T) {
	for _, v := range []string{"2026-01-02T03:04:05Z", "2026-01-02T03:04:05", "2026-01-02T03:04:05.123456", "2026-01-02"} {
		_, ok := Subscriber{Expiry: v}.ExpiryTime()
		assert.True(t, ok, v)
	}
	_, ok := Subscriber{Expiry: "next tuesday"}.ExpiryTime()
	assert.False(t, ok)
}
