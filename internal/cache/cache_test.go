package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/formdepartment/capsule/internal/store"
	"github.com/formdepartment/capsule/internal/suggest"
)

// clock is a settable time source.
type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.UnixMilli(1_700_000_000_000)}
}

func newManager(s store.Store, c *clock) *Manager {
	return NewManager(s, WithClock(c.Now))
}

func exists(t *testing.T, s store.Store, key string) bool {
	t.Helper()
	_, ok, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	return ok
}

func TestKey(t *testing.T) {
	require.Equal(t, "productBreakdownRawAnswer_abc", Key(KindRawAnswer, "abc"))
	require.Equal(t, "productBreakdownParsed_abc", Key(KindBreakdown, "abc"))
	require.Equal(t, "marketAnalysisParsed_abc", Key(KindMarket, "abc"))
}

func TestManager_RawRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	c := newClock()
	m := newManager(s, c)

	m.WriteRaw(ctx, "fp1", "**Materials**\nCotton")

	got, ok := m.ReadRaw(ctx, "fp1")
	require.True(t, ok)
	require.Equal(t, "**Materials**\nCotton", got.Answer)
	require.Equal(t, c.t.UnixMilli(), got.Timestamp)

	_, ok = m.ReadRaw(ctx, "other")
	require.False(t, ok)
}

func TestManager_ParsedRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newManager(store.NewMemory(), newClock())
	rec := suggest.Record{Materials: "Cotton", Pricing: "Keystone"}

	m.WriteParsed(ctx, KindBreakdown, "fp1", rec)

	got, ok := m.ReadParsed(ctx, KindBreakdown, "fp1")
	require.True(t, ok)
	require.Equal(t, rec, got.Sections)

	// Slots are independent.
	_, ok = m.ReadParsed(ctx, KindMarket, "fp1")
	require.False(t, ok)
}

func TestManager_Expiry(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	c := newClock()
	m := newManager(s, c)

	m.WriteRaw(ctx, "fp", "answer")
	m.WriteParsed(ctx, KindBreakdown, "fp", suggest.Record{Materials: "Wool"})

	c.Advance(4*time.Minute + 59*time.Second)
	_, ok := m.ReadRaw(ctx, "fp")
	require.True(t, ok, "entry should still be fresh at 4m59s")
	_, ok = m.ReadParsed(ctx, KindBreakdown, "fp")
	require.True(t, ok)

	c.Advance(2 * time.Second)
	_, ok = m.ReadRaw(ctx, "fp")
	require.False(t, ok, "entry should be expired at 5m1s")
	require.False(t, exists(t, s, Key(KindRawAnswer, "fp")), "expired entry should be deleted")

	_, ok = m.ReadParsed(ctx, KindBreakdown, "fp")
	require.False(t, ok)
	require.False(t, exists(t, s, Key(KindBreakdown, "fp")))
}

func TestManager_ExactTTLIsFresh(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	m := newManager(store.NewMemory(), c)

	m.WriteRaw(ctx, "fp", "answer")
	c.Advance(DefaultTTL)

	_, ok := m.ReadRaw(ctx, "fp")
	require.True(t, ok)
}

func TestManager_CustomTTL(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	m := NewManager(store.NewMemory(), WithClock(c.Now), WithTTL(time.Minute))
	require.Equal(t, time.Minute, m.TTL())

	m.WriteRaw(ctx, "fp", "answer")
	c.Advance(61 * time.Second)

	_, ok := m.ReadRaw(ctx, "fp")
	require.False(t, ok)
}

func TestManager_BadEntries(t *testing.T) {
	tests := []struct {
		name        string
		kind        Kind
		value       string
		wantDeleted bool
	}{
		{"missing timestamp", KindRawAnswer, `{"answer":"x"}`, true},
		{"null timestamp", KindBreakdown, `{"sections":{},"timestamp":null}`, true},
		{"not json", KindRawAnswer, `not json`, false},
		{"json array", KindMarket, `[1,2]`, false},
		{"missing payload", KindRawAnswer, `{"timestamp":1700000000000}`, false},
		{"null sections", KindBreakdown, `{"sections":null,"timestamp":1700000000000}`, false},
		{"wrong payload type", KindMarket, `{"sections":"text","timestamp":1700000000000}`, false},
		{"empty answer", KindRawAnswer, `{"answer":"","timestamp":1700000000000}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := store.NewMemory()
			m := newManager(s, newClock())
			key := Key(tt.kind, "fp")
			require.NoError(t, s.Set(ctx, key, tt.value))

			var ok bool
			if tt.kind == KindRawAnswer {
				_, ok = m.ReadRaw(ctx, "fp")
			} else {
				_, ok = m.ReadParsed(ctx, tt.kind, "fp")
			}
			require.False(t, ok)
			require.Equal(t, !tt.wantDeleted, exists(t, s, key))
		})
	}
}

// failingStore fails every operation.
type failingStore struct{}

var errStore = errors.New("store unavailable")

func (failingStore) Get(context.Context, string) (string, bool, error) { return "", false, errStore }
func (failingStore) Set(context.Context, string, string) error         { return errStore }
func (failingStore) Delete(context.Context, string) error              { return errStore }

func TestManager_StoreFailuresAreMisses(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	m := NewManager(failingStore{}, WithLogger(zap.New(core)))

	m.WriteRaw(ctx, "fp", "answer")
	_, ok := m.ReadRaw(ctx, "fp")
	require.False(t, ok)
	_, ok = m.ReadParsed(ctx, KindBreakdown, "fp")
	require.False(t, ok)

	require.Equal(t, 1, logs.FilterMessage("cache write failed").Len())
	require.Equal(t, 2, logs.FilterMessage("cache read failed").Len())
}

func TestManager_Invalidate(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := newManager(s, newClock())

	m.WriteRaw(ctx, "fp", "answer")
	m.WriteParsed(ctx, KindBreakdown, "fp", suggest.Record{})
	m.WriteParsed(ctx, KindMarket, "fp", suggest.Record{})
	m.WriteRaw(ctx, "other", "answer")

	m.Invalidate(ctx, "fp")

	for _, kind := range Kinds {
		require.False(t, exists(t, s, Key(kind, "fp")))
	}
	require.True(t, exists(t, s, Key(KindRawAnswer, "other")))
}

func TestManager_Purge(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	c := newClock()
	m := newManager(s, c)

	m.WriteRaw(ctx, "old", "answer")
	c.Advance(10 * time.Minute)
	m.WriteRaw(ctx, "fresh", "answer")
	m.WriteParsed(ctx, KindMarket, "fresh", suggest.Record{TargetInsight: "Commuters"})
	require.NoError(t, s.Set(ctx, Key(KindBreakdown, "nots"), `{"sections":{}}`))
	require.NoError(t, s.Set(ctx, Key(KindMarket, "junk"), `junk`))
	require.NoError(t, s.Set(ctx, "unrelated", `junk`))

	removed, err := m.Purge(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, removed)

	require.True(t, exists(t, s, Key(KindRawAnswer, "fresh")))
	require.True(t, exists(t, s, Key(KindMarket, "fresh")))
	require.True(t, exists(t, s, "unrelated"))
	require.False(t, exists(t, s, Key(KindRawAnswer, "old")))
}

func TestManager_PurgeNeedsLister(t *testing.T) {
	type storeOnly struct{ store.Store }
	m := NewManager(storeOnly{store.NewMemory()})

	_, err := m.Purge(context.Background())
	require.ErrorIs(t, err, ErrCannotList)
}
