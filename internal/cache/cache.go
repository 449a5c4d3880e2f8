// Package cache keeps generated answers and parsed records for a short window,
// keyed by the fingerprint of the parameters that produced them.
//
// Every entry is a JSON envelope {<payload>, "timestamp": <unix millis>}.
// An entry older than the TTL is deleted the next time it is read. An entry
// without a timestamp is deleted too. Malformed entries and store failures
// read as a miss; the cache never fails its caller.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/formdepartment/capsule/internal/logging"
	"github.com/formdepartment/capsule/internal/metrics"
	"github.com/formdepartment/capsule/internal/store"
	"github.com/formdepartment/capsule/internal/suggest"
)

// DefaultTTL is how long an entry stays usable after it is written.
const DefaultTTL = 5 * time.Minute

// Kind names one cache slot. It doubles as the key prefix.
type Kind string

const (
	KindRawAnswer Kind = "productBreakdownRawAnswer"
	KindBreakdown Kind = "productBreakdownParsed"
	KindMarket    Kind = "marketAnalysisParsed"
)

// Kinds lists every slot.
var Kinds = []Kind{KindRawAnswer, KindBreakdown, KindMarket}

// payloadField returns the envelope field holding the kind's payload.
func (k Kind) payloadField() string {
	if k == KindRawAnswer {
		return "answer"
	}
	return "sections"
}

// Key returns the store key for kind and fingerprint.
func Key(kind Kind, fp string) string {
	return string(kind) + "_" + fp
}

// ErrCannotList is returned by Purge when the store cannot enumerate keys.
var ErrCannotList = errors.New("store cannot list keys")

// RawAnswerEntry is a cached model reply.
type RawAnswerEntry struct {
	Answer    string `json:"answer"`
	Timestamp int64  `json:"timestamp"`
}

// ParsedEntry is a cached structured record.
type ParsedEntry struct {
	Sections  suggest.Record `json:"sections"`
	Timestamp int64          `json:"timestamp"`
}

// Manager reads and writes cache entries over a store.
type Manager struct {
	store  store.Store
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the expiration window. Non-positive values keep the default.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger store failures are reported to.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(l) }
}

// NewManager returns a Manager over s.
func NewManager(s store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  s,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the expiration window.
func (m *Manager) TTL() time.Duration { return m.ttl }

// ReadRaw returns the cached reply for fp if it is present and fresh.
func (m *Manager) ReadRaw(ctx context.Context, fp string) (RawAnswerEntry, bool) {
	answer, ts, ok := read[string](ctx, m, KindRawAnswer, fp)
	if !ok || answer == "" {
		return RawAnswerEntry{}, false
	}
	return RawAnswerEntry{Answer: answer, Timestamp: ts}, true
}

// ReadParsed returns the cached record of kind for fp if it is present and fresh.
func (m *Manager) ReadParsed(ctx context.Context, kind Kind, fp string) (ParsedEntry, bool) {
	rec, ts, ok := read[suggest.Record](ctx, m, kind, fp)
	if !ok {
		return ParsedEntry{}, false
	}
	return ParsedEntry{Sections: rec, Timestamp: ts}, true
}

// WriteRaw stores answer for fp, stamped with the current time.
func (m *Manager) WriteRaw(ctx context.Context, fp, answer string) {
	m.write(ctx, KindRawAnswer, fp, RawAnswerEntry{Answer: answer, Timestamp: m.now().UnixMilli()})
}

// WriteParsed stores rec for fp under kind, stamped with the current time.
func (m *Manager) WriteParsed(ctx context.Context, kind Kind, fp string, rec suggest.Record) {
	m.write(ctx, kind, fp, ParsedEntry{Sections: rec, Timestamp: m.now().UnixMilli()})
}

// Invalidate deletes every slot for fp.
func (m *Manager) Invalidate(ctx context.Context, fp string) {
	for _, kind := range Kinds {
		m.remove(ctx, Key(kind, fp))
	}
}

// Purge deletes every expired, timestamp-less or malformed entry and returns
// how many were removed.
func (m *Manager) Purge(ctx context.Context) (int, error) {
	lister, ok := m.store.(store.Lister)
	if !ok {
		return 0, ErrCannotList
	}

	removed := 0
	for _, kind := range Kinds {
		keys, err := lister.Keys(ctx, string(kind)+"_")
		if err != nil {
			return removed, err
		}
		for _, key := range keys {
			raw, found, err := m.store.Get(ctx, key)
			if err != nil {
				return removed, err
			}
			if !found {
				continue
			}
			if st := m.inspect(kind, raw); st == stateFresh {
				continue
			}
			if err := m.store.Delete(ctx, key); err != nil {
				return removed, err
			}
			removed++
		}
	}
	metrics.CachePurged.Add(float64(removed))
	return removed, nil
}

type state int

const (
	stateFresh state = iota
	stateExpired
	stateNoTimestamp
	stateMalformed
)

// envelope is the decoded outer object of an entry.
type envelope map[string]json.RawMessage

// decode splits raw into its envelope and timestamp.
func (m *Manager) decode(raw string) (envelope, int64, state) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env == nil {
		return nil, 0, stateMalformed
	}

	tsRaw, ok := env["timestamp"]
	if !ok || string(tsRaw) == "null" {
		return env, 0, stateNoTimestamp
	}
	var ts float64
	if err := json.Unmarshal(tsRaw, &ts); err != nil {
		return env, 0, stateNoTimestamp
	}

	age := time.Duration(m.now().UnixMilli()-int64(ts)) * time.Millisecond
	if age > m.ttl {
		return env, int64(ts), stateExpired
	}
	return env, int64(ts), stateFresh
}

// inspect classifies raw without returning its payload.
func (m *Manager) inspect(kind Kind, raw string) state {
	env, _, st := m.decode(raw)
	if st != stateFresh {
		return st
	}
	var ok bool
	if kind == KindRawAnswer {
		_, ok = decodePayload[string](env, kind)
	} else {
		_, ok = decodePayload[suggest.Record](env, kind)
	}
	if !ok {
		return stateMalformed
	}
	return stateFresh
}

// decodePayload decodes the kind's payload field. A missing or null field is malformed.
func decodePayload[T any](env envelope, kind Kind) (T, bool) {
	var payload T
	field, ok := env[kind.payloadField()]
	if !ok || string(field) == "null" {
		return payload, false
	}
	if err := json.Unmarshal(field, &payload); err != nil {
		return payload, false
	}
	return payload, true
}

func read[T any](ctx context.Context, m *Manager, kind Kind, fp string) (T, int64, bool) {
	var zero T
	key := Key(kind, fp)

	raw, found, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		metrics.RecordCacheLookup(string(kind), metrics.ResultError)
		return zero, 0, false
	}
	if !found {
		metrics.RecordCacheLookup(string(kind), metrics.ResultMiss)
		return zero, 0, false
	}

	env, ts, st := m.decode(raw)
	switch st {
	case stateExpired:
		m.logger.Debug("cache entry expired", zap.String("key", key))
		metrics.RecordCacheLookup(string(kind), metrics.ResultExpired)
		m.remove(ctx, key)
		return zero, 0, false
	case stateNoTimestamp:
		metrics.RecordCacheLookup(string(kind), metrics.ResultMalformed)
		m.remove(ctx, key)
		return zero, 0, false
	case stateMalformed:
		metrics.RecordCacheLookup(string(kind), metrics.ResultMalformed)
		return zero, 0, false
	}

	payload, ok := decodePayload[T](env, kind)
	if !ok {
		metrics.RecordCacheLookup(string(kind), metrics.ResultMalformed)
		return zero, 0, false
	}
	metrics.RecordCacheLookup(string(kind), metrics.ResultHit)
	return payload, ts, true
}

func (m *Manager) write(ctx context.Context, kind Kind, fp string, entry any) {
	key := Key(kind, fp)
	b, err := json.Marshal(entry)
	if err != nil {
		m.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := m.store.Set(ctx, key, string(b)); err != nil {
		m.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (m *Manager) remove(ctx context.Context, key string) {
	if err := m.store.Delete(ctx, key); err != nil {
		m.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	}
}
