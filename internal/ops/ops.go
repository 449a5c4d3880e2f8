package ops

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/formdepartment/capsule/internal/cache"
	"github.com/formdepartment/capsule/internal/errors"
	"github.com/formdepartment/capsule/internal/genai"
	"github.com/formdepartment/capsule/internal/logging"
	"github.com/formdepartment/capsule/internal/metrics"
	"github.com/formdepartment/capsule/internal/suggest"
)

// Palette limits
const (
	DefaultPaletteLimit = 4
	MaxPaletteLimit     = 24
)

// Generation purposes, used as metric labels.
const (
	purposeBreakdown     = "breakdown"
	purposeQuestionnaire = "questionnaire"
)

// Source tells where a record came from.
type Source string

const (
	SourceParsed    Source = "parsed"    // fresh parsed record in the cache
	SourceRaw       Source = "raw"       // re-parsed from a fresh raw answer
	SourceGenerated Source = "generated" // new generation request
)

// Options configures a Service.
type Options struct {
	// Timeout bounds each generation request. Zero means no bound beyond ctx.
	Timeout      time.Duration
	PaletteLimit int
	Logger       *zap.Logger
}

// Service runs the cache-aware operations. It is safe for concurrent use.
type Service struct {
	cache        *cache.Manager
	gen          genai.Generator
	logger       *zap.Logger
	timeout      time.Duration
	paletteLimit int

	flights singleflight.Group
}

// NewService returns a Service over the cache and generator.
func NewService(c *cache.Manager, g genai.Generator, opts Options) *Service {
	limit := opts.PaletteLimit
	if limit <= 0 {
		limit = DefaultPaletteLimit
	}
	return &Service{
		cache:        c,
		gen:          g,
		logger:       logging.OrNop(opts.Logger),
		timeout:      opts.Timeout,
		paletteLimit: limit,
	}
}

// generate sends one prompt. Failures come back as UPSTREAM_FAILURE.
func (s *Service) generate(ctx context.Context, purpose, prompt string) (string, error) {
	if s.gen == nil {
		return "", errors.NewUpstreamFailure("generator", genai.ErrNotConfigured)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := s.gen.Generate(ctx, prompt)
	elapsed := time.Since(start)
	metrics.RecordGeneration(purpose, err, elapsed)
	if err != nil {
		s.logger.Warn("generation failed",
			zap.String("purpose", purpose),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return "", errors.NewUpstreamFailure("generator", err)
	}
	s.logger.Debug("generation complete",
		zap.String("purpose", purpose),
		zap.Duration("elapsed", elapsed),
		zap.Int("chars", len(answer)))
	return answer, nil
}

// fingerprintOf validates params and returns their fingerprint.
func fingerprintOf(p suggest.Params) (string, error) {
	if p.IsEmpty() {
		return "", errors.NewInvalidRequest("params must describe the product (idea, product type, category...)")
	}
	return suggest.Fingerprint(p), nil
}

// subset copies only keys from rec.
func subset(rec suggest.Record, keys ...suggest.SectionKey) suggest.Record {
	var out suggest.Record
	for _, k := range keys {
		out.Set(k, rec.Get(k))
	}
	return out
}
