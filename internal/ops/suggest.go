package ops

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/formdepartment/capsule/internal/cache"
	"github.com/formdepartment/capsule/internal/errors"
	"github.com/formdepartment/capsule/internal/suggest"
)

// SuggestInput contains parameters for the Suggest operation.
type SuggestInput struct {
	Params suggest.Params
	// Refresh drops every cached slot for the fingerprint before looking up.
	Refresh bool
}

// SuggestOutput contains the result of the Suggest operation.
type SuggestOutput struct {
	Fingerprint string         `json:"fingerprint"`
	Sections    suggest.Record `json:"sections"`
	Source      Source         `json:"source"`
}

// Suggest returns the product breakdown for the params. A fresh parsed record
// wins, then a fresh raw answer is re-parsed, and only then is the generator
// called. A generated answer is cached both raw and parsed.
func (s *Service) Suggest(ctx context.Context, input SuggestInput) (*SuggestOutput, error) {
	fp, err := fingerprintOf(input.Params)
	if err != nil {
		return nil, err
	}
	if input.Refresh {
		s.cache.Invalidate(ctx, fp)
	}

	rec, src, err := s.breakdown(ctx, input.Params, fp)
	if err != nil {
		return nil, err
	}
	return &SuggestOutput{Fingerprint: fp, Sections: rec, Source: src}, nil
}

// breakdown resolves the breakdown record for fp.
func (s *Service) breakdown(ctx context.Context, p suggest.Params, fp string) (suggest.Record, Source, error) {
	if rec, src, ok := s.cachedBreakdown(ctx, fp); ok {
		return rec, src, nil
	}

	// The flight outlives any single caller: it runs detached from the
	// caller's cancellation (still bounded by the generation timeout) and
	// each caller stops waiting when its own ctx is done.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(purposeBreakdown+":"+fp, func() (any, error) {
		// Another flight may have filled the cache since the lookup above.
		if rec, _, ok := s.cachedBreakdown(flightCtx, fp); ok {
			return rec, nil
		}
		answer, err := s.generate(flightCtx, purposeBreakdown, suggest.BreakdownPrompt(p))
		if err != nil {
			return nil, err
		}
		rec := suggest.Parse(answer)
		s.cache.WriteRaw(flightCtx, fp, answer)
		s.cache.WriteParsed(flightCtx, cache.KindBreakdown, fp, rec)
		return rec, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return suggest.Record{}, "", errors.NewUpstreamFailure("generator", ctx.Err())
	}
	if res.Err != nil {
		return suggest.Record{}, "", res.Err
	}
	if res.Shared {
		s.logger.Debug("shared breakdown generation", zap.String("fingerprint", fp))
	}
	v := res.Val
	return v.(suggest.Record), SourceGenerated, nil
}

// cachedBreakdown returns the cached parsed record, or parses the cached raw
// answer and stores the result.
func (s *Service) cachedBreakdown(ctx context.Context, fp string) (suggest.Record, Source, bool) {
	if entry, ok := s.cache.ReadParsed(ctx, cache.KindBreakdown, fp); ok {
		return entry.Sections, SourceParsed, true
	}
	if raw, ok := s.cache.ReadRaw(ctx, fp); ok {
		rec := suggest.Parse(raw.Answer)
		s.cache.WriteParsed(ctx, cache.KindBreakdown, fp, rec)
		return rec, SourceRaw, true
	}
	return suggest.Record{}, "", false
}
