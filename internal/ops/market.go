package ops

import (
	"context"

	"github.com/formdepartment/capsule/internal/cache"
	"github.com/formdepartment/capsule/internal/suggest"
)

// MarketInput contains parameters for the MarketAnalysis operation.
type MarketInput struct {
	Params  suggest.Params
	Refresh bool
}

// MarketOutput contains the result of the MarketAnalysis operation. Only the
// market keys of Sections are filled.
type MarketOutput struct {
	Fingerprint string         `json:"fingerprint"`
	Sections    suggest.Record `json:"sections"`
	Source      Source         `json:"source"`
}

// MarketAnalysis returns the market view for the params, cached separately
// under the market slot. It is derived from the breakdown when one is cached;
// a new breakdown is generated only when neither slot holds market sections.
func (s *Service) MarketAnalysis(ctx context.Context, input MarketInput) (*MarketOutput, error) {
	fp, err := fingerprintOf(input.Params)
	if err != nil {
		return nil, err
	}
	if input.Refresh {
		s.cache.Invalidate(ctx, fp)
	}

	out := &MarketOutput{Fingerprint: fp}

	if entry, ok := s.cache.ReadParsed(ctx, cache.KindMarket, fp); ok {
		out.Sections = subset(entry.Sections, suggest.MarketKeys...)
		out.Source = SourceParsed
		return out, nil
	}

	sections, src, ok := s.cachedMarket(ctx, fp)
	if !ok {
		// Whatever breakdown is cached lacks the market sections.
		s.cache.Invalidate(ctx, fp)
		rec, _, err := s.breakdown(ctx, input.Params, fp)
		if err != nil {
			return nil, err
		}
		sections, src = subset(rec, suggest.MarketKeys...), SourceGenerated
	}
	out.Sections, out.Source = sections, src

	s.cache.WriteParsed(ctx, cache.KindMarket, fp, out.Sections)
	return out, nil
}

// cachedMarket derives the market sections from the cached breakdown, parsed
// first and raw second.
func (s *Service) cachedMarket(ctx context.Context, fp string) (suggest.Record, Source, bool) {
	if entry, ok := s.cache.ReadParsed(ctx, cache.KindBreakdown, fp); ok && entry.Sections.HasAny(suggest.MarketKeys...) {
		return subset(entry.Sections, suggest.MarketKeys...), SourceParsed, true
	}
	if raw, ok := s.cache.ReadRaw(ctx, fp); ok {
		if rec := suggest.ParseKeys(raw.Answer, suggest.MarketKeys...); rec.HasAny(suggest.MarketKeys...) {
			return rec, SourceRaw, true
		}
	}
	return suggest.Record{}, "", false
}
