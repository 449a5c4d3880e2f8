package ops

import (
	"context"
	"fmt"

	"github.com/formdepartment/capsule/internal/errors"
	"github.com/formdepartment/capsule/internal/suggest"
)

// PaletteInput contains parameters for the Palette operation.
type PaletteInput struct {
	Params suggest.Params
	Limit  int // default: the service's palette limit
}

// PaletteOutput contains the result of the Palette operation.
type PaletteOutput struct {
	Fingerprint string          `json:"fingerprint"`
	Colors      []suggest.Color `json:"colors"`
	Source      Source          `json:"source"`
}

// Palette returns the swatches of the breakdown's color palette section. When
// that section names no colors, the whole raw answer is scanned.
func (s *Service) Palette(ctx context.Context, input PaletteInput) (*PaletteOutput, error) {
	limit := input.Limit
	if limit == 0 {
		limit = s.paletteLimit
	}
	if limit < 0 || limit > MaxPaletteLimit {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("limit must be between 1 and %d", MaxPaletteLimit))
	}

	sug, err := s.Suggest(ctx, SuggestInput{Params: input.Params})
	if err != nil {
		return nil, err
	}

	colors := suggest.ExtractColors(sug.Sections.ColorPalette)
	if len(colors) == 0 {
		if raw, ok := s.cache.ReadRaw(ctx, sug.Fingerprint); ok {
			colors = suggest.ExtractColors(raw.Answer)
		}
	}
	if len(colors) > limit {
		colors = colors[:limit]
	}

	return &PaletteOutput{
		Fingerprint: sug.Fingerprint,
		Colors:      colors,
		Source:      sug.Source,
	}, nil
}
