package ops

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/formdepartment/capsule/internal/cache"
	"github.com/formdepartment/capsule/internal/errors"
)

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// Purge permanently deletes expired and malformed cache entries.
func (s *Service) Purge(ctx context.Context) (*PurgeOutput, error) {
	count, err := s.cache.Purge(ctx)
	if stderrors.Is(err, cache.ErrCannotList) {
		return nil, errors.NewInvalidRequest("store backend cannot list keys; purge is unavailable")
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	return &PurgeOutput{
		Purged:  count,
		Message: formatPurgeMessage(count),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count int) string {
	if count == 0 {
		return "No dead cache entries to purge"
	}

	entryWord := "entry"
	if count > 1 {
		entryWord = "entries"
	}

	return fmt.Sprintf("Permanently deleted %d cache %s", count, entryWord)
}
