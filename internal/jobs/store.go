package jobs

import (
	"context"
	"errors"

	"video-transcript-go/internal/types"
)

var ErrNotFound = errors.New("job not found")

// Store holds the latest snapshot of every job. Set replaces the whole record
// for an id; Get returns a copy that the caller may keep.
type Store interface {
	Create(ctx context.Context) (string, error)
	Set(ctx context.Context, id string, status types.JobStatus, progress int, message string, result *types.TranscriptResult) error
	Get(ctx context.Context, id string) (types.Job, error)
}
