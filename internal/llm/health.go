package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"video-transcript-go/internal/logger"
)

var errUnhealthy = errors.New("backend not healthy")

// WaitUntilHealthy polls the backend with exponential backoff until it answers
// or maxWait elapses. It reports the final state; callers decide whether a
// degraded start is acceptable.
func WaitUntilHealthy(ctx context.Context, b Backend, maxWait time.Duration, log *logger.Logger) bool {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = maxWait

	attempt := 0
	op := func() error {
		attempt++
		if b.Healthy(ctx) {
			return nil
		}
		log.WithField("attempt", attempt).Debug("llm backend not ready yet")
		return errUnhealthy
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		log.WithField("attempts", attempt).Warn("llm backend not reachable, starting degraded")
		return false
	}
	log.WithField("attempts", attempt).Info("llm backend ready")
	return true
}
