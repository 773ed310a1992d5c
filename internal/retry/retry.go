// Package retry reruns store calls that failed for transient reasons.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/playout/internal/db"
)

// ErrTransientStore wraps the last error once the retries are used up.
var ErrTransientStore = errors.New("store unavailable")

// Backoff retries transient store failures with a doubling delay.
type Backoff struct {
	Retries int
	Initial time.Duration
	Max     time.Duration
}

func Default() Backoff {
	return Backoff{Retries: 3, Initial: 200 * time.Millisecond, Max: 5 * time.Second}
}

// Do runs fn until it succeeds, fails permanently or the retries run out.
// Exhausted retries are reported as ErrTransientStore.
func (b Backoff) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	delay := b.Initial
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !db.IsTransient(err) {
			return err
		}
		if attempt >= b.Retries {
			return fmt.Errorf("%w: %s after %d attempts: %w", ErrTransientStore, op, attempt+1, err)
		}

		log.Warn().Err(err).
			Str("op", op).
			Int("attempt", attempt+1).
			Dur("retry_in", delay).
			Msg("transient store error, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}
}
