package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var errNotYet = errors.New("condition not met yet")

// Poller waits for an exchange side effect (a fill, a cancel) at a fixed interval.
// MaxAttempts 0 waits until the condition holds or ctx is done.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
	logger      *zap.Logger
}

func NewPoller(interval time.Duration, maxAttempts int, logger *zap.Logger) *Poller {
	return &Poller{Interval: interval, MaxAttempts: maxAttempts, logger: logger.Named("poller")}
}

// Until calls cond until it returns true. An error from cond stops the poll and is returned.
func (p *Poller) Until(ctx context.Context, name string, cond func(ctx context.Context) (bool, error)) error {
	var b backoff.BackOff = backoff.NewConstantBackOff(p.Interval)
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	b = backoff.WithContext(b, ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		done, err := cond(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			p.logger.Debug("Waiting", zap.String("name", name), zap.Int("attempt", attempts))
			return errNotYet
		}
		return nil
	}, b)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errNotYet):
		return fmt.Errorf("%s: %w after %d attempts", name, ErrPollExhausted, attempts)
	default:
		return fmt.Errorf("%s: %w", name, err)
	}
}
