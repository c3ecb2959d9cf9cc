package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// errPollWindowElapsed is the cancellation cause of Await's own MaxDuration
// deadline, so it can be told apart from a deadline the caller set.
var errPollWindowElapsed = errors.New("gateway poll window elapsed")

// Await resolves ref until it leaves Pending, the policy is exhausted, or ctx
// is cancelled (for example when the client disconnects). Transport errors
// from Resolve count as attempts.
func Await(ctx context.Context, a Adapter, ref IntentRef) (Outcome, error) {
	policy := a.PollPolicy()
	attempts := max(policy.MaxAttempts, 1)

	if policy.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, policy.MaxDuration, errPollWindowElapsed)
		defer cancel()
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			timer := time.NewTimer(policy.Interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Outcome{}, awaitDone(ctx, lastErr)
			case <-timer.C:
			}
		}

		outcome, err := a.Resolve(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, awaitDone(ctx, err)
			}
			lastErr = err
			continue
		}
		if outcome.Status != StatusPending {
			return outcome, nil
		}
	}

	if lastErr != nil {
		return Outcome{}, fmt.Errorf("%w after %d attempts: %v", ErrGatewayTimeout, attempts, lastErr)
	}
	return Outcome{}, fmt.Errorf("%w after %d attempts", ErrGatewayTimeout, attempts)
}

// awaitDone separates our own deadline (a timeout) from the caller going away
// or running out of its own time.
func awaitDone(ctx context.Context, lastErr error) error {
	if errors.Is(context.Cause(ctx), errPollWindowElapsed) {
		if lastErr != nil {
			return fmt.Errorf("%w: %v", ErrGatewayTimeout, lastErr)
		}
		return ErrGatewayTimeout
	}
	return ctx.Err()
}
