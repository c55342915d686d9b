package swap

import (
	"context"
	"errors"
	"time"
)

// ErrGaveUp is returned by PollUntil when its give-up condition fires.
var ErrGaveUp = errors.New("gave up waiting")

// Condition is evaluated by PollUntil. A non-nil error stops polling.
type Condition func(ctx context.Context) (bool, error)

// PollUntil evaluates check, then giveUp, and sleeps interval between
// rounds until check reports true (nil), giveUp reports true (ErrGaveUp),
// either returns an error, or ctx ends. giveUp may be nil.
func PollUntil(ctx context.Context, interval time.Duration, check, giveUp Condition) error {
	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if giveUp != nil {
			stop, err := giveUp(ctx)
			if err != nil {
				return err
			}
			if stop {
				return ErrGaveUp
			}
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
