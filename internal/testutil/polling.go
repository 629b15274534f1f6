// Package testutil holds the helpers whatsdemo tests share for waiting on
// asynchronous work, such as timer driven playback, recordings being
// finalized and file system events, and for skipping platform dependent
// cases.
package testutil

import (
	"context"
	"fmt"
	"time"
)

// Poll waits until condition reports true. See WaitForState.
func Poll(ctx context.Context, condition func() bool, timeout time.Duration, interval time.Duration) error {
	_, err := WaitForState(ctx, condition, func(ok bool) bool { return ok }, timeout, interval)
	return err
}

// WaitForState samples getter every interval and returns the first value
// predicate accepts. It fails once timeout has elapsed, or with ctx.Err()
// when ctx ends first. getter is always sampled at least once.
//
//	st, err := testutil.WaitForState(ctx, driver.State,
//		func(s playback.State) bool { return s.AtEnd() },
//		testutil.FinalizeTimeout, testutil.PollingInterval)
func WaitForState[T any](ctx context.Context, getter func() T, predicate func(T) bool, timeout time.Duration, interval time.Duration) (T, error) {
	expired := time.NewTimer(timeout)
	defer expired.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	var zero T
	for {
		if v := getter(); predicate(v) {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-expired.C:
			return zero, fmt.Errorf("timeout waiting for target state (type %T, threshold: %v)", zero, timeout)
		case <-tick.C:
		}
	}
}
