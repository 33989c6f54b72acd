package client

import (
	"context"
	"fmt"
	"time"

	"github.com/apiharness/sdk/apierr"
)

// Until controls a polling wait.
type Until struct {
	// Timeout bounds the whole wait. Defaults to 30s.
	Timeout time.Duration

	// Interval is the pause between condition checks. Defaults to 2s.
	Interval time.Duration

	// Delay is an initial pause before the first check. Defaults to 100ms.
	Delay time.Duration
}

// Await polls cond until it reports true, fails, or the timeout elapses.
// It is the building block for "wait until the resource exists" steps in
// API test flows.
func Await(ctx context.Context, until Until, cond func(ctx context.Context) (bool, error)) error {
	if until.Timeout <= 0 {
		until.Timeout = 30 * time.Second
	}
	if until.Interval <= 0 {
		until.Interval = 2 * time.Second
	}
	if until.Delay <= 0 {
		until.Delay = 100 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, until.Timeout)
	defer cancel()

	if err := sleep(ctx, until.Delay); err != nil {
		return apierr.NewRequestError("client.Await",
			fmt.Errorf("condition not met within %s: %w", until.Timeout, err))
	}

	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if err := sleep(ctx, until.Interval); err != nil {
			return apierr.NewRequestError("client.Await",
				fmt.Errorf("condition not met within %s: %w", until.Timeout, err))
		}
	}
}
