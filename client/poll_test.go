package client

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitSucceeds(t *testing.T) {
	checks := 0
	err := Await(context.Background(), Until{
		Timeout:  time.Second,
		Interval: time.Millisecond,
		Delay:    time.Millisecond,
	}, func(context.Context) (bool, error) {
		checks++
		return checks >= 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, checks)
}

func TestAwaitTimesOut(t *testing.T) {
	err := Await(context.Background(), Until{
		Timeout:  20 * time.Millisecond,
		Interval: time.Millisecond,
		Delay:    time.Millisecond,
	}, func(context.Context) (bool, error) {
		return false, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwaitConditionError(t *testing.T) {
	boom := fmt.Errorf("boom")
	err := Await(context.Background(), Until{
		Timeout:  time.Second,
		Interval: time.Millisecond,
		Delay:    time.Millisecond,
	}, func(context.Context) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}
