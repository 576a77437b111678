package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lancepay/lps/internal/retry"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")
var errPermanent = errors.New("permanent")

func alwaysTransient(err error) bool { return errors.Is(err, errTransient) }

func TestDoBackoffSchedule(t *testing.T) {
	var slept []time.Duration
	p := retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: 750 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		Jitter:         250 * time.Millisecond,
		Sleep:          func(d time.Duration) { slept = append(slept, d) },
		Rand:           func(n int64) int64 { return n - 1 }, // 固定取最大抖动
	}

	attempts := 0
	err := p.Do(context.Background(), func(attempt int) error {
		attempts++
		require.Equal(t, attempts, attempt)
		return errTransient
	}, alwaysTransient)

	require.ErrorIs(t, err, errTransient)
	require.Equal(t, 3, attempts)
	// 750ms、1500ms 两次退避，各加 250ms-1ns 的抖动上限
	require.Len(t, slept, 2)
	require.GreaterOrEqual(t, slept[0], 750*time.Millisecond)
	require.Less(t, slept[0], 1000*time.Millisecond)
	require.GreaterOrEqual(t, slept[1], 1500*time.Millisecond)
	require.Less(t, slept[1], 1750*time.Millisecond)
}

func TestDoBackoffCap(t *testing.T) {
	var slept []time.Duration
	p := retry.Policy{
		MaxAttempts:    6,
		InitialBackoff: 750 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		Sleep:          func(d time.Duration) { slept = append(slept, d) },
	}

	err := p.Do(context.Background(), func(int) error { return errTransient }, alwaysTransient)
	require.ErrorIs(t, err, errTransient)

	// 750 → 1500 → 3000 → 6000 → 8000（封顶）
	want := []time.Duration{
		750 * time.Millisecond,
		1500 * time.Millisecond,
		3 * time.Second,
		6 * time.Second,
		8 * time.Second,
	}
	require.Equal(t, want, slept)
}

func TestDoStopsOnSuccess(t *testing.T) {
	p := retry.Policy{MaxAttempts: 3, Sleep: func(time.Duration) {}}

	attempts := 0
	err := p.Do(context.Background(), func(int) error {
		attempts++
		if attempts < 2 {
			return errTransient
		}
		return nil
	}, alwaysTransient)

	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestDoNoRetryOnPermanentError(t *testing.T) {
	slept := 0
	p := retry.Policy{MaxAttempts: 3, Sleep: func(time.Duration) { slept++ }}

	attempts := 0
	err := p.Do(context.Background(), func(int) error {
		attempts++
		return errPermanent
	}, alwaysTransient)

	require.ErrorIs(t, err, errPermanent)
	require.Equal(t, 1, attempts)
	require.Zero(t, slept)
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		Sleep:          func(time.Duration) { cancel() },
	}

	attempts := 0
	err := p.Do(ctx, func(int) error {
		attempts++
		return errTransient
	}, alwaysTransient)

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, attempts)
}
