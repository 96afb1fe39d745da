package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stratumhq/stratum/pkg/connector"
	"github.com/stratumhq/stratum/pkg/writer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instantPolicy() *Policy {
	p := NewPolicy(nil)
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil } // skip real sleeping in tests
	return p
}

func TestDoRetriesRetryableErrorsThenSucceeds(t *testing.T) {
	p := instantPolicy()
	attempts := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &writer.ClassifiedError{Kind: connector.ErrorRetryable, Err: errors.New("transient")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	p := instantPolicy()
	attempts := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return &writer.ClassifiedError{Kind: connector.ErrorPermanent, Err: errors.New("bad data")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoNeverExceedsScheduleLengthAttempts(t *testing.T) {
	p := instantPolicy()
	p.breaker = &CircuitBreaker{state: closedState}
	attempts := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		// keep the breaker closed throughout so this isolates the
		// attempt-count bound from breaker-open behavior.
		p.breaker.consecutiveFailures = 0
		return &writer.ClassifiedError{Kind: connector.ErrorRetryable, Err: errors.New("always fails")}
	})
	require.Error(t, err)
	assert.Equal(t, len(Schedule), attempts)
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	p := instantPolicy()
	for i := 0; i < BreakerOpenThreshold; i++ {
		_ = p.Do(context.Background(), func(ctx context.Context) error {
			return &writer.ClassifiedError{Kind: connector.ErrorPermanent, Err: errors.New("fail")}
		})
	}
	err := p.Do(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
}
