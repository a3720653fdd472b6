package notify

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry(t *testing.T) {
	ctx := context.Background()
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: 2 * time.Millisecond}

	calls := 0
	err := retry(ctx, cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return stdErrors.New("flaky")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retry(ctx, cfg, func(context.Context) error {
		calls++
		return stdErrors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)

	calls = 0
	_ = retry(ctx, RetryConfig{}, func(context.Context) error {
		calls++
		return stdErrors.New("down")
	})
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry(ctx, RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return stdErrors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

type flakyTransport struct {
	failures int
	calls    int
}

func (f *flakyTransport) Publish(context.Context, *Message) error {
	f.calls++
	if f.calls <= f.failures {
		return stdErrors.New("timeout")
	}
	return nil
}
func (f *flakyTransport) Subscribe(string, Handler) error { return nil }
func (f *flakyTransport) Start(context.Context) error     { return nil }
func (f *flakyTransport) Close() error                    { return nil }
func (f *flakyTransport) Stats() Stats                    { return Stats{} }

func TestPublisher_RetriesInsideBreaker(t *testing.T) {
	tr := &flakyTransport{failures: 1}
	p := NewPublisher(tr,
		WithRetry(RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}),
		WithBreaker(BreakerConfig{ConsecutiveFailures: 1, Timeout: time.Hour}))

	err := p.Publish(context.Background(), &Message{Table: "person", Kind: "inserted"})
	assert.NoError(t, err)
	assert.Equal(t, 2, tr.calls)
	assert.Equal(t, "closed", p.State().String())
}
