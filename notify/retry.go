package notify

import (
	"context"
	"time"
)

// RetryConfig 单次发布的重试策略，在熔断器内执行，整组重试计为一次请求
type RetryConfig struct {
	// MaxAttempts 总尝试次数（含首次），<=1 表示不重试
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	MaxDelay      time.Duration `yaml:"max_delay"`
}

// DefaultRetryConfig 1 次重试，2ms 起指数退避
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  2 * time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      time.Second,
	}
}

// retry 执行 op 直到成功、次数用尽或 ctx 结束，返回最后一次的错误
func retry(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) error {
	attempts := max(cfg.MaxAttempts, 1)
	delay := cfg.InitialDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil || attempt >= attempts {
			return err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if cfg.BackoffFactor > 1 {
			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		}
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
