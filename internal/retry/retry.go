package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy 有界指数退避重试策略
//
// Sleep 和 Rand 可注入，测试里用假实现就能校验完整的退避序列，
// 不需要真实等待。零值字段在 Do 里按默认值补齐。
type Policy struct {
	MaxAttempts    int           // 最大尝试次数（含首次）
	InitialBackoff time.Duration // 首次重试前的退避
	MaxBackoff     time.Duration // 退避上限
	Jitter         time.Duration // 每次退避附加 [0,Jitter) 的随机抖动

	Sleep func(time.Duration) // 默认 time.Sleep
	Rand  func(n int64) int64 // 默认 rand.Int63n
}

// Default 钱包开户使用的默认策略
func Default() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 750 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		Jitter:         250 * time.Millisecond,
	}
}

// Do 执行 op，仅在 retryable 判定为瞬时错误时重试
//
// attempt 从1开始；瞬时错误之外的任何结果立即返回。
// ctx 取消后不再发起下一次尝试，返回取消原因。
func (p Policy) Do(ctx context.Context, op func(attempt int) error, retryable func(error) bool) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	random := p.Rand
	if random == nil {
		random = rand.Int63n
	}

	backoff := p.InitialBackoff
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = op(attempt)
		if err == nil || !retryable(err) || attempt == maxAttempts {
			return err
		}

		delay := backoff
		if p.Jitter > 0 {
			delay += time.Duration(random(int64(p.Jitter)))
		}
		sleep(delay)

		backoff *= 2
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
	return err
}
