// Package retry decides whether a failed upstream attempt is retried and how
// long to wait before the next one.
//
// A Policy is stateless and safe for concurrent use. The attempt counter lives
// with the caller:
//
//	policy := retry.NewPolicy(cfg.Retry)
//	for i := 0; ; i++ {
//		outcome := client.Generate(ctx, req)
//		if !policy.ShouldRetry(outcome, i) {
//			break
//		}
//		if err := retry.Sleep(ctx, policy.DelayFor(i)); err != nil {
//			break
//		}
//	}
//
// Delays grow as BaseDelay * 2^i plus a uniform random jitter in [0, Jitter).
package retry
