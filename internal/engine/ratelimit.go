package engine

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// upstreamLimiter gates every outbound request to the transcript provider.
// nil = unlimited.
var upstreamLimiter atomic.Pointer[rate.Limiter]

// InitRateLimit installs the process-wide upstream limiter.
// rps <= 0 disables limiting; burst < 1 is raised to 1.
func InitRateLimit(rps float64, burst int) {
	if rps <= 0 {
		upstreamLimiter.Store(nil)
		return
	}
	if burst < 1 {
		burst = 1
	}
	upstreamLimiter.Store(rate.NewLimiter(rate.Limit(rps), burst))
}

// WaitUpstream blocks until the limiter grants a token or ctx is done.
func WaitUpstream(ctx context.Context) error {
	l := upstreamLimiter.Load()
	if l == nil {
		return ctx.Err()
	}
	return l.Wait(ctx)
}
