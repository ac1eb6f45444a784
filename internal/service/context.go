package service

import (
	"context"
	"time"
)

// finishTimeout bounds work that must run to completion once balances
// have started to move.
const finishTimeout = 10 * time.Second

// detach keeps ctx values (request logger) but drops its cancellation, so
// a caller that goes away cannot leave a balance change half applied.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
}
