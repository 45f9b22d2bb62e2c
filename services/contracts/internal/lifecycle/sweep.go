package lifecycle

import (
	"context"
	"time"
)

// Sweeper runs the activation sweep on a ticker. Safe to run alongside
// user-initiated actions: each contract is visited under its entity
// lock and already-moved rows are no-ops.
type Sweeper struct {
	Service  *Service
	Interval time.Duration
}

func (sw *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(sw.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := sw.Service.ActivateExpired(ctx)
			if err != nil {
				sw.Service.Logger.Error("activation sweep", "err", err)
				continue
			}
			if n > 0 {
				sw.Service.Logger.Info("activation sweep", "activated", n)
			}
		}
	}
}
