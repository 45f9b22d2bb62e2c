package engine

import (
	"context"
	"time"
)

// Sweeper drives the two time-based paths on a ticker: auto-release of
// expired escrow holds and resolution of stuck PROCESSING collections.
// Safe to run alongside callbacks and user actions: every payment is
// visited under its entity lock and already-moved rows are no-ops.
type Sweeper struct {
	Engine   *Engine
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
			n, err := sw.Engine.AutoReleaseDue(ctx)
			if err != nil {
				sw.Engine.Logger.Error("auto-release sweep", "err", err)
			} else if n > 0 {
				sw.Engine.Logger.Info("auto-release sweep", "released", n)
			}
			if err := sw.Engine.PollProcessing(ctx); err != nil {
				sw.Engine.Logger.Error("processing sweep", "err", err)
			}
		}
	}
}
