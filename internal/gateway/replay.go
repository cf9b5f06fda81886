package gateway

import (
	"context"
	"time"
)

// Replay drains the mutation queue strictly in creation order.
//
// For each pending mutation the original ID travels as the Idempotency-Key,
// so a retried call that actually succeeded server-side but whose
// acknowledgement was lost is not double-applied. On success the entry is
// removed and the entity's cache is invalidated. On a transient failure the
// cycle stops - a later mutation must never reach the server before an
// earlier one that is still failing - the entry's attempt counter is
// bumped, and a later cycle is scheduled. A definitive server rejection
// moves the entry to failed-permanent and lets the cycle continue, since
// the rejected write will never block its successors again.
//
// Cycles are single-flight: a cycle already in progress makes Replay
// return immediately rather than interleave.
func (g *Gateway) Replay(ctx context.Context) error {
	select {
	case g.replaying <- struct{}{}:
		defer func() { <-g.replaying }()
	default:
		return nil
	}

	pending, err := g.queue.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	g.logger.Info("replay cycle started", "pending", len(pending))

	for _, m := range pending {
		if !g.monitor.IsOnline() {
			g.logger.Info("replay cycle paused, connectivity lost")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := g.queue.MarkInFlight(ctx, m.ID); err != nil {
			return err
		}

		sendErr := g.send(ctx, m.ID, m.Endpoint, m.Method, m.Body)
		if sendErr == nil {
			if err := g.queue.MarkSucceeded(ctx, m.ID); err != nil {
				return err
			}
			if err := g.inval.Invalidate(ctx, m.EntityType); err != nil {
				g.logger.Warn("invalidation after replay failed",
					"entity", m.EntityType, "error", err)
			}
			continue
		}

		if IsPermanent(sendErr) {
			if err := g.queue.MarkRejected(ctx, m.ID); err != nil {
				return err
			}
			continue
		}

		// Transient or auth: preserve ordering by stopping the cycle here.
		updated, err := g.queue.MarkFailed(ctx, m.ID)
		if err != nil {
			return err
		}
		g.logger.Warn("replay stopped at failing mutation",
			"id", m.ID, "attempts", updated.Attempts, "error", sendErr)
		g.scheduleRetry(ctx)
		return nil
	}

	g.logger.Info("replay cycle drained queue")
	return nil
}

// scheduleRetry arms a one-shot timer for the next automatic cycle after a
// failed one. Disabled when the retry delay is zero.
func (g *Gateway) scheduleRetry(ctx context.Context) {
	if g.retryDelay <= 0 {
		return
	}
	time.AfterFunc(g.retryDelay, func() {
		if ctx.Err() != nil || !g.monitor.IsOnline() {
			return
		}
		if err := g.Replay(ctx); err != nil {
			g.logger.Warn("scheduled replay cycle failed", "error", err)
		}
	})
}
