package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/openrooms/chat-client/internal/metrics"
)

// pollOnce runs a single sync cycle against the active room. A fetch error
// leaves the cursor untouched and surfaces as a notice on the queue; the
// next cycle simply re-requests the same from_seq. Acknowledge failures are
// swallowed entirely since a lost read receipt is not user-visible data
// loss.
func (e *Engine) pollOnce(ctx context.Context) {
	metrics.PollCycles.Inc()

	e.mu.RLock()
	roomID := e.active
	e.mu.RUnlock()
	if roomID == "" {
		return
	}

	cursor, ok := e.rooms.Get(roomID)
	if !ok {
		// Selection always upserts, so this means the room was removed
		// from under us. Skip the cycle.
		e.log.Warn().Str("room", roomID).Msg("active room has no cursor")
		return
	}

	start := time.Now()
	page, err := e.fetcher.FetchForward(ctx, roomID, cursor.NextSeq, e.cfg.FetchLimit)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.FetchErrors.WithLabelValues("poll").Inc()
		e.log.Warn().Err(err).Str("room", roomID).Msg("forward poll failed")
		e.queue.Push(NoticeEvent(roomID, fmt.Sprintf("polling error: %v", err)))
		return
	}

	seqs := make([]int64, 0, len(page.Messages))
	for _, msg := range page.Messages {
		e.queue.Push(MessageEvent(roomID, msg))
		seqs = append(seqs, msg.Seq)
	}
	if len(page.Messages) > 0 {
		metrics.MessagesDelivered.WithLabelValues("poll").Add(float64(len(page.Messages)))
	}

	// Adopt the continuation cursor even on an empty page; the server may
	// advance the window without returning entries.
	e.rooms.Advance(roomID, page.NextSeq, seqs)

	if updated, ok := e.rooms.Get(roomID); ok && updated.LastSeenSeq > 0 {
		if err := e.fetcher.Acknowledge(ctx, roomID, updated.LastSeenSeq); err != nil {
			metrics.FetchErrors.WithLabelValues("ack").Inc()
			e.log.Debug().Err(err).Str("room", roomID).
				Int64("seq", updated.LastSeenSeq).Msg("ack failed")
		}
	}
}
