package engine

import (
	"context"
	"fmt"

	"github.com/openrooms/chat-client/internal/metrics"
)

// loadHistory fetches the most recent backfill page for roomID and replays
// it oldest-first onto the delivery queue. Each replayed seq raises both
// NextSeq and LastSeenSeq, so the next forward poll continues past the
// backfilled page instead of re-requesting it. Errors surface as a notice
// and are not retried.
func (e *Engine) loadHistory(ctx context.Context, roomID string) {
	msgs, err := e.fetcher.FetchBackward(ctx, roomID, 0, e.cfg.BackfillLimit)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.FetchErrors.WithLabelValues("backfill").Inc()
		e.log.Warn().Err(err).Str("room", roomID).Msg("history load failed")
		e.queue.Push(NoticeEvent(roomID, fmt.Sprintf("history load failed: %v", err)))
		return
	}

	// The server returns the page newest-first; replay in ascending order
	// so the consumer always sees oldest-first.
	seqs := make([]int64, 0, len(msgs))
	maxSeq := int64(0)
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		e.queue.Push(MessageEvent(roomID, msg))
		seqs = append(seqs, msg.Seq)
		if msg.Seq > maxSeq {
			maxSeq = msg.Seq
		}
	}
	if len(msgs) > 0 {
		metrics.MessagesDelivered.WithLabelValues("backfill").Add(float64(len(msgs)))
	}

	e.rooms.Advance(roomID, maxSeq, seqs)
	e.log.Debug().Str("room", roomID).Int("messages", len(msgs)).
		Int64("max_seq", maxSeq).Msg("history loaded")
}
