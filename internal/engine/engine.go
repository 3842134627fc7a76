// Package engine implements the client-side synchronization core: a
// cursor-driven poll loop, a one-shot history loader per room selection,
// and a FIFO delivery queue feeding the consumer. The engine never talks
// HTTP itself; it drives an abstract Fetcher so the transport stays at the
// boundary.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openrooms/chat-client/internal/metrics"
	"github.com/openrooms/chat-client/internal/protocol"
	"github.com/openrooms/chat-client/internal/room"
)

// Fetcher is the remote read/ack boundary the engine depends on.
//
// FetchForward returns messages in ascending sequence order starting at
// fromSeq, plus a continuation cursor; fromSeq <= 0 means "server default
// start point". FetchBackward returns the page of messages before beforeSeq
// in descending order; beforeSeq <= 0 means "most recent page". Acknowledge
// reports a read receipt; the engine treats its failures as non-fatal.
type Fetcher interface {
	FetchForward(ctx context.Context, roomID string, fromSeq int64, limit int) (*protocol.MessagePage, error)
	FetchBackward(ctx context.Context, roomID string, beforeSeq int64, limit int) ([]protocol.Message, error)
	Acknowledge(ctx context.Context, roomID string, seq int64) error
}

// Sender posts a new message to a room and returns the server's echo of it.
type Sender interface {
	SendMessage(ctx context.Context, roomID, text string) (*protocol.Message, error)
}

// Config holds engine tuning parameters.
type Config struct {
	PollInterval  time.Duration // sync loop period (default 2s)
	FetchLimit    int           // max messages per forward poll (default 100)
	BackfillLimit int           // max messages per history page (default 100)
}

// DefaultConfig returns the defaults used by the terminal client.
func DefaultConfig() Config {
	return Config{
		PollInterval:  2 * time.Second,
		FetchLimit:    100,
		BackfillLimit: 100,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.FetchLimit <= 0 {
		c.FetchLimit = d.FetchLimit
	}
	if c.BackfillLimit <= 0 {
		c.BackfillLimit = d.BackfillLimit
	}
}

// Engine coordinates the sync loop, the history loader and the delivery
// queue for a set of tracked rooms. At most one room is actively polled at
// a time; switching rooms preserves the previous room's cursor so
// re-selecting it resumes from where it left off.
type Engine struct {
	fetcher Fetcher
	sender  Sender
	rooms   *room.Store
	queue   *Queue
	cfg     Config
	log     zerolog.Logger

	mu     sync.RWMutex
	active string

	historyWG sync.WaitGroup
}

// New creates an engine. sender may be nil when the consumer never sends.
func New(fetcher Fetcher, sender Sender, cfg Config, log zerolog.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{
		fetcher: fetcher,
		sender:  sender,
		rooms:   room.NewStore(log),
		queue:   NewQueue(),
		cfg:     cfg,
		log:     log,
	}
}

// Track registers a room with the cursor store without selecting it.
// Idempotent: an already-tracked room only has its display name refreshed.
func (e *Engine) Track(roomID, name string) {
	e.rooms.Upsert(roomID, name)
	metrics.TrackedRooms.Set(float64(len(e.rooms.Snapshot())))
}

// Rooms returns a snapshot of all tracked cursors.
func (e *Engine) Rooms() []room.Cursor {
	return e.rooms.Snapshot()
}

// ActiveRoom returns the currently selected room ID, or the empty string.
func (e *Engine) ActiveRoom() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// SelectRoom makes roomID the actively polled room and kicks off a
// background history load for it. History is reloaded on every selection,
// including re-selection of the current room, so the consumer always gets
// a fresh snapshot of the latest page.
func (e *Engine) SelectRoom(ctx context.Context, roomID string) {
	c := e.rooms.Upsert(roomID, "")

	e.mu.Lock()
	e.active = roomID
	e.mu.Unlock()

	e.log.Info().Str("room", roomID).Int64("next_seq", c.NextSeq).Msg("room selected")

	e.historyWG.Add(1)
	go func() {
		defer e.historyWG.Done()
		e.loadHistory(ctx, roomID)
	}()
}

// Send posts text to roomID and optimistically enqueues the server's echo
// so the consumer renders it before the next poll cycle picks it up. The
// cursor is not advanced here; the poll loop will redeliver the message
// when it arrives through the normal stream, which the consumer may
// deduplicate by seq if it cares.
func (e *Engine) Send(ctx context.Context, roomID, text string) error {
	if e.sender == nil {
		return fmt.Errorf("engine: no sender configured")
	}
	msg, err := e.sender.SendMessage(ctx, roomID, text)
	if err != nil {
		return fmt.Errorf("engine: send to %s failed: %w", roomID, err)
	}
	e.queue.Push(MessageEvent(roomID, *msg))
	metrics.MessagesDelivered.WithLabelValues("send").Inc()
	return nil
}

// Drain returns all currently queued delivery events without blocking.
func (e *Engine) Drain() []Event {
	return e.queue.Drain()
}

// Run drives the sync loop until ctx is cancelled. Once cancelled, no
// further cursor mutation or acknowledgment happens and Run returns after
// any in-flight history loads finish.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	e.log.Info().Dur("interval", e.cfg.PollInterval).Msg("sync loop started")
	for {
		select {
		case <-ctx.Done():
			e.historyWG.Wait()
			e.log.Info().Msg("sync loop stopped")
			return
		case <-ticker.C:
			e.pollOnce(ctx)
		}
	}
}
