package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openrooms/chat-client/internal/protocol"
)

// fakeFetcher is a scripted in-memory Fetcher. Forward polls answer from
// page (repeated for every call); backfill answers from backfill. All calls
// are recorded for assertions.
type fakeFetcher struct {
	mu sync.Mutex

	page       *protocol.MessagePage
	forwardErr error
	fromSeqs   []int64

	backfill      []protocol.Message
	backfillErr   error
	backfillCalls int

	ackErr error
	acks   []int64
}

func (f *fakeFetcher) FetchForward(ctx context.Context, roomID string, fromSeq int64, limit int) (*protocol.MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fromSeqs = append(f.fromSeqs, fromSeq)
	if f.forwardErr != nil {
		return nil, f.forwardErr
	}
	if f.page == nil {
		return &protocol.MessagePage{Messages: []protocol.Message{}}, nil
	}
	page := *f.page
	return &page, nil
}

func (f *fakeFetcher) FetchBackward(ctx context.Context, roomID string, beforeSeq int64, limit int) ([]protocol.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backfillCalls++
	if f.backfillErr != nil {
		return nil, f.backfillErr
	}
	return f.backfill, nil
}

func (f *fakeFetcher) Acknowledge(ctx context.Context, roomID string, seq int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, seq)
	return f.ackErr
}

func (f *fakeFetcher) forwardCalls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.fromSeqs...)
}

func (f *fakeFetcher) ackedSeqs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.acks...)
}

type fakeSender struct {
	msg *protocol.Message
	err error
}

func (s *fakeSender) SendMessage(ctx context.Context, roomID, text string) (*protocol.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.msg, nil
}

func newTestEngine(f *fakeFetcher, s Sender) *Engine {
	return New(f, s, Config{
		PollInterval:  10 * time.Millisecond,
		FetchLimit:    100,
		BackfillLimit: 100,
	}, zerolog.Nop())
}

// activate marks a room active without triggering a history load, so poll
// behavior can be tested in isolation.
func (e *Engine) activate(roomID string) {
	e.rooms.Upsert(roomID, "")
	e.mu.Lock()
	e.active = roomID
	e.mu.Unlock()
}

func msgSeqs(events []Event) []int64 {
	var seqs []int64
	for _, ev := range events {
		if ev.Kind == KindMessage {
			seqs = append(seqs, ev.Message.Seq)
		}
	}
	return seqs
}

func TestPollDeliversAndAdvances(t *testing.T) {
	f := &fakeFetcher{page: &protocol.MessagePage{
		Messages: []protocol.Message{{Seq: 1, Text: "a"}, {Seq: 2, Text: "b"}, {Seq: 3, Text: "c"}},
		NextSeq:  4,
	}}
	e := newTestEngine(f, nil)
	e.activate("r1")

	e.pollOnce(context.Background())

	seqs := msgSeqs(e.Drain())
	if len(seqs) != 3 || seqs[0] != 1 || seqs[2] != 3 {
		t.Fatalf("unexpected delivered seqs: %v", seqs)
	}
	c, _ := e.rooms.Get("r1")
	if c.NextSeq != 4 || c.LastSeenSeq != 3 {
		t.Errorf("cursor after poll: next=%d last=%d, want 4/3", c.NextSeq, c.LastSeenSeq)
	}
	if acks := f.ackedSeqs(); len(acks) != 1 || acks[0] != 3 {
		t.Errorf("expected single ack of 3, got %v", acks)
	}
}

func TestFirstPollOmitsFromSeq(t *testing.T) {
	f := &fakeFetcher{page: &protocol.MessagePage{NextSeq: 7}}
	e := newTestEngine(f, nil)
	e.activate("r1")

	e.pollOnce(context.Background())
	e.pollOnce(context.Background())

	calls := f.forwardCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 forward calls, got %d", len(calls))
	}
	if calls[0] != 0 {
		t.Errorf("first poll should pass unset from_seq, got %d", calls[0])
	}
	if calls[1] != 7 {
		t.Errorf("second poll should continue from 7, got %d", calls[1])
	}
}

func TestEmptyPageStillAdvancesContinuation(t *testing.T) {
	f := &fakeFetcher{page: &protocol.MessagePage{Messages: nil, NextSeq: 12}}
	e := newTestEngine(f, nil)
	e.activate("r1")

	e.pollOnce(context.Background())

	c, _ := e.rooms.Get("r1")
	if c.NextSeq != 12 {
		t.Errorf("empty page should adopt continuation, next=%d", c.NextSeq)
	}
	if c.LastSeenSeq != 0 {
		t.Errorf("no messages observed, last=%d", c.LastSeenSeq)
	}
	if acks := f.ackedSeqs(); len(acks) != 0 {
		t.Errorf("nothing seen, nothing to ack, got %v", acks)
	}
}

func TestPollErrorLeavesCursorUnchanged(t *testing.T) {
	f := &fakeFetcher{page: &protocol.MessagePage{
		Messages: []protocol.Message{{Seq: 5}},
		NextSeq:  6,
	}}
	e := newTestEngine(f, nil)
	e.activate("r1")

	e.pollOnce(context.Background())
	e.Drain()
	before, _ := e.rooms.Get("r1")

	f.mu.Lock()
	f.forwardErr = errors.New("connection refused")
	f.mu.Unlock()

	e.pollOnce(context.Background())

	after, _ := e.rooms.Get("r1")
	if after.NextSeq != before.NextSeq || after.LastSeenSeq != before.LastSeenSeq {
		t.Errorf("cursor mutated on error: before=%+v after=%+v", before, after)
	}

	events := e.Drain()
	if len(events) != 1 || events[0].Kind != KindNotice {
		t.Fatalf("expected one notice event, got %+v", events)
	}
}

func TestPollNoActiveRoomIsNoop(t *testing.T) {
	f := &fakeFetcher{}
	e := newTestEngine(f, nil)

	e.pollOnce(context.Background())

	if calls := f.forwardCalls(); len(calls) != 0 {
		t.Errorf("no active room, expected no fetches, got %d", len(calls))
	}
	if got := len(e.Drain()); got != 0 {
		t.Errorf("expected empty queue, got %d events", got)
	}
}

func TestBackfillOrdering(t *testing.T) {
	f := &fakeFetcher{backfill: []protocol.Message{{Seq: 5}, {Seq: 4}, {Seq: 3}}}
	e := newTestEngine(f, nil)
	e.rooms.Upsert("r1", "")

	e.loadHistory(context.Background(), "r1")

	seqs := msgSeqs(e.Drain())
	if len(seqs) != 3 || seqs[0] != 3 || seqs[1] != 4 || seqs[2] != 5 {
		t.Fatalf("backfill must replay ascending, got %v", seqs)
	}
	c, _ := e.rooms.Get("r1")
	if c.NextSeq != 5 || c.LastSeenSeq != 5 {
		t.Errorf("backfill should seed cursor: next=%d last=%d", c.NextSeq, c.LastSeenSeq)
	}
}

func TestBackfillErrorBecomesNotice(t *testing.T) {
	f := &fakeFetcher{backfillErr: errors.New("boom")}
	e := newTestEngine(f, nil)
	e.rooms.Upsert("r1", "")

	e.loadHistory(context.Background(), "r1")

	events := e.Drain()
	if len(events) != 1 || events[0].Kind != KindNotice {
		t.Fatalf("expected one notice, got %+v", events)
	}
	c, _ := e.rooms.Get("r1")
	if c.NextSeq != 0 || c.LastSeenSeq != 0 {
		t.Errorf("failed backfill should not touch cursor: %+v", c)
	}
}

func TestIdempotentRepoll(t *testing.T) {
	f := &fakeFetcher{page: &protocol.MessagePage{
		Messages: []protocol.Message{{Seq: 1}, {Seq: 2}},
		NextSeq:  3,
	}}
	e := newTestEngine(f, nil)
	e.activate("r1")

	e.pollOnce(context.Background())
	first, _ := e.rooms.Get("r1")

	// Server state unchanged: the same page comes back. Cursor must end up
	// identical; redelivery is the consumer's problem, not corruption.
	e.pollOnce(context.Background())
	second, _ := e.rooms.Get("r1")

	if first.NextSeq != second.NextSeq || first.LastSeenSeq != second.LastSeenSeq {
		t.Errorf("cursor not idempotent: first=%+v second=%+v", first, second)
	}
}

func TestAckFailureDoesNotBlockPolling(t *testing.T) {
	f := &fakeFetcher{
		page: &protocol.MessagePage{
			Messages: []protocol.Message{{Seq: 1}},
			NextSeq:  2,
		},
		ackErr: errors.New("ack endpoint down"),
	}
	e := newTestEngine(f, nil)
	e.activate("r1")

	e.pollOnce(context.Background())
	e.pollOnce(context.Background())

	// Both cycles must run their fetch despite failing acks, and the ack
	// failure must not surface as a notice.
	if calls := f.forwardCalls(); len(calls) != 2 {
		t.Fatalf("expected 2 polls despite ack failures, got %d", len(calls))
	}
	for _, ev := range e.Drain() {
		if ev.Kind == KindNotice {
			t.Errorf("ack failure should be silent, got notice %q", ev.Notice)
		}
	}
}

func TestSelectRoomEndToEnd(t *testing.T) {
	f := &fakeFetcher{
		backfill: []protocol.Message{{Seq: 10}, {Seq: 9}, {Seq: 8}},
		page:     &protocol.MessagePage{NextSeq: 10},
	}
	e := newTestEngine(f, nil)

	e.SelectRoom(context.Background(), "r1")
	e.historyWG.Wait()

	seqs := msgSeqs(e.Drain())
	if len(seqs) != 3 || seqs[0] != 8 || seqs[1] != 9 || seqs[2] != 10 {
		t.Fatalf("drain after select: got %v, want [8 9 10]", seqs)
	}

	c, _ := e.rooms.Get("r1")
	if c.NextSeq < 10 || c.LastSeenSeq != 10 {
		t.Fatalf("cursor after history: next=%d last=%d", c.NextSeq, c.LastSeenSeq)
	}

	e.pollOnce(context.Background())
	calls := f.forwardCalls()
	if len(calls) != 1 || calls[0] != 10 {
		t.Errorf("next poll should continue from 10, got %v", calls)
	}
}

func TestSwitchingRoomsPreservesCursor(t *testing.T) {
	f := &fakeFetcher{page: &protocol.MessagePage{
		Messages: []protocol.Message{{Seq: 4}},
		NextSeq:  5,
	}}
	e := newTestEngine(f, nil)
	e.activate("r1")
	e.pollOnce(context.Background())

	// Switch away and back; r1's cursor must survive untouched.
	e.activate("r2")
	c, ok := e.rooms.Get("r1")
	if !ok || c.NextSeq != 5 || c.LastSeenSeq != 4 {
		t.Errorf("r1 cursor lost on switch: %+v ok=%v", c, ok)
	}
}

func TestSendOptimisticDelivery(t *testing.T) {
	f := &fakeFetcher{}
	s := &fakeSender{msg: &protocol.Message{Seq: 21, AuthorID: "me", Text: "hello"}}
	e := newTestEngine(f, s)
	e.rooms.Upsert("r1", "")

	if err := e.Send(context.Background(), "r1", "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	events := e.Drain()
	if len(events) != 1 || events[0].Message.Seq != 21 {
		t.Fatalf("expected optimistic echo, got %+v", events)
	}

	// Send must not advance the cursor; the echo arrives via polling.
	c, _ := e.rooms.Get("r1")
	if c.NextSeq != 0 || c.LastSeenSeq != 0 {
		t.Errorf("send should not touch the cursor: %+v", c)
	}
}

func TestSendErrorPropagates(t *testing.T) {
	e := newTestEngine(&fakeFetcher{}, &fakeSender{err: errors.New("rejected")})

	if err := e.Send(context.Background(), "r1", "x"); err == nil {
		t.Fatal("expected send error")
	}
	if got := len(e.Drain()); got != 0 {
		t.Errorf("failed send must not enqueue, got %d events", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := &fakeFetcher{page: &protocol.MessagePage{NextSeq: 1}}
	e := newTestEngine(f, nil)
	e.activate("r1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	// Let at least one cycle happen, then stop.
	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	// No further fetches after the stop signal.
	calls := len(f.forwardCalls())
	time.Sleep(30 * time.Millisecond)
	if after := len(f.forwardCalls()); after != calls {
		t.Errorf("fetches continued after cancel: %d -> %d", calls, after)
	}
}
