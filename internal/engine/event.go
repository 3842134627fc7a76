package engine

import "github.com/openrooms/chat-client/internal/protocol"

// EventKind discriminates delivery queue entries.
type EventKind string

const (
	// KindMessage carries a room message discovered by the poll loop, the
	// history loader, or an optimistic send echo.
	KindMessage EventKind = "message"
	// KindNotice carries out-of-band text for the consumer, such as a
	// fetch failure or a room transition.
	KindNotice EventKind = "notice"
)

// Event is a single entry on the delivery queue: either a message or a
// notice. RoomID is set for both kinds; Message is nil for notices.
type Event struct {
	Kind    EventKind
	RoomID  string
	Message *protocol.Message
	Notice  string
}

// MessageEvent builds a message event for the given room.
func MessageEvent(roomID string, msg protocol.Message) Event {
	return Event{Kind: KindMessage, RoomID: roomID, Message: &msg}
}

// NoticeEvent builds a notice event for the given room. roomID may be empty
// for notices not tied to a specific room.
func NoticeEvent(roomID, text string) Event {
	return Event{Kind: KindNotice, RoomID: roomID, Notice: text}
}
