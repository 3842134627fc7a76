// Package protocol defines the wire types exchanged with an Open Rooms Chat
// server. All payloads are JSON. The sync engine only interprets the Seq,
// AuthorID and Text fields of a message; everything else is carried through
// to the consumer unmodified.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is a single entry in a room's append-only, sequence-numbered
// stream. Seq is assigned by the server and is strictly increasing within
// a room.
type Message struct {
	Seq         int64  `json:"seq"`
	RoomID      string `json:"room_id,omitempty"`
	AuthorID    string `json:"author_id"`
	Text        string `json:"text"`
	ContentType string `json:"content_type,omitempty"`
	TS          string `json:"ts,omitempty"`
}

// MessagePage is the response to a forward poll. Messages are in ascending
// sequence order. NextSeq is the continuation cursor to use as from_seq on
// the next poll; the server may advance it even when Messages is empty.
type MessagePage struct {
	Messages []Message `json:"messages"`
	NextSeq  int64     `json:"next_seq"`
}

// BackfillPage is the response to a reverse history fetch. Messages are in
// descending sequence order (newest first).
type BackfillPage struct {
	Messages []Message `json:"messages"`
}

// Room describes a room as returned by the room listing and directory
// endpoints.
type Room struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name,omitempty"`
	Topic  string `json:"topic,omitempty"`
}

// RoomPage is a paginated room listing.
type RoomPage struct {
	Rooms  []Room `json:"rooms"`
	Cursor string `json:"cursor,omitempty"`
}

// User identifies an authenticated principal.
type User struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// AuthResponse is returned by POST /auth/guest.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}

// SendRequest is the body of POST /rooms/{id}/messages.
type SendRequest struct {
	Text        string `json:"text"`
	ContentType string `json:"content_type"`
}

// SendResponse wraps the message the server created for a send. Some server
// versions return the message bare instead of wrapped; DecodeSentMessage
// handles both.
type SendResponse struct {
	Message Message `json:"message"`
}

// AckRequest is the body of POST /rooms/{id}/ack.
type AckRequest struct {
	Seq int64 `json:"seq"`
}

// Capabilities describes optional server features, as reported by
// GET /meta/capabilities. The client treats it as advisory.
type Capabilities struct {
	ServerVersion string   `json:"server_version,omitempty"`
	Features      []string `json:"features,omitempty"`
}

// ErrorEnvelope is the uniform error body returned by the server for
// non-2xx responses.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries a machine-readable code and a human-readable message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DecodeSentMessage decodes the response body of a send. It accepts both
// the wrapped form {"message": {...}} and a bare message object.
func DecodeSentMessage(data []byte) (*Message, error) {
	var wrapped SendResponse
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Message.Seq != 0 {
		return &wrapped.Message, nil
	}
	var bare Message
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, fmt.Errorf("protocol: failed to decode sent message: %w", err)
	}
	return &bare, nil
}
