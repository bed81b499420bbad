package models

// Message is a chat message as stored in the log and carried on the wire.
//
// ID is assigned by the log at insert time and is strictly increasing.
// ClientOffset is the client-generated idempotency key, unique across the log.
// Origin is the submitting session's ID; it is set only on the broadcast
// channel so workers can skip re-delivery to the author, never persisted.
type Message struct {
	ID           int64  `json:"id"`
	ClientOffset string `json:"client_offset,omitempty"`
	Content      string `json:"content"`
	Origin       string `json:"origin,omitempty"`
}
