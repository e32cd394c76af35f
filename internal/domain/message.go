package domain

import "time"

// SenderType indicates who authored a message.
type SenderType string

const (
	SenderTypeCustomer SenderType = "CUSTOMER"
	SenderTypeAI       SenderType = "AI"
	SenderTypeUser     SenderType = "USER"
)

// Valid reports whether the sender type is known.
func (s SenderType) Valid() bool {
	switch s {
	case SenderTypeCustomer, SenderTypeAI, SenderTypeUser:
		return true
	}
	return false
}

// MessageType differentiates message content kinds.
type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeAudio MessageType = "AUDIO"
)

// Valid reports whether the message type is known.
func (m MessageType) Valid() bool {
	return m == MessageTypeText || m == MessageTypeAudio
}

// Message is one entry in a ticket's append-only conversation log. Content is
// plain text for TEXT messages and a media URL for AUDIO. Seq is the
// per-ticket insertion sequence and breaks ties between equal timestamps.
type Message struct {
	ID               string
	TicketID         string
	SenderType       SenderType
	SenderIdentifier string
	SenderName       *string
	MessageType      MessageType
	Content          string
	Seq              int64
	CreatedAt        time.Time
}
