package dto

import (
	"time"

	"github.com/spec-kit/support-inbox/internal/domain"
)

// AppendMessageRequest is the body of POST /tickets/messages. TicketID is
// required for staff/AI messages; customer appends arrive through the
// channel webhook instead.
type AppendMessageRequest struct {
	TicketID    string             `json:"ticketId"`
	SenderType  domain.SenderType  `json:"senderType"`
	MessageType domain.MessageType `json:"messageType"`
	Content     string             `json:"content"`
	SenderName  *string            `json:"senderName"`
}

// MessageResponse is the wire form of a message.
type MessageResponse struct {
	ID               string             `json:"id"`
	TicketID         string             `json:"ticketId"`
	SenderType       domain.SenderType  `json:"senderType"`
	SenderIdentifier string             `json:"senderIdentifier"`
	SenderName       *string            `json:"senderName"`
	MessageType      domain.MessageType `json:"messageType"`
	Content          string             `json:"content"`
	CreatedAt        time.Time          `json:"createdAt"`
}

// MessageFromDomain converts a domain message.
func MessageFromDomain(msg *domain.Message) MessageResponse {
	return MessageResponse{
		ID:               msg.ID,
		TicketID:         msg.TicketID,
		SenderType:       msg.SenderType,
		SenderIdentifier: msg.SenderIdentifier,
		SenderName:       msg.SenderName,
		MessageType:      msg.MessageType,
		Content:          msg.Content,
		CreatedAt:        msg.CreatedAt,
	}
}

// MessagesFromDomain converts a message log.
func MessagesFromDomain(msgs []domain.Message) []MessageResponse {
	items := make([]MessageResponse, 0, len(msgs))
	for i := range msgs {
		items = append(items, MessageFromDomain(&msgs[i]))
	}
	return items
}
