package channel

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-inbox/internal/domain"
	"github.com/spec-kit/support-inbox/internal/repository"
	"github.com/spec-kit/support-inbox/internal/service"
	apperrors "github.com/spec-kit/support-inbox/pkg/util"
)

// Name identifies the WhatsApp channel on tickets and messages.
const Name = "whatsapp"

// InboundMessage is the payload the channel integration delivers for each
// customer message received from the external provider.
type InboundMessage struct {
	CompanyID string `json:"company_id"`
	From      string `json:"from"`
	FromName  string `json:"from_name"`
	Kind      string `json:"kind"`
	Text      string `json:"text"`
	AudioURL  string `json:"audio_url"`
	AreaID    string `json:"area_id"`
}

// Inbound translates provider payloads into message appends. It maps the
// sender phone number to a known customer; unknown senders are rejected so
// the core never fabricates customer records.
type Inbound struct {
	customers repository.CustomerRepository
	messages  *service.MessageService
	logger    *zap.Logger
}

// NewInbound constructs the inbound translator.
func NewInbound(customers repository.CustomerRepository, messages *service.MessageService, logger *zap.Logger) *Inbound {
	return &Inbound{customers: customers, messages: messages, logger: logger}
}

// Receive appends the inbound customer message, creating the ticket
// implicitly when the customer has no open conversation on this channel.
func (i *Inbound) Receive(ctx context.Context, payload InboundMessage) (*domain.Message, error) {
	if payload.CompanyID == "" || payload.From == "" {
		return nil, apperrors.NewValidationError("company_id and from required", nil)
	}

	messageType, content, err := mapContent(payload)
	if err != nil {
		return nil, err
	}

	customer, err := i.customers.FindByIdentity(ctx, payload.CompanyID, payload.From, Name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewValidationError("unknown sender", map[string]any{"from": payload.From})
		}
		return nil, err
	}

	input := service.AppendInput{
		CompanyID:        customer.CompanyID,
		CustomerID:       customer.ID,
		AreaID:           payload.AreaID,
		Channel:          Name,
		SenderType:       domain.SenderTypeCustomer,
		SenderIdentifier: payload.From,
		MessageType:      messageType,
		Content:          content,
	}
	if name := strings.TrimSpace(payload.FromName); name != "" {
		input.SenderName = &name
	}

	msg, err := i.messages.Append(ctx, input)
	if err != nil {
		return nil, err
	}
	i.logger.Debug("inbound channel message accepted",
		zap.String("ticket_id", msg.TicketID),
		zap.String("customer_id", customer.ID))
	return msg, nil
}

func mapContent(payload InboundMessage) (domain.MessageType, string, error) {
	switch payload.Kind {
	case "", "text":
		if strings.TrimSpace(payload.Text) == "" {
			return "", "", apperrors.NewValidationError("text required", nil)
		}
		return domain.MessageTypeText, payload.Text, nil
	case "audio":
		if payload.AudioURL == "" {
			return "", "", apperrors.NewValidationError("audio_url required", nil)
		}
		return domain.MessageTypeAudio, payload.AudioURL, nil
	default:
		return "", "", apperrors.NewValidationError("unsupported message kind", map[string]any{"kind": payload.Kind})
	}
}
