package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/support-inbox/internal/domain"
)

// In-memory repository implementations. They back the service when no
// Postgres DSN is configured and serve as test fixtures. All of them are
// safe for concurrent use and store defensive copies so callers cannot
// mutate persisted state through retained pointers.

type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]*domain.Ticket
	order   []string
}

// NewMemoryTicketRepository creates an empty ticket store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{tickets: make(map[string]*domain.Ticket)}
}

func (r *MemoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[ticket.ID] = ticket.Clone()
	r.order = append(r.order, ticket.ID)
	return nil
}

func (r *MemoryTicketRepository) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return ErrNotFound
	}
	r.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (r *MemoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ticket.Clone(), nil
}

func (r *MemoryTicketRepository) ListByStatus(_ context.Context, companyID string, status domain.TicketStatus, limit, offset int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	r.mu.RLock()
	matched := make([]domain.Ticket, 0)
	for _, id := range r.order {
		ticket := r.tickets[id]
		if ticket.CompanyID == companyID && ticket.Status == status {
			matched = append(matched, *ticket.Clone())
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	if offset >= len(matched) {
		return []domain.Ticket{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *MemoryTicketRepository) FindOpenByCustomer(_ context.Context, companyID, customerID, channel string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var newest *domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.CompanyID != companyID || ticket.CustomerID != customerID || ticket.Channel != channel {
			continue
		}
		if ticket.Status == domain.TicketStatusClosed {
			continue
		}
		if newest == nil || ticket.CreatedAt.After(newest.CreatedAt) {
			newest = ticket
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	return newest.Clone(), nil
}

type MemoryMessageRepository struct {
	mu       sync.Mutex
	byTicket map[string][]domain.Message
	seq      int64
}

// NewMemoryMessageRepository creates an empty message log.
func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{byTicket: make(map[string][]domain.Message)}
}

func (r *MemoryMessageRepository) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	msg.Seq = r.seq
	r.byTicket[msg.TicketID] = append(r.byTicket[msg.TicketID], *msg)
	return nil
}

func (r *MemoryMessageRepository) ListByTicket(_ context.Context, ticketID string) ([]domain.Message, error) {
	r.mu.Lock()
	msgs := append([]domain.Message(nil), r.byTicket[ticketID]...)
	r.mu.Unlock()

	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].Seq < msgs[j].Seq
	})
	return msgs, nil
}

type MemoryCustomerRepository struct {
	mu        sync.RWMutex
	customers map[string]*domain.Customer
}

// NewMemoryCustomerRepository creates an empty customer store.
func NewMemoryCustomerRepository() *MemoryCustomerRepository {
	return &MemoryCustomerRepository{customers: make(map[string]*domain.Customer)}
}

// Put seeds a customer. Customers are managed outside the core, so the
// interface has no write methods; fixtures and dev mode use Put directly.
func (r *MemoryCustomerRepository) Put(customer *domain.Customer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *customer
	r.customers[customer.ID] = &clone
}

func (r *MemoryCustomerRepository) GetByID(_ context.Context, id string) (*domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	customer, ok := r.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *customer
	return &clone, nil
}

func (r *MemoryCustomerRepository) FindByIdentity(_ context.Context, companyID, phone, channel string) (*domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, customer := range r.customers {
		if customer.CompanyID == companyID && customer.Phone == phone && customer.Channel == channel {
			clone := *customer
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}
