package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

type ticketRepository struct {
	mu      sync.RWMutex
	tickets map[string]*domain.Ticket
}

// NewTicketRepository returns an empty in-memory ticket store.
func NewTicketRepository() repository.TicketRepository {
	return &ticketRepository{tickets: make(map[string]*domain.Ticket)}
}

func (r *ticketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket.ID = uuid.NewString()
	r.tickets[ticket.ID] = cloneTicket(ticket)
	return nil
}

func (r *ticketRepository) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	updated := cloneTicket(ticket)
	updated.CreatedBy = stored.CreatedBy
	updated.CreatedAt = stored.CreatedAt
	r.tickets[ticket.ID] = updated
	return nil
}

func (r *ticketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneTicket(stored), nil
}

func (r *ticketRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tickets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.tickets, id)
	return nil
}

func (r *ticketRepository) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.RLock()
	result := make([]domain.Ticket, 0, len(r.tickets))
	for _, t := range r.tickets {
		if matches(t, filter) {
			result = append(result, *cloneTicket(t))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func matches(t *domain.Ticket, filter repository.TicketFilter) bool {
	if filter.CreatedBy != nil && t.CreatedBy != *filter.CreatedBy {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, s := range filter.Statuses {
			if t.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Room != nil {
		if room := strings.ToLower(strings.TrimSpace(*filter.Room)); room != "" &&
			!strings.Contains(strings.ToLower(t.Room), room) {
			return false
		}
	}
	if filter.SearchTerm != nil {
		if term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm)); term != "" {
			haystack := []string{t.Room, t.Issue, deref(t.ActionTaken), deref(t.SolvedBy)}
			hit := false
			for _, field := range haystack {
				if strings.Contains(strings.ToLower(field), term) {
					hit = true
					break
				}
			}
			if !hit {
				return false
			}
		}
	}
	if filter.CreatedFrom != nil && t.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	return true
}

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	cp := *t
	cp.ActionTaken = cloneString(t.ActionTaken)
	cp.SolvedBy = cloneString(t.SolvedBy)
	cp.AssignedTo = cloneString(t.AssignedTo)
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
