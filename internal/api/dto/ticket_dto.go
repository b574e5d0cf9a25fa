package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Date        string              `json:"date"`
	Room        string              `json:"room"`
	Issue       string              `json:"issue"`
	ActionTaken *string             `json:"actionTaken"`
	SolvedBy    *string             `json:"solvedBy"`
	Status      domain.TicketStatus `json:"status"`
	AssignedTo  *string             `json:"assignedTo"`
}

// UpdateTicketRequest payload; absent fields stay unchanged. createdBy is
// not accepted.
type UpdateTicketRequest struct {
	Date        *string              `json:"date"`
	Room        *string              `json:"room"`
	Issue       *string              `json:"issue"`
	ActionTaken *string              `json:"actionTaken"`
	SolvedBy    *string              `json:"solvedBy"`
	Status      *domain.TicketStatus `json:"status"`
	AssignedTo  *string              `json:"assignedTo"`
}

// TicketListQuery captures query filters for the listing endpoint.
type TicketListQuery struct {
	Status string `query:"status"`
	Room   string `query:"room"`
	Search string `query:"search"`
}

// TicketResponse is the public view of a ticket.
type TicketResponse struct {
	ID          string              `json:"id"`
	Date        string              `json:"date"`
	Room        string              `json:"room"`
	Issue       string              `json:"issue"`
	ActionTaken *string             `json:"actionTaken"`
	SolvedBy    *string             `json:"solvedBy"`
	Status      domain.TicketStatus `json:"status"`
	CreatedBy   string              `json:"createdBy"`
	AssignedTo  *string             `json:"assignedTo"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// StatsResponse summarizes visible tickets.
type StatsResponse struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Resolved int `json:"resolved"`
	ThisWeek int `json:"thisWeek"`
}

// NewTicketResponse maps a ticket to its public view.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:          t.ID,
		Date:        t.Date,
		Room:        t.Room,
		Issue:       t.Issue,
		ActionTaken: t.ActionTaken,
		SolvedBy:    t.SolvedBy,
		Status:      t.Status,
		CreatedBy:   t.CreatedBy,
		AssignedTo:  t.AssignedTo,
		CreatedAt:   t.CreatedAt,
	}
}

// NewTicketList maps tickets to their public views.
func NewTicketList(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, NewTicketResponse(&tickets[i]))
	}
	return out
}

// NewStatsResponse maps ticket stats.
func NewStatsResponse(s domain.TicketStats) StatsResponse {
	return StatsResponse{Total: s.Total, Pending: s.Pending, Resolved: s.Resolved, ThisWeek: s.ThisWeek}
}
