package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending  TicketStatus = "pending"
	TicketStatusResolved TicketStatus = "resolved"
)

// Valid reports whether s is one of the two allowed statuses.
func (s TicketStatus) Valid() bool {
	return s == TicketStatusPending || s == TicketStatusResolved
}

// Ticket is a support request raised for a room.
type Ticket struct {
	ID          string
	Date        string
	Room        string
	Issue       string
	ActionTaken *string
	SolvedBy    *string
	Status      TicketStatus
	CreatedBy   string
	AssignedTo  *string
	CreatedAt   time.Time
}

// TicketStats summarizes a scoped set of tickets.
type TicketStats struct {
	Total    int
	Pending  int
	Resolved int
	ThisWeek int
}
