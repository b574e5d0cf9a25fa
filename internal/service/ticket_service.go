package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const statsWindow = 7 * 24 * time.Hour

// TicketService applies ownership rules on top of the ticket store.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// TicketCreateInput describes ticket creation payload. The owner always
// comes from the caller's identity.
type TicketCreateInput struct {
	Date        string              `json:"date" validate:"required,datetime=2006-01-02"`
	Room        string              `json:"room" validate:"required,notblank,max=255"`
	Issue       string              `json:"issue" validate:"required,notblank"`
	ActionTaken *string             `json:"actionTaken"`
	SolvedBy    *string             `json:"solvedBy" validate:"omitnil,max=255"`
	Status      domain.TicketStatus `json:"status" validate:"omitempty,oneof=pending resolved"`
	AssignedTo  *string             `json:"assignedTo"`
}

// TicketPatch holds the fields to change; nil means untouched. An empty
// actionTaken, solvedBy or assignedTo clears the value. Text is stored as sent.
type TicketPatch struct {
	Date        *string              `json:"date" validate:"omitnil,datetime=2006-01-02"`
	Room        *string              `json:"room" validate:"omitnil,notblank,max=255"`
	Issue       *string              `json:"issue" validate:"omitnil,notblank"`
	ActionTaken *string              `json:"actionTaken"`
	SolvedBy    *string              `json:"solvedBy" validate:"omitnil,max=255"`
	Status      *domain.TicketStatus `json:"status" validate:"omitnil,oneof=pending resolved"`
	AssignedTo  *string              `json:"assignedTo"`
}

// TicketListFilter narrows a listing. Zero values mean no constraint.
type TicketListFilter struct {
	Status domain.TicketStatus `json:"status" validate:"omitempty,oneof=pending resolved"`
	Room   string              `json:"room"`
	Search string              `json:"search"`
}

// NewTicketService builds the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// List returns every ticket for admins and only owned tickets otherwise,
// newest first.
func (s *TicketService) List(ctx context.Context, identity domain.Identity, filter TicketListFilter) ([]domain.Ticket, error) {
	filter.Room = strings.TrimSpace(filter.Room)
	filter.Search = strings.TrimSpace(filter.Search)
	if err := validateInput("Invalid ticket filter", filter); err != nil {
		return nil, err
	}

	repoFilter := s.scope(identity)
	if filter.Status != "" {
		repoFilter.Statuses = []domain.TicketStatus{filter.Status}
	}
	if filter.Room != "" {
		repoFilter.Room = &filter.Room
	}
	if filter.Search != "" {
		repoFilter.SearchTerm = &filter.Search
	}

	tickets, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

// Get returns a ticket the caller may access.
func (s *TicketService) Get(ctx context.Context, identity domain.Identity, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("Ticket")
		}
		return nil, apperrors.NewInternalError(err)
	}
	if !identity.CanAccess(ticket) {
		return nil, apperrors.NewForbidden("Access denied")
	}
	return ticket, nil
}

// Create stores a new ticket owned by the caller. User-entered text is kept
// verbatim; only the assignee reference is normalized.
func (s *TicketService) Create(ctx context.Context, identity domain.Identity, input TicketCreateInput) (*domain.Ticket, error) {
	input.AssignedTo = blankToNil(trimPtr(input.AssignedTo))
	if err := validateInput("Invalid ticket data", input); err != nil {
		return nil, err
	}
	if err := s.checkAssignee(ctx, identity, input.AssignedTo); err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = domain.TicketStatusPending
	}
	ticket := &domain.Ticket{
		Date:        input.Date,
		Room:        input.Room,
		Issue:       input.Issue,
		ActionTaken: input.ActionTaken,
		SolvedBy:    input.SolvedBy,
		Status:      status,
		CreatedBy:   identity.UserID,
		AssignedTo:  input.AssignedTo,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.NewEvent(events.EventTicketCreated, ticket.ID, events.ActorFrom(identity), s.now().UTC(),
		events.TicketCreatedPayload{Room: ticket.Room, Status: ticket.Status, CreatedBy: ticket.CreatedBy}))
	return ticket, nil
}

// Update applies a partial change to a ticket the caller may access.
func (s *TicketService) Update(ctx context.Context, identity domain.Identity, id string, patch TicketPatch) (*domain.Ticket, error) {
	ticket, err := s.Get(ctx, identity, id)
	if err != nil {
		return nil, err
	}

	patch.AssignedTo = trimPtr(patch.AssignedTo)
	if err := validateInput("Invalid update data", patch); err != nil {
		return nil, err
	}
	if patch.AssignedTo != nil {
		if !identity.IsAdmin() {
			return nil, apperrors.NewForbidden("Only admins can assign tickets")
		}
		if err := s.checkAssignee(ctx, identity, blankToNil(patch.AssignedTo)); err != nil {
			return nil, err
		}
	}

	oldStatus := ticket.Status
	var fields []string
	if patch.Date != nil {
		ticket.Date = *patch.Date
		fields = append(fields, "date")
	}
	if patch.Room != nil {
		ticket.Room = *patch.Room
		fields = append(fields, "room")
	}
	if patch.Issue != nil {
		ticket.Issue = *patch.Issue
		fields = append(fields, "issue")
	}
	if patch.ActionTaken != nil {
		ticket.ActionTaken = blankToNil(patch.ActionTaken)
		fields = append(fields, "actionTaken")
	}
	if patch.SolvedBy != nil {
		ticket.SolvedBy = blankToNil(patch.SolvedBy)
		fields = append(fields, "solvedBy")
	}
	if patch.Status != nil {
		ticket.Status = *patch.Status
		fields = append(fields, "status")
	}
	if patch.AssignedTo != nil {
		ticket.AssignedTo = blankToNil(patch.AssignedTo)
		fields = append(fields, "assignedTo")
	}
	if len(fields) == 0 {
		return ticket, nil
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("Ticket")
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.NewEvent(events.EventTicketUpdated, ticket.ID, events.ActorFrom(identity), s.now().UTC(),
		events.TicketUpdatedPayload{Fields: fields, OldStatus: oldStatus, NewStatus: ticket.Status}))
	return ticket, nil
}

// Delete removes a ticket. Admin only.
func (s *TicketService) Delete(ctx context.Context, identity domain.Identity, id string) error {
	if !identity.IsAdmin() {
		return apperrors.NewForbidden("Admin access required")
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("Ticket")
		}
		return apperrors.NewInternalError(err)
	}
	if err := s.tickets.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("Ticket")
		}
		return apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.NewEvent(events.EventTicketDeleted, id, events.ActorFrom(identity), s.now().UTC(),
		events.TicketDeletedPayload{Room: ticket.Room, CreatedBy: ticket.CreatedBy}))
	return nil
}

// Stats summarizes the tickets visible to the caller. ThisWeek counts
// tickets created at or after now minus seven days.
func (s *TicketService) Stats(ctx context.Context, identity domain.Identity) (domain.TicketStats, error) {
	filter := s.scope(identity)
	tickets, err := s.tickets.List(ctx, filter)
	if err != nil {
		return domain.TicketStats{}, apperrors.NewInternalError(err)
	}

	var stats domain.TicketStats
	for _, t := range tickets {
		stats.Total++
		switch t.Status {
		case domain.TicketStatusPending:
			stats.Pending++
		case domain.TicketStatusResolved:
			stats.Resolved++
		}
	}

	since := s.now().UTC().Add(-statsWindow)
	filter.CreatedFrom = &since
	recent, err := s.tickets.List(ctx, filter)
	if err != nil {
		return domain.TicketStats{}, apperrors.NewInternalError(err)
	}
	stats.ThisWeek = len(recent)
	return stats, nil
}

func (s *TicketService) scope(identity domain.Identity) repository.TicketFilter {
	if identity.IsAdmin() {
		return repository.TicketFilter{}
	}
	owner := identity.UserID
	return repository.TicketFilter{CreatedBy: &owner}
}

func (s *TicketService) checkAssignee(ctx context.Context, identity domain.Identity, assignee *string) error {
	if assignee == nil {
		return nil
	}
	if !identity.IsAdmin() {
		return apperrors.NewForbidden("Only admins can assign tickets")
	}
	if _, err := s.users.GetByID(ctx, *assignee); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewValidationError("Invalid ticket data", map[string]any{"assignedTo": "must reference an existing user"})
		}
		return apperrors.NewInternalError(err)
	}
	return nil
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish ticket event", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
