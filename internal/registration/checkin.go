package registration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventpress/internal/repo"
)

const (
	MsgCheckedIn        = "Attendee checked in successfully"
	MsgAlreadyCheckedIn = "Ticket already checked in"
	MsgInvalidTicket    = "Invalid ticket"
)

type CheckInResult struct {
	Message     string
	CheckedInAt time.Time
}

// CheckIn marks the ticket's registration as attended. A second scan of
// the same ticket fails with ErrAlreadyCheckedIn and keeps the first time.
func (s *Service) CheckIn(ctx context.Context, eventID, ticketToken string) (CheckInResult, error) {
	ticketToken = strings.TrimSpace(ticketToken)
	if ticketToken == "" {
		return CheckInResult{}, &ValidationError{Field: "ticketToken", Reason: "Field is required"}
	}
	if _, err := uuid.Parse(eventID); err != nil {
		return CheckInResult{}, ErrTicketNotFound
	}

	at := s.now()
	err := s.store.CheckInRegistration(ctx, eventID, ticketToken, at)
	switch {
	case err == nil:
		s.log.Info().Str("event_id", eventID).Msg("attendee checked in")
		return CheckInResult{Message: MsgCheckedIn, CheckedInAt: at}, nil
	case errors.Is(err, repo.ErrTicketNotFound):
		s.log.Warn().Str("event_id", eventID).Msg("check-in with unknown ticket")
		return CheckInResult{}, ErrTicketNotFound
	case errors.Is(err, repo.ErrAlreadyCheckedIn):
		s.log.Info().Str("event_id", eventID).Msg("repeat check-in rejected")
		return CheckInResult{}, ErrAlreadyCheckedIn
	default:
		return CheckInResult{}, storageErr("check in", err)
	}
}

// Authorize reports ErrEventNotFound unless ownerID owns eventID.
func (s *Service) Authorize(ctx context.Context, ownerID, eventID string) error {
	_, err := s.ownedEvent(ctx, ownerID, eventID)
	return err
}
