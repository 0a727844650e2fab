package registration

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"eventpress/internal/dto"
	"eventpress/internal/model"
	"eventpress/pkg/validator"
)

type AnnouncementDraft struct {
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=10000"`
}

// Announce records an announcement as queued and hands it to the notifier.
// Recipients are resolved at delivery time, which also records the outcome.
func (s *Service) Announce(ctx context.Context, ownerID, eventID string, draft AnnouncementDraft) (*model.Announcement, error) {
	draft.Subject = strings.TrimSpace(draft.Subject)
	draft.Message = strings.TrimSpace(draft.Message)
	if err := validator.Validate(ctx, draft); err != nil {
		return nil, validationFrom(err)
	}

	event, err := s.ownedEvent(ctx, ownerID, eventID)
	if err != nil {
		return nil, err
	}

	a := &model.Announcement{
		ID:        uuid.NewString(),
		EventID:   event.ID,
		Subject:   draft.Subject,
		Message:   draft.Message,
		Status:    model.AnnouncementQueued,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateAnnouncement(ctx, a); err != nil {
		return nil, storageErr("create announcement", err)
	}

	s.log.Info().
		Str("event_id", event.ID).
		Str("announcement_id", a.ID).
		Msg("announcement queued")

	msg := dto.NotificationMessage{
		Type:           dto.MessageAnnouncement,
		EventID:        event.ID,
		AnnouncementID: a.ID,
	}
	s.dispatch(ctx, "announcement",
		func(e *zerolog.Event) *zerolog.Event {
			return e.Str("event_id", event.ID).Str("announcement_id", a.ID)
		},
		func(ctx context.Context) error { return s.notifier.Notify(ctx, msg) },
	)

	return a, nil
}

func (s *Service) Announcements(ctx context.Context, ownerID, eventID string) ([]model.Announcement, error) {
	if _, err := s.ownedEvent(ctx, ownerID, eventID); err != nil {
		return nil, err
	}
	list, err := s.store.ListAnnouncements(ctx, eventID)
	if err != nil {
		return nil, storageErr("list announcements", err)
	}
	return list, nil
}
