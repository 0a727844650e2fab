package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"eventpress/internal/dto"
	"eventpress/internal/model"
	"eventpress/internal/repo"
	"eventpress/pkg/validator"
)

// Submission is a registrant's candidate registration.
type Submission struct {
	EventID    string          `json:"eventId" validate:"required"`
	FullName   string          `json:"fullName" validate:"required,max=255"`
	Email      string          `json:"email" validate:"required,email,max=320"`
	Phone      string          `json:"phone" validate:"max=50"`
	FormData   json.RawMessage `json:"formData"`
	ImageURL   string          `json:"imageUrl" validate:"omitempty,url,max=2048"`
	TicketType string          `json:"ticketType" validate:"max=100"`
	PaymentID  string          `json:"paymentId" validate:"max=255"`
}

type Receipt struct {
	RegistrationID string
	TicketToken    string
}

func (s Submission) normalized() Submission {
	s.EventID = strings.TrimSpace(s.EventID)
	s.FullName = strings.TrimSpace(s.FullName)
	s.Email = strings.TrimSpace(s.Email)
	s.Phone = strings.TrimSpace(s.Phone)
	s.ImageURL = strings.TrimSpace(s.ImageURL)
	s.TicketType = strings.TrimSpace(s.TicketType)
	s.PaymentID = strings.TrimSpace(s.PaymentID)

	trimmed := bytes.TrimSpace(s.FormData)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		s.FormData = nil
	} else {
		s.FormData = trimmed
	}
	return s
}

func (s Submission) validate(ctx context.Context) error {
	if err := validator.Validate(ctx, s); err != nil {
		return validationFrom(err)
	}
	if s.FormData != nil {
		var answers map[string]any
		if err := json.Unmarshal(s.FormData, &answers); err != nil {
			return &ValidationError{Field: "formData", Reason: "must be a JSON object"}
		}
	}
	return nil
}

// Intake accepts a submission for a published event. Every check runs
// before the single INSERT; the confirmation goes out only after it.
func (s *Service) Intake(ctx context.Context, sub Submission) (Receipt, error) {
	sub = sub.normalized()
	if err := sub.validate(ctx); err != nil {
		return Receipt{}, err
	}

	event, err := findEvent(ctx, s.store, sub.EventID)
	if err != nil {
		return Receipt{}, err
	}
	if !event.IsPublished {
		return Receipt{}, ErrNotPublished
	}
	tier, err := checkForm(event, sub)
	if err != nil {
		return Receipt{}, err
	}

	reg := &model.Registration{
		ID:            uuid.NewString(),
		EventID:       event.ID,
		TicketType:    optional(tier),
		PaymentStatus: model.PaymentCompleted,
		PaymentID:     optional(sub.PaymentID),
		FormData:      sub.FormData,
		ImageURL:      optional(sub.ImageURL),
		CreatedAt:     s.now(),
	}

	if reg.FullName, err = s.cipher.Encrypt(sub.FullName, event.EncryptionKey); err != nil {
		return Receipt{}, cryptoErr("encrypt full name", err)
	}
	if reg.Email, err = s.cipher.Encrypt(sub.Email, event.EncryptionKey); err != nil {
		return Receipt{}, cryptoErr("encrypt email", err)
	}
	if sub.Phone != "" {
		phone, err := s.cipher.Encrypt(sub.Phone, event.EncryptionKey)
		if err != nil {
			return Receipt{}, cryptoErr("encrypt phone", err)
		}
		reg.Phone = &phone
	}

	if err := s.insertWithToken(ctx, reg); err != nil {
		return Receipt{}, err
	}

	s.log.Info().
		Str("event_id", event.ID).
		Str("registration_id", reg.ID).
		Msg("registration created successfully")

	msg := dto.NotificationMessage{
		Type:           dto.MessageConfirmation,
		EventID:        event.ID,
		RegistrationID: reg.ID,
	}
	s.dispatch(ctx, "registration confirmation",
		func(e *zerolog.Event) *zerolog.Event {
			return e.Str("event_id", event.ID).Str("registration_id", reg.ID)
		},
		func(ctx context.Context) error { return s.notifier.Notify(ctx, msg) },
	)

	return Receipt{RegistrationID: reg.ID, TicketToken: reg.TicketToken}, nil
}

// insertWithToken assigns a fresh token and retries the insert on the
// rare token collision.
func (s *Service) insertWithToken(ctx context.Context, reg *model.Registration) error {
	for attempt := 1; ; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return cryptoErr("generate ticket token", err)
		}
		reg.TicketToken = token

		err = s.store.CreateRegistration(ctx, reg)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repo.ErrDuplicateToken) || attempt == maxTokenAttempts {
			return storageErr("create registration", err)
		}
		s.log.Warn().Str("event_id", reg.EventID).Int("attempt", attempt).Msg("ticket token collision, retrying")
	}
}

// findEvent maps malformed ids and missing rows to ErrEventNotFound.
func findEvent(ctx context.Context, store Store, eventID string) (*model.Event, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return nil, ErrEventNotFound
	}
	event, err := store.GetEventByID(ctx, eventID)
	if errors.Is(err, repo.ErrEventNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, storageErr("get event", err)
	}
	return event, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
