package registration

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"eventpress/internal/cipher"
	"eventpress/internal/model"
	"eventpress/internal/repo"
)

// Registrant is a registration with its PII decrypted.
type Registrant struct {
	RegistrationID string
	FullName       string
	Email          string
	Phone          *string
	FormData       json.RawMessage
	ImageURL       *string
	PaymentStatus  string
	TicketType     *string
	TicketToken    string
	CheckInStatus  bool
	CheckInTime    *time.Time
	CreatedAt      time.Time
}

// RowFailure is a stored registration that could not be decrypted.
type RowFailure struct {
	RegistrationID string
	Reason         string
}

type RegistrationList struct {
	EventID   string
	Rows      []Registrant
	Failures  []RowFailure
	Total     int
	CheckedIn int
}

// Registrations returns the decrypted roster of an event owned by ownerID.
// Rows that fail to decrypt are reported in Failures and do not abort the read.
func (s *Service) Registrations(ctx context.Context, ownerID, eventID string) (*RegistrationList, error) {
	event, err := s.ownedEvent(ctx, ownerID, eventID)
	if err != nil {
		return nil, err
	}

	regs, err := s.store.ListRegistrations(ctx, event.ID)
	if err != nil {
		return nil, storageErr("list registrations", err)
	}

	list := &RegistrationList{
		EventID: event.ID,
		Rows:    make([]Registrant, 0, len(regs)),
		Total:   len(regs),
	}
	for i := range regs {
		reg := &regs[i]
		if reg.CheckInStatus {
			list.CheckedIn++
		}

		row, err := decryptRow(s.cipher, reg, event.EncryptionKey)
		if err != nil {
			s.log.Error().Err(err).
				Str("event_id", event.ID).
				Str("registration_id", reg.ID).
				Msg("failed to decrypt registration")
			list.Failures = append(list.Failures, RowFailure{RegistrationID: reg.ID, Reason: err.Error()})
			continue
		}
		list.Rows = append(list.Rows, row)
	}

	return list, nil
}

func decryptRow(c cipher.Cipher, reg *model.Registration, key string) (Registrant, error) {
	name, err := c.Decrypt(reg.FullName, key)
	if err != nil {
		return Registrant{}, cryptoErr("decrypt full name", err)
	}
	email, err := c.Decrypt(reg.Email, key)
	if err != nil {
		return Registrant{}, cryptoErr("decrypt email", err)
	}

	row := Registrant{
		RegistrationID: reg.ID,
		FullName:       name,
		Email:          email,
		FormData:       reg.FormData,
		ImageURL:       reg.ImageURL,
		PaymentStatus:  reg.PaymentStatus,
		TicketType:     reg.TicketType,
		TicketToken:    reg.TicketToken,
		CheckInStatus:  reg.CheckInStatus,
		CheckInTime:    reg.CheckInTime,
		CreatedAt:      reg.CreatedAt,
	}
	if reg.Phone != nil {
		phone, err := c.Decrypt(*reg.Phone, key)
		if err != nil {
			return Registrant{}, cryptoErr("decrypt phone", err)
		}
		row.Phone = &phone
	}
	return row, nil
}

func (s *Service) ownedEvent(ctx context.Context, ownerID, eventID string) (*model.Event, error) {
	if ownerID == "" {
		return nil, ErrEventNotFound
	}
	if _, err := uuid.Parse(eventID); err != nil {
		return nil, ErrEventNotFound
	}
	event, err := s.store.GetOwnedEvent(ctx, eventID, ownerID)
	if errors.Is(err, repo.ErrEventNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, storageErr("get owned event", err)
	}
	return event, nil
}
