package registration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"eventpress/internal/cipher"
	"eventpress/internal/dto"
	"eventpress/internal/model"
	"eventpress/internal/repo"
	"eventpress/internal/ticket"
)

// Resolver rebuilds mail content from the id-only references that travel
// through the notification queue. Registrant PII is decrypted here, in the
// delivering process, and handed straight to the mailer.
type Resolver struct {
	store  Store
	cipher cipher.Cipher
	log    *zerolog.Logger
	cfg    Config
	now    func() time.Time
}

func NewResolver(store Store, c cipher.Cipher, log *zerolog.Logger, cfg Config) *Resolver {
	return &Resolver{
		store:  store,
		cipher: c,
		log:    log,
		cfg:    cfg.withDefaults(),
		now:    utcNow,
	}
}

func (r *Resolver) Confirmation(ctx context.Context, eventID, registrationID string) (dto.ConfirmationMessage, error) {
	event, err := findEvent(ctx, r.store, eventID)
	if err != nil {
		return dto.ConfirmationMessage{}, err
	}
	if _, err := uuid.Parse(registrationID); err != nil {
		return dto.ConfirmationMessage{}, ErrRegistrationNotFound
	}

	reg, err := r.store.GetRegistration(ctx, event.ID, registrationID)
	if errors.Is(err, repo.ErrRegistrationNotFound) {
		return dto.ConfirmationMessage{}, ErrRegistrationNotFound
	}
	if err != nil {
		return dto.ConfirmationMessage{}, storageErr("get registration", err)
	}

	row, err := decryptRow(r.cipher, reg, event.EncryptionKey)
	if err != nil {
		return dto.ConfirmationMessage{}, err
	}

	msg := dto.ConfirmationMessage{
		RegistrationID: reg.ID,
		EventID:        event.ID,
		EventName:      event.Name,
		Venue:          event.Venue,
		FullName:       row.FullName,
		Email:          row.Email,
		TicketToken:    reg.TicketToken,
		QRCodeURL:      ticket.QRCodeURL(r.cfg.QRBaseURL, reg.TicketToken, r.cfg.QRSize),
	}
	if reg.TicketType != nil {
		msg.TicketType = *reg.TicketType
	}
	if !event.StartDate.IsZero() {
		start := event.StartDate
		msg.StartDate = &start
	}
	return msg, nil
}

// Announcement resolves a queued announcement to one recipient per distinct
// email. Rows that fail to decrypt are skipped.
func (r *Resolver) Announcement(ctx context.Context, eventID, announcementID string) (dto.AnnouncementMessage, error) {
	event, err := findEvent(ctx, r.store, eventID)
	if err != nil {
		return dto.AnnouncementMessage{}, err
	}
	if _, err := uuid.Parse(announcementID); err != nil {
		return dto.AnnouncementMessage{}, ErrAnnouncementNotFound
	}

	a, err := r.store.GetAnnouncement(ctx, event.ID, announcementID)
	if errors.Is(err, repo.ErrAnnouncementNotFound) {
		return dto.AnnouncementMessage{}, ErrAnnouncementNotFound
	}
	if err != nil {
		return dto.AnnouncementMessage{}, storageErr("get announcement", err)
	}
	if a.Status != model.AnnouncementQueued {
		return dto.AnnouncementMessage{}, ErrAnnouncementDelivered
	}

	regs, err := r.store.ListRegistrations(ctx, event.ID)
	if err != nil {
		return dto.AnnouncementMessage{}, storageErr("list registrations", err)
	}

	seen := make(map[string]struct{}, len(regs))
	recipients := make([]dto.Recipient, 0, len(regs))
	for i := range regs {
		row, err := decryptRow(r.cipher, &regs[i], event.EncryptionKey)
		if err != nil {
			r.log.Error().Err(err).
				Str("event_id", event.ID).
				Str("registration_id", regs[i].ID).
				Msg("skipping undecryptable announcement recipient")
			continue
		}
		email := strings.ToLower(row.Email)
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		recipients = append(recipients, dto.Recipient{Name: row.FullName, Email: row.Email})
	}

	return dto.AnnouncementMessage{
		AnnouncementID: a.ID,
		EventID:        event.ID,
		EventName:      event.Name,
		Subject:        a.Subject,
		Message:        a.Message,
		Recipients:     recipients,
	}, nil
}

// AnnouncementDelivered records how many of total recipients were mailed.
func (r *Resolver) AnnouncementDelivered(ctx context.Context, eventID, announcementID string, sent, total int) error {
	status := model.AnnouncementSent
	switch {
	case total > 0 && sent == 0:
		status = model.AnnouncementFailed
	case sent < total:
		status = model.AnnouncementPartial
	}

	err := r.store.MarkAnnouncementDelivered(ctx, announcementID, status, sent, r.now())
	if errors.Is(err, repo.ErrAnnouncementNotFound) {
		return ErrAnnouncementDelivered
	}
	if err != nil {
		return storageErr("record announcement delivery", err)
	}

	r.log.Info().
		Str("event_id", eventID).
		Str("announcement_id", announcementID).
		Str("status", status).
		Int("sent", sent).
		Int("recipients", total).
		Msg("announcement delivery recorded")
	return nil
}
