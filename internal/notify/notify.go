// Package notify moves registration confirmations and announcements from
// the request path to the mailer, either through RabbitMQ or in-process.
// Only row ids cross the queue; content is resolved where it is mailed.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"eventpress/internal/dto"
	"eventpress/internal/registration"
)

const recordTimeout = 10 * time.Second

// Publisher is the publish side of rabbit.Client.
type Publisher interface {
	Publish(ctx context.Context, message []byte) error
}

// Sender is the delivery side of mailer.Mailer.
type Sender interface {
	SendConfirmation(ctx context.Context, msg dto.ConfirmationMessage) error
	SendAnnouncement(ctx context.Context, msg dto.AnnouncementMessage) (int, error)
}

// Source rebuilds mail content from stored rows; registration.Resolver satisfies it.
type Source interface {
	Confirmation(ctx context.Context, eventID, registrationID string) (dto.ConfirmationMessage, error)
	Announcement(ctx context.Context, eventID, announcementID string) (dto.AnnouncementMessage, error)
	AnnouncementDelivered(ctx context.Context, eventID, announcementID string, sent, total int) error
}

// Queue publishes notification references for consumerWorker to deliver.
type Queue struct {
	pub Publisher
}

func NewQueue(pub Publisher) *Queue {
	return &Queue{pub: pub}
}

func (q *Queue) Notify(ctx context.Context, msg dto.NotificationMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msg.Type, err)
	}
	if err := q.pub.Publish(ctx, payload); err != nil {
		return fmt.Errorf("publish %s message: %w", msg.Type, err)
	}
	return nil
}

// Deliverer resolves a reference and mails it. It is the Notifier when
// RabbitMQ is disabled and the message handler of consumerWorker otherwise.
type Deliverer struct {
	source Source
	sender Sender
	log    *zerolog.Logger
}

func NewDeliverer(source Source, sender Sender, log *zerolog.Logger) *Deliverer {
	return &Deliverer{source: source, sender: sender, log: log}
}

// Notify returns an error only when a later attempt may succeed.
func (d *Deliverer) Notify(ctx context.Context, msg dto.NotificationMessage) error {
	switch msg.Type {
	case dto.MessageConfirmation:
		return d.confirm(ctx, msg)
	case dto.MessageAnnouncement:
		return d.announce(ctx, msg)
	default:
		d.log.Warn().Str("type", msg.Type).Msg("dropping notification of unknown type")
		return nil
	}
}

func (d *Deliverer) confirm(ctx context.Context, msg dto.NotificationMessage) error {
	c, err := d.source.Confirmation(ctx, msg.EventID, msg.RegistrationID)
	if err != nil {
		return d.unresolved(msg, err)
	}
	if err := d.sender.SendConfirmation(ctx, c); err != nil {
		return fmt.Errorf("confirmation for %s: %w", msg.RegistrationID, err)
	}
	return nil
}

// announce asks for a retry only before the first mail goes out;
// recipients already mailed would be mailed again.
func (d *Deliverer) announce(ctx context.Context, msg dto.NotificationMessage) error {
	a, err := d.source.Announcement(ctx, msg.EventID, msg.AnnouncementID)
	if err != nil {
		return d.unresolved(msg, err)
	}

	sent, err := d.sender.SendAnnouncement(ctx, a)
	if err != nil {
		d.log.Warn().Err(err).Str("announcement_id", a.AnnouncementID).Msg("announcement interrupted")
	}
	if sent < len(a.Recipients) {
		d.log.Warn().
			Str("announcement_id", a.AnnouncementID).
			Int("failed", len(a.Recipients)-sent).
			Msg("announcement partially delivered")
	}

	// the send may have used up ctx; the outcome still has to be stored
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := d.source.AnnouncementDelivered(recordCtx, msg.EventID, msg.AnnouncementID, sent, len(a.Recipients)); err != nil {
		d.log.Error().Err(err).Str("announcement_id", a.AnnouncementID).Msg("failed to record announcement delivery")
	}
	return nil
}

func (d *Deliverer) unresolved(msg dto.NotificationMessage, err error) error {
	if registration.Retryable(err) {
		return fmt.Errorf("resolve %s for event %s: %w", msg.Type, msg.EventID, err)
	}
	d.log.Warn().Err(err).
		Str("type", msg.Type).
		Str("event_id", msg.EventID).
		Str("registration_id", msg.RegistrationID).
		Str("announcement_id", msg.AnnouncementID).
		Msg("dropping notification that no longer resolves")
	return nil
}
