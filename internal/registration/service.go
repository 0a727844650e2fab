// Package registration holds the registration and check-in lifecycle:
// intake of registrant submissions, exactly-once check-in, and the
// owner-scoped decrypted roster.
package registration

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"eventpress/internal/cipher"
	"eventpress/internal/dto"
	"eventpress/internal/model"
	"eventpress/internal/ticket"
)

const (
	DefaultNotifyTimeout = 30 * time.Second
	maxTokenAttempts     = 3
)

// Store is the persistence the core needs; repo.Repository satisfies it.
type Store interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
	GetEventBySlug(ctx context.Context, slug string) (*model.Event, error)
	GetOwnedEvent(ctx context.Context, id, ownerID string) (*model.Event, error)
	ListEventsByOwner(ctx context.Context, ownerID string) ([]model.Event, error)
	SetEventPublished(ctx context.Context, id, ownerID string, published bool, at time.Time) error
	CreateRegistration(ctx context.Context, reg *model.Registration) error
	CheckInRegistration(ctx context.Context, eventID, ticketToken string, at time.Time) error
	GetRegistration(ctx context.Context, eventID, id string) (*model.Registration, error)
	ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error)
	CreateAnnouncement(ctx context.Context, a *model.Announcement) error
	GetAnnouncement(ctx context.Context, eventID, id string) (*model.Announcement, error)
	ListAnnouncements(ctx context.Context, eventID string) ([]model.Announcement, error)
	MarkAnnouncementDelivered(ctx context.Context, id, status string, sent int, at time.Time) error
}

// Notifier takes a reference to a committed row and gets the mail out.
// Failures are logged by the caller, never returned to clients.
type Notifier interface {
	Notify(ctx context.Context, msg dto.NotificationMessage) error
}

type Config struct {
	QRBaseURL     string
	QRSize        int
	NotifyTimeout time.Duration
}

type Service struct {
	store    Store
	cipher   cipher.Cipher
	notifier Notifier
	log      *zerolog.Logger
	cfg      Config

	newToken func() (string, error)
	now      func() time.Time

	inflight sync.WaitGroup
}

func (c Config) withDefaults() Config {
	if c.QRBaseURL == "" {
		c.QRBaseURL = ticket.DefaultQRBaseURL
	}
	if c.QRSize <= 0 {
		c.QRSize = ticket.DefaultQRSize
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = DefaultNotifyTimeout
	}
	return c
}

func NewService(store Store, c cipher.Cipher, notifier Notifier, log *zerolog.Logger, cfg Config) *Service {
	return &Service{
		store:    store,
		cipher:   c,
		notifier: notifier,
		log:      log,
		cfg:      cfg.withDefaults(),
		newToken: ticket.NewToken,
		now:      utcNow,
	}
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// QRCodeURL renders the scannable image URL for a ticket token.
func (s *Service) QRCodeURL(token string) string {
	return ticket.QRCodeURL(s.cfg.QRBaseURL, token, s.cfg.QRSize)
}

// Wait blocks until every dispatched notification has finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// dispatch runs send detached from the request so a cancelled caller does
// not abort delivery of an already committed registration.
func (s *Service) dispatch(ctx context.Context, what string, logCtx func(*zerolog.Event) *zerolog.Event, send func(context.Context) error) {
	if s.notifier == nil {
		return
	}
	detached := context.WithoutCancel(ctx)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		sendCtx, cancel := context.WithTimeout(detached, s.cfg.NotifyTimeout)
		defer cancel()

		if err := send(sendCtx); err != nil {
			logCtx(s.log.Warn().Err(err)).Msgf("failed to dispatch %s", what)
			return
		}
		logCtx(s.log.Debug()).Msgf("%s dispatched", what)
	}()
}
