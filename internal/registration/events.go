package registration

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"eventpress/internal/cipher"
	"eventpress/internal/model"
	"eventpress/internal/repo"
	"eventpress/pkg/validator"
)

const maxSlugLen = 80

type EventDraft struct {
	Name        string     `json:"name" validate:"required,max=200"`
	Slug        string     `json:"slug" validate:"omitempty,slug,max=80"`
	Description string     `json:"description" validate:"max=5000"`
	StartDate   time.Time  `json:"start_date" validate:"required"`
	EndDate     *time.Time `json:"end_date"`
	Venue       string     `json:"venue" validate:"max=300"`
	BannerURL   string     `json:"banner_url" validate:"omitempty,url,max=2048"`

	CustomFields []model.CustomField `json:"custom_fields" validate:"max=50,dive"`
	TicketTiers  []model.TicketTier  `json:"ticket_tiers" validate:"max=20,dive"`
}

func (d EventDraft) normalized() EventDraft {
	d.Name = strings.TrimSpace(d.Name)
	d.Slug = strings.TrimSpace(d.Slug)
	d.Description = strings.TrimSpace(d.Description)
	d.Venue = strings.TrimSpace(d.Venue)
	d.BannerURL = strings.TrimSpace(d.BannerURL)
	if d.Slug == "" {
		d.Slug = Slugify(d.Name)
	}
	if d.Slug == "" && d.Name != "" {
		d.Slug = "event-" + uuid.NewString()[:8]
	}

	fields := make([]model.CustomField, len(d.CustomFields))
	for i, f := range d.CustomFields {
		f.ID = strings.TrimSpace(f.ID)
		f.Label = strings.TrimSpace(f.Label)
		f.Type = strings.ToLower(strings.TrimSpace(f.Type))
		fields[i] = f
	}
	d.CustomFields = fields

	tiers := make([]model.TicketTier, len(d.TicketTiers))
	for i, t := range d.TicketTiers {
		t.ID = strings.TrimSpace(t.ID)
		t.Name = strings.TrimSpace(t.Name)
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		tiers[i] = t
	}
	d.TicketTiers = tiers
	return d
}

// CreateEvent stores a new unpublished event with a freshly generated key.
func (s *Service) CreateEvent(ctx context.Context, ownerID string, draft EventDraft) (*model.Event, error) {
	draft = draft.normalized()
	if err := validator.Validate(ctx, draft); err != nil {
		return nil, validationFrom(err)
	}
	if draft.EndDate != nil && draft.EndDate.Before(draft.StartDate) {
		return nil, &ValidationError{Field: "end_date", Reason: "must not be before start_date"}
	}
	if err := checkFormDefinition(draft.CustomFields, draft.TicketTiers); err != nil {
		return nil, err
	}

	key, err := cipher.NewKey()
	if err != nil {
		return nil, cryptoErr("generate event key", err)
	}

	now := s.now()
	event := &model.Event{
		ID:            uuid.NewString(),
		UserID:        ownerID,
		Name:          draft.Name,
		Slug:          draft.Slug,
		Description:   draft.Description,
		StartDate:     draft.StartDate.UTC(),
		Venue:         draft.Venue,
		BannerURL:     draft.BannerURL,
		CustomFields:  draft.CustomFields,
		TicketTiers:   draft.TicketTiers,
		EncryptionKey: key,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if draft.EndDate != nil {
		end := draft.EndDate.UTC()
		event.EndDate = &end
	}

	if err := s.store.CreateEvent(ctx, event); err != nil {
		if errors.Is(err, repo.ErrDuplicateSlug) {
			return nil, &ValidationError{Field: "slug", Reason: "Slug is already taken"}
		}
		return nil, storageErr("create event", err)
	}

	s.log.Info().Str("event_id", event.ID).Str("slug", event.Slug).Msg("event created successfully")
	return event, nil
}

func (s *Service) SetPublished(ctx context.Context, ownerID, eventID string, published bool) (*model.Event, error) {
	if _, err := s.ownedEvent(ctx, ownerID, eventID); err != nil {
		return nil, err
	}

	err := s.store.SetEventPublished(ctx, eventID, ownerID, published, s.now())
	if errors.Is(err, repo.ErrEventNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, storageErr("set published", err)
	}

	s.log.Info().Str("event_id", eventID).Bool("published", published).Msg("event publication changed")
	return s.ownedEvent(ctx, ownerID, eventID)
}

func (s *Service) OwnerEvents(ctx context.Context, ownerID string) ([]model.Event, error) {
	events, err := s.store.ListEventsByOwner(ctx, ownerID)
	if err != nil {
		return nil, storageErr("list events", err)
	}
	return events, nil
}

// PublicEvent returns a published event by slug.
func (s *Service) PublicEvent(ctx context.Context, slug string) (*model.Event, error) {
	event, err := s.store.GetEventBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if errors.Is(err, repo.ErrEventNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, storageErr("get event by slug", err)
	}
	return event, nil
}

// Slugify lowercases name and joins its ASCII letter and digit runs with dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}

	slug := b.String()
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	return slug
}
