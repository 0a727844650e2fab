package model

import (
	"encoding/json"
	"time"
)

const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
)

const (
	AnnouncementQueued  = "queued"
	AnnouncementSent    = "sent"
	AnnouncementPartial = "partial"
	AnnouncementFailed  = "failed"
)

// Custom field types offered by the registration form builder.
const (
	FieldText     = "text"
	FieldTextarea = "textarea"
	FieldSelect   = "select"
	FieldCheckbox = "checkbox"
	FieldRadio    = "radio"
)

type Event struct {
	ID            string        `db:"id" json:"id"`
	UserID        string        `db:"user_id" json:"user_id"`
	Name          string        `db:"name" json:"name"`
	Slug          string        `db:"slug" json:"slug"`
	Description   string        `db:"description" json:"description,omitempty"`
	StartDate     time.Time     `db:"start_date" json:"start_date"`
	EndDate       *time.Time    `db:"end_date" json:"end_date,omitempty"`
	Venue         string        `db:"venue" json:"venue,omitempty"`
	BannerURL     string        `db:"banner_url" json:"banner_url,omitempty"`
	CustomFields  []CustomField `db:"custom_fields" json:"custom_fields"`
	TicketTiers   []TicketTier  `db:"ticket_tiers" json:"ticket_tiers"`
	IsPublished   bool          `db:"is_published" json:"is_published"`
	EncryptionKey string        `db:"encryption_key" json:"-"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// CustomField is one question of an event's registration form. Answers are
// stored in Registration.FormData keyed by ID.
type CustomField struct {
	ID          string   `json:"id" validate:"required,max=64"`
	Label       string   `json:"label" validate:"required,max=200"`
	Type        string   `json:"type" validate:"required,oneof=text textarea select checkbox radio"`
	Required    bool     `json:"required"`
	Options     []string `json:"options,omitempty" validate:"max=100,dive,required,max=200"`
	Placeholder string   `json:"placeholder,omitempty" validate:"max=200"`
}

type TicketTier struct {
	ID          string  `json:"id" validate:"max=64"`
	Name        string  `json:"name" validate:"required,max=100"`
	Price       float64 `json:"price" validate:"gte=0"`
	Description string  `json:"description,omitempty" validate:"max=1000"`
}

// Registration is a stored row. FullName, Email and Phone hold ciphertext.
type Registration struct {
	ID            string          `db:"id" json:"id"`
	EventID       string          `db:"event_id" json:"event_id"`
	FullName      string          `db:"full_name" json:"-"`
	Email         string          `db:"email" json:"-"`
	Phone         *string         `db:"phone" json:"-"`
	TicketType    *string         `db:"ticket_type" json:"ticket_type,omitempty"`
	PaymentStatus string          `db:"payment_status" json:"payment_status"`
	PaymentID     *string         `db:"payment_id" json:"payment_id,omitempty"`
	FormData      json.RawMessage `db:"form_data" json:"form_data"`
	ImageURL      *string         `db:"image_url" json:"image_url,omitempty"`
	TicketToken   string          `db:"ticket_token" json:"ticket_token"`
	CheckInStatus bool            `db:"check_in_status" json:"check_in_status"`
	CheckInTime   *time.Time      `db:"check_in_time" json:"check_in_time,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

type Announcement struct {
	ID          string     `db:"id" json:"id"`
	EventID     string     `db:"event_id" json:"event_id"`
	Subject     string     `db:"subject" json:"subject"`
	Message     string     `db:"message" json:"message"`
	Status      string     `db:"status" json:"status"`
	SentAt      *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	SentToCount int        `db:"sent_to_count" json:"sent_to_count"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
