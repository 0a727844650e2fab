package dto

import "time"

const (
	MessageConfirmation = "registration.confirmed"
	MessageAnnouncement = "event.announcement"
)

// NotificationMessage is the queue envelope. It holds row ids only; the
// consumer reloads the rows and decrypts them before mailing.
type NotificationMessage struct {
	Type           string `json:"type"`
	EventID        string `json:"event_id"`
	RegistrationID string `json:"registration_id,omitempty"`
	AnnouncementID string `json:"announcement_id,omitempty"`
}

// ConfirmationMessage is a resolved confirmation mail. It carries decrypted
// PII and never leaves the process.
type ConfirmationMessage struct {
	RegistrationID string
	EventID        string
	EventName      string
	StartDate      *time.Time
	Venue          string
	FullName       string
	Email          string
	TicketType     string
	TicketToken    string
	QRCodeURL      string
}

type Recipient struct {
	Name  string
	Email string
}

// AnnouncementMessage is a resolved announcement with its decrypted recipients.
type AnnouncementMessage struct {
	AnnouncementID string
	EventID        string
	EventName      string
	Subject        string
	Message        string
	Recipients     []Recipient
}
