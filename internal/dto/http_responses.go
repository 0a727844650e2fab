package dto

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"

	"eventpress/internal/model"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	Unauthorized  = "UNAUTHORIZED"
	EventNotFound = "EVENT_NOT_FOUND"
	SlugTaken     = "SLUG_TAKEN"
)

// IntakeRequest is the public registration form submission.
type IntakeRequest struct {
	EventID    string          `json:"eventId"`
	FullName   string          `json:"fullName"`
	Email      string          `json:"email"`
	Phone      string          `json:"phone,omitempty"`
	FormData   json.RawMessage `json:"formData,omitempty"`
	ImageURL   string          `json:"imageUrl,omitempty"`
	TicketType string          `json:"ticketType,omitempty"`
	PaymentID  string          `json:"paymentId,omitempty"`
}

type IntakeResponse struct {
	Success        bool   `json:"success"`
	RegistrationID string `json:"registrationId"`
	TicketToken    string `json:"ticketToken"`
}

type PlainError struct {
	Error string `json:"error"`
}

type CheckInRequest struct {
	TicketToken string `json:"ticketToken"`
}

type CheckInResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type CreateEventRequest struct {
	Name         string              `json:"name"`
	Slug         string              `json:"slug"`
	Description  string              `json:"description"`
	StartDate    time.Time           `json:"start_date"`
	EndDate      *time.Time          `json:"end_date"`
	Venue        string              `json:"venue"`
	BannerURL    string              `json:"banner_url"`
	CustomFields []model.CustomField `json:"custom_fields"`
	TicketTiers  []model.TicketTier  `json:"ticket_tiers"`
}

type EventResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description string     `json:"description,omitempty"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Venue       string     `json:"venue,omitempty"`
	BannerURL   string     `json:"banner_url,omitempty"`
	IsPublished bool       `json:"is_published"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	CustomFields []model.CustomField `json:"custom_fields"`
	TicketTiers  []model.TicketTier  `json:"ticket_tiers"`
}

// PublicEventResponse omits owner-only fields. It carries what the
// registration form needs to render.
type PublicEventResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description string     `json:"description,omitempty"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Venue       string     `json:"venue,omitempty"`
	BannerURL   string     `json:"banner_url,omitempty"`

	CustomFields []model.CustomField `json:"custom_fields"`
	TicketTiers  []model.TicketTier  `json:"ticket_tiers"`
}

type RegistrationRow struct {
	RegistrationID string          `json:"registration_id"`
	FullName       string          `json:"full_name"`
	Email          string          `json:"email"`
	Phone          *string         `json:"phone"`
	FormData       json.RawMessage `json:"form_data"`
	ImageURL       *string         `json:"image_url"`
	PaymentStatus  string          `json:"payment_status"`
	TicketType     *string         `json:"ticket_type"`
	TicketToken    string          `json:"ticket_token"`
	CheckInStatus  bool            `json:"check_in_status"`
	CheckInTime    *time.Time      `json:"check_in_time"`
	CreatedAt      time.Time       `json:"created_at"`
}

type RowFailure struct {
	RegistrationID string `json:"registration_id"`
	Reason         string `json:"reason"`
}

type RegistrationsResponse struct {
	EventID       string            `json:"event_id"`
	Registrations []RegistrationRow `json:"registrations"`
	Failures      []RowFailure      `json:"failures"`
	Total         int               `json:"total"`
	CheckedIn     int               `json:"checked_in"`
}

type AnnouncementRequest struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type AnnouncementResponse struct {
	ID          string     `json:"id"`
	EventID     string     `json:"event_id"`
	Subject     string     `json:"subject"`
	Message     string     `json:"message"`
	Status      string     `json:"status"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	SentToCount int        `json:"sent_to_count"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func ErrorResponse(c *ginext.Context, status int, code, desc string) {
	c.AbortWithStatusJSON(status, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	ErrorResponse(c, http.StatusBadRequest, code, desc)
}

func InternalServerError(c *ginext.Context) {
	ErrorResponse(c, http.StatusInternalServerError, ServiceUnavailable, InternalError)
}

func UnauthorizedError(c *ginext.Context, desc string) {
	ErrorResponse(c, http.StatusUnauthorized, Unauthorized, desc)
}

func EventNotFoundError(c *ginext.Context) {
	ErrorResponse(c, http.StatusNotFound, EventNotFound, "Event not found")
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusCreated, Response{
		Status: "ok",
		Data:   data,
	})
}
