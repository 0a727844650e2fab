package service

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"eventpress/cmd/middleware"
	"eventpress/internal/dto"
	"eventpress/internal/model"
	"eventpress/internal/registration"
)

type Service interface {
	Register(ctx *ginext.Context)
	PublicEvent(ctx *ginext.Context)
	TicketQR(ctx *ginext.Context)
	Health(ctx *ginext.Context)

	CreateEvent(ctx *ginext.Context)
	ListEvents(ctx *ginext.Context)
	Publish(ctx *ginext.Context)
	Unpublish(ctx *ginext.Context)
	CheckIn(ctx *ginext.Context)
	Registrations(ctx *ginext.Context)
	Announce(ctx *ginext.Context)
	Announcements(ctx *ginext.Context)
}

type service struct {
	core *registration.Service
	log  *zerolog.Logger
}

func NewService(core *registration.Service, logger *zerolog.Logger) Service {
	return &service{
		core: core,
		log:  logger,
	}
}

func (s *service) Register(ctx *ginext.Context) {
	var req dto.IntakeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.PlainError{Error: "Invalid JSON format"})
		return
	}

	receipt, err := s.core.Intake(ctx.Request.Context(), registration.Submission{
		EventID:    req.EventID,
		FullName:   req.FullName,
		Email:      req.Email,
		Phone:      req.Phone,
		FormData:   req.FormData,
		ImageURL:   req.ImageURL,
		TicketType: req.TicketType,
		PaymentID:  req.PaymentID,
	})
	if err != nil {
		var verr *registration.ValidationError
		switch {
		case errors.As(err, &verr):
			ctx.JSON(http.StatusBadRequest, dto.PlainError{Error: verr.Error()})
		case errors.Is(err, registration.ErrEventNotFound):
			ctx.JSON(http.StatusNotFound, dto.PlainError{Error: "Event not found"})
		case errors.Is(err, registration.ErrNotPublished):
			ctx.JSON(http.StatusBadRequest, dto.PlainError{Error: "Event is not accepting registrations"})
		default:
			s.log.Error().Err(err).Str("event_id", req.EventID).Msg("failed to register attendee")
			ctx.JSON(http.StatusInternalServerError, dto.PlainError{Error: "Failed to submit registration"})
		}
		return
	}

	ctx.JSON(http.StatusOK, dto.IntakeResponse{
		Success:        true,
		RegistrationID: receipt.RegistrationID,
		TicketToken:    receipt.TicketToken,
	})
}

func (s *service) PublicEvent(ctx *ginext.Context) {
	event, err := s.core.PublicEvent(ctx.Request.Context(), ctx.Param("slug"))
	if err != nil {
		if errors.Is(err, registration.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to get public event")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, dto.PublicEventResponse{
		ID:          event.ID,
		Name:        event.Name,
		Slug:        event.Slug,
		Description: event.Description,
		StartDate:   event.StartDate,
		EndDate:     event.EndDate,
		Venue:       event.Venue,
		BannerURL:   event.BannerURL,

		CustomFields: nonNil(event.CustomFields),
		TicketTiers:  nonNil(event.TicketTiers),
	})
}

func (s *service) TicketQR(ctx *ginext.Context) {
	token := ctx.Param("token")
	if token == "" {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Field 'token' is incorrect")
		return
	}
	ctx.Redirect(http.StatusFound, s.core.QRCodeURL(token))
}

func (s *service) Health(ctx *ginext.Context) {
	ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *service) CreateEvent(ctx *ginext.Context) {
	var req dto.CreateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.log.Warn().Err(err).Msg("failed to parse create event request")
		dto.BadResponseError(ctx, dto.FieldBadFormat, "Invalid JSON format")
		return
	}

	event, err := s.core.CreateEvent(ctx.Request.Context(), middleware.OwnerID(ctx), registration.EventDraft{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Venue:       req.Venue,
		BannerURL:   req.BannerURL,

		CustomFields: req.CustomFields,
		TicketTiers:  req.TicketTiers,
	})
	if err != nil {
		var verr *registration.ValidationError
		if errors.As(err, &verr) {
			code := dto.FieldIncorrect
			if verr.Field == "slug" {
				code = dto.SlugTaken
			}
			dto.BadResponseError(ctx, code, verr.Error())
			return
		}
		s.log.Error().Err(err).Msg("failed to create event")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessCreatedResponse(ctx, eventResponse(event))
}

func (s *service) ListEvents(ctx *ginext.Context) {
	events, err := s.core.OwnerEvents(ctx.Request.Context(), middleware.OwnerID(ctx))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list events")
		dto.InternalServerError(ctx)
		return
	}

	resp := make([]dto.EventResponse, 0, len(events))
	for i := range events {
		resp = append(resp, eventResponse(&events[i]))
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) Publish(ctx *ginext.Context) {
	s.setPublished(ctx, true)
}

func (s *service) Unpublish(ctx *ginext.Context) {
	s.setPublished(ctx, false)
}

func (s *service) setPublished(ctx *ginext.Context, published bool) {
	event, err := s.core.SetPublished(ctx.Request.Context(), middleware.OwnerID(ctx), ctx.Param("id"), published)
	if err != nil {
		if errors.Is(err, registration.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("event_id", ctx.Param("id")).Msg("failed to change publication")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, eventResponse(event))
}

func (s *service) CheckIn(ctx *ginext.Context) {
	eventID := ctx.Param("id")

	var req dto.CheckInRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.CheckInResponse{Message: "Invalid JSON format"})
		return
	}

	if err := s.core.Authorize(ctx.Request.Context(), middleware.OwnerID(ctx), eventID); err != nil {
		if errors.Is(err, registration.ErrEventNotFound) {
			ctx.JSON(http.StatusNotFound, dto.CheckInResponse{Message: "Event not found"})
			return
		}
		s.log.Error().Err(err).Str("event_id", eventID).Msg("failed to authorize check-in")
		ctx.JSON(http.StatusInternalServerError, dto.CheckInResponse{Message: "Failed to check in attendee"})
		return
	}

	result, err := s.core.CheckIn(ctx.Request.Context(), eventID, req.TicketToken)
	if err != nil {
		var verr *registration.ValidationError
		switch {
		case errors.As(err, &verr):
			ctx.JSON(http.StatusBadRequest, dto.CheckInResponse{Message: verr.Error()})
		case errors.Is(err, registration.ErrTicketNotFound):
			ctx.JSON(http.StatusNotFound, dto.CheckInResponse{Message: registration.MsgInvalidTicket})
		case errors.Is(err, registration.ErrAlreadyCheckedIn):
			ctx.JSON(http.StatusConflict, dto.CheckInResponse{Message: registration.MsgAlreadyCheckedIn})
		default:
			s.log.Error().Err(err).Str("event_id", eventID).Msg("failed to check in attendee")
			ctx.JSON(http.StatusInternalServerError, dto.CheckInResponse{Message: "Failed to check in attendee"})
		}
		return
	}

	ctx.JSON(http.StatusOK, dto.CheckInResponse{Success: true, Message: result.Message})
}

func (s *service) Registrations(ctx *ginext.Context) {
	list, err := s.core.Registrations(ctx.Request.Context(), middleware.OwnerID(ctx), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, registration.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("event_id", ctx.Param("id")).Msg("failed to read registrations")
		dto.InternalServerError(ctx)
		return
	}

	resp := dto.RegistrationsResponse{
		EventID:       list.EventID,
		Registrations: make([]dto.RegistrationRow, 0, len(list.Rows)),
		Failures:      make([]dto.RowFailure, 0, len(list.Failures)),
		Total:         list.Total,
		CheckedIn:     list.CheckedIn,
	}
	for _, r := range list.Rows {
		resp.Registrations = append(resp.Registrations, dto.RegistrationRow{
			RegistrationID: r.RegistrationID,
			FullName:       r.FullName,
			Email:          r.Email,
			Phone:          r.Phone,
			FormData:       r.FormData,
			ImageURL:       r.ImageURL,
			PaymentStatus:  r.PaymentStatus,
			TicketType:     r.TicketType,
			TicketToken:    r.TicketToken,
			CheckInStatus:  r.CheckInStatus,
			CheckInTime:    r.CheckInTime,
			CreatedAt:      r.CreatedAt,
		})
	}
	for _, f := range list.Failures {
		resp.Failures = append(resp.Failures, dto.RowFailure{RegistrationID: f.RegistrationID, Reason: f.Reason})
	}

	dto.SuccessResponse(ctx, resp)
}

func (s *service) Announce(ctx *ginext.Context) {
	var req dto.AnnouncementRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldBadFormat, "Invalid JSON format")
		return
	}

	a, err := s.core.Announce(ctx.Request.Context(), middleware.OwnerID(ctx), ctx.Param("id"), registration.AnnouncementDraft{
		Subject: req.Subject,
		Message: req.Message,
	})
	if err != nil {
		var verr *registration.ValidationError
		switch {
		case errors.As(err, &verr):
			dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		case errors.Is(err, registration.ErrEventNotFound):
			dto.EventNotFoundError(ctx)
		default:
			s.log.Error().Err(err).Str("event_id", ctx.Param("id")).Msg("failed to send announcement")
			dto.InternalServerError(ctx)
		}
		return
	}

	dto.SuccessCreatedResponse(ctx, announcementResponse(a))
}

func (s *service) Announcements(ctx *ginext.Context) {
	list, err := s.core.Announcements(ctx.Request.Context(), middleware.OwnerID(ctx), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, registration.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("event_id", ctx.Param("id")).Msg("failed to list announcements")
		dto.InternalServerError(ctx)
		return
	}

	resp := make([]dto.AnnouncementResponse, 0, len(list))
	for i := range list {
		resp = append(resp, announcementResponse(&list[i]))
	}
	dto.SuccessResponse(ctx, resp)
}

func eventResponse(e *model.Event) dto.EventResponse {
	return dto.EventResponse{
		ID:          e.ID,
		Name:        e.Name,
		Slug:        e.Slug,
		Description: e.Description,
		StartDate:   e.StartDate,
		EndDate:     e.EndDate,
		Venue:       e.Venue,
		BannerURL:   e.BannerURL,
		IsPublished: e.IsPublished,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,

		CustomFields: nonNil(e.CustomFields),
		TicketTiers:  nonNil(e.TicketTiers),
	}
}

// nonNil keeps empty lists as [] in JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func announcementResponse(a *model.Announcement) dto.AnnouncementResponse {
	return dto.AnnouncementResponse{
		ID:          a.ID,
		EventID:     a.EventID,
		Subject:     a.Subject,
		Message:     a.Message,
		Status:      a.Status,
		SentAt:      a.SentAt,
		SentToCount: a.SentToCount,
		CreatedAt:   a.CreatedAt,
	}
}
