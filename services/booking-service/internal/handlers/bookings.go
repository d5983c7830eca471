package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/primetable/libs/httpx"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/capacity"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
)

type createBookingRequest struct {
	VenueID     string `json:"venue_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	PartySize   int    `json:"party_size"`
	GuestName   string `json:"guest_name"`
	GuestPhone  string `json:"guest_phone"`
	GuestEmail  string `json:"guest_email"`
	Source      string `json:"source"`
	ConciergeID string `json:"concierge_id"`
}

type cancelBookingRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

type transitionRequest struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
}

type bookingResponse struct {
	BookingID  string `json:"booking_id"`
	VenueID    string `json:"venue_id"`
	TemplateID string `json:"template_id"`
	SlotID     string `json:"slot_id"`
	BookingAt  string `json:"booking_at"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Timezone   string `json:"timezone"`
	GuestName  string `json:"guest_name"`
	GuestPhone string `json:"guest_phone"`
	GuestEmail string `json:"guest_email,omitempty"`
	GuestCount int    `json:"guest_count"`
	Status     string `json:"status"`
	IsPrime    bool   `json:"is_prime"`
	Fee        *int64 `json:"fee,omitempty"`
	Source     string `json:"source"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func toBookingResponse(b model.Booking) bookingResponse {
	return bookingResponse{
		BookingID:  b.ID,
		VenueID:    b.VenueID,
		TemplateID: b.ScheduleTemplateID,
		SlotID:     b.SlotID,
		BookingAt:  b.BookingAt.UTC().Format(time.RFC3339),
		Date:       b.LocalDate,
		Time:       b.LocalTime,
		Timezone:   b.Timezone,
		GuestName:  b.GuestName,
		GuestPhone: b.GuestPhone,
		GuestEmail: b.GuestEmail,
		GuestCount: b.GuestCount,
		Status:     string(b.Status),
		IsPrime:    b.IsPrime,
		Fee:        b.Fee,
		Source:     string(b.Source),
		CreatedAt:  b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Bookings serves POST (create) and GET ?phone= (list) on /api/v1/bookings.
func (h *Handler) Bookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createBooking(w, r)
	case http.MethodGet:
		h.listBookings(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	in.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	b, replayed, err := h.bookings.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
		w.Header().Set("Idempotent-Replayed", "true")
	}
	httpx.WriteJSON(w, status, toBookingResponse(b))
}

func (req createBookingRequest) input() (booking.CreateInput, error) {
	in := booking.CreateInput{
		VenueID:     strings.TrimSpace(req.VenueID),
		PartySize:   req.PartySize,
		ConciergeID: strings.TrimSpace(req.ConciergeID),
		Guest:       booking.Guest{Name: req.GuestName, Phone: req.GuestPhone, Email: req.GuestEmail},
	}
	if in.VenueID == "" {
		return in, bookingerr.Validation("venue_id is required")
	}
	var err error
	if in.Date, err = parseDate(req.Date); err != nil {
		return in, err
	}
	if in.StartMinute, err = parseMinute(req.Time); err != nil {
		return in, err
	}
	src, ok := model.ParseSource(strings.TrimSpace(req.Source))
	if !ok {
		return in, bookingerr.Validation("unknown source %q", req.Source)
	}
	in.Source = src
	if src == model.SourceConcierge && in.ConciergeID == "" {
		return in, bookingerr.Validation("concierge_id is required for concierge bookings")
	}
	return in, nil
}

func (h *Handler) listBookings(w http.ResponseWriter, r *http.Request) {
	list, err := h.bookings.ListByPhone(r.Context(), r.URL.Query().Get("phone"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]bookingResponse, 0, len(list))
	for _, b := range list {
		items = append(items, toBookingResponse(b))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"bookings": items})
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, "id required")
		return
	}
	b, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req cancelBookingRequest
	if !decode(w, r, &req) {
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "booking_id required")
		return
	}
	b, err := h.bookings.Cancel(r.Context(), req.BookingID, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBookingResponse(b))
}

// TransitionBooking applies status changes reported by payment and venue
// collaborators.
func (h *Handler) TransitionBooking(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req transitionRequest
	if !decode(w, r, &req) {
		return
	}
	to, ok := model.ParseBookingStatus(strings.TrimSpace(req.Status))
	if !ok || strings.TrimSpace(req.BookingID) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "booking_id and a valid status required")
		return
	}
	trigger := capacity.TriggerStatus
	if to == model.StatusCancelled {
		trigger = capacity.TriggerCancel
	}
	b, err := h.bookings.Transition(r.Context(), strings.TrimSpace(req.BookingID), to, strings.TrimSpace(req.Reason), trigger)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBookingResponse(b))
}
