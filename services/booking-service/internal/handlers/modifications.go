package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/primetable/libs/httpx"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/modification"
)

type submitModificationRequest struct {
	BookingID   string `json:"booking_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	GuestCount  int    `json:"guest_count"`
	RequestedBy string `json:"requested_by"`
	Source      string `json:"source"`
}

type decisionRequest struct {
	RequestID string `json:"request_id"`
	DecidedBy string `json:"decided_by"`
	Reason    string `json:"reason"`
}

type slotChoiceJSON struct {
	TemplateID string `json:"template_id"`
	SlotID     string `json:"slot_id,omitempty"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	GuestCount int    `json:"guest_count"`
}

type modificationResponse struct {
	RequestID      string           `json:"request_id"`
	BookingID      string           `json:"booking_id"`
	Status         string           `json:"status"`
	Original       slotChoiceJSON   `json:"original"`
	Requested      slotChoiceJSON   `json:"requested"`
	RequestedBy    string           `json:"requested_by,omitempty"`
	Source         string           `json:"source"`
	DecidedBy      string           `json:"decided_by,omitempty"`
	DecisionReason string           `json:"decision_reason,omitempty"`
	CreatedAt      string           `json:"created_at"`
	DecidedAt      string           `json:"decided_at,omitempty"`
	Booking        *bookingResponse `json:"booking,omitempty"`
}

func choiceJSON(c model.SlotChoice) slotChoiceJSON {
	return slotChoiceJSON{TemplateID: c.TemplateID, SlotID: c.SlotID, Date: c.Date, Time: c.Time, GuestCount: c.GuestCount}
}

func toModificationResponse(m model.ModificationRequest) modificationResponse {
	return modificationResponse{
		RequestID:      m.ID,
		BookingID:      m.BookingID,
		Status:         string(m.Status),
		Original:       choiceJSON(m.Original),
		Requested:      choiceJSON(m.Requested),
		RequestedBy:    m.RequestedBy,
		Source:         string(m.Source),
		DecidedBy:      m.DecidedBy,
		DecisionReason: m.DecisionReason,
		CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339),
		DecidedAt:      formatTime(m.DecidedAt),
	}
}

// Modifications serves POST (submit) and GET ?booking_id= (list).
func (h *Handler) Modifications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.submitModification(w, r)
	case http.MethodGet:
		list, err := h.mods.ListForBooking(r.Context(), strings.TrimSpace(r.URL.Query().Get("booking_id")))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		items := make([]modificationResponse, 0, len(list))
		for _, m := range list {
			items = append(items, toModificationResponse(m))
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"modifications": items})
	default:
		w.Header().Set("Allow", "GET, POST")
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) submitModification(w http.ResponseWriter, r *http.Request) {
	var req submitModificationRequest
	if !decode(w, r, &req) {
		return
	}
	in := modification.SubmitInput{
		BookingID:   strings.TrimSpace(req.BookingID),
		GuestCount:  req.GuestCount,
		RequestedBy: strings.TrimSpace(req.RequestedBy),
	}
	if in.BookingID == "" {
		h.writeError(w, r, bookingerr.Validation("booking_id is required"))
		return
	}
	var err error
	if in.Date, err = parseDate(req.Date); err != nil {
		h.writeError(w, r, err)
		return
	}
	if in.StartMinute, err = parseMinute(req.Time); err != nil {
		h.writeError(w, r, err)
		return
	}
	src, ok := model.ParseSource(strings.TrimSpace(req.Source))
	if !ok {
		h.writeError(w, r, bookingerr.Validation("unknown source %q", req.Source))
		return
	}
	in.Source = src

	m, err := h.mods.Submit(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toModificationResponse(m))
}

func (h *Handler) decision(w http.ResponseWriter, r *http.Request) (decisionRequest, bool) {
	var req decisionRequest
	if !allowMethod(w, r, http.MethodPost) || !decode(w, r, &req) {
		return req, false
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.DecidedBy = strings.TrimSpace(req.DecidedBy)
	if req.RequestID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "request_id required")
		return req, false
	}
	return req, true
}

func (h *Handler) ApproveModification(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decision(w, r)
	if !ok {
		return
	}
	m, b, err := h.mods.Approve(r.Context(), req.RequestID, req.DecidedBy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := toModificationResponse(m)
	br := toBookingResponse(b)
	resp.Booking = &br
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) RejectModification(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decision(w, r)
	if !ok {
		return
	}
	m, err := h.mods.Reject(r.Context(), req.RequestID, req.DecidedBy, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toModificationResponse(m))
}
