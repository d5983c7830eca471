// Package handlers exposes the scheduling engine over HTTP JSON.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/primetable/libs/httpx"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/modification"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/slots"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/templates"
)

type Deps struct {
	Store         storage.Store
	Templates     *templates.Service
	Slots         *slots.Materializer
	Resolver      *availability.Resolver
	Bookings      *booking.Service
	Modifications *modification.Service
	Logger        *slog.Logger
}

type Handler struct {
	store     storage.Store
	templates *templates.Service
	slots     *slots.Materializer
	resolver  *availability.Resolver
	bookings  *booking.Service
	mods      *modification.Service
	logger    *slog.Logger
}

func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handler{
		store:     d.Store,
		templates: d.Templates,
		slots:     d.Slots,
		resolver:  d.Resolver,
		bookings:  d.Bookings,
		mods:      d.Modifications,
		logger:    d.Logger,
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/availability", h.Availability)

	mux.HandleFunc("/api/v1/bookings", h.Bookings)
	mux.HandleFunc("/api/v1/bookings/get", h.GetBooking)
	mux.HandleFunc("/api/v1/bookings/cancel", h.CancelBooking)
	mux.HandleFunc("/api/v1/bookings/status", h.TransitionBooking)

	mux.HandleFunc("/api/v1/modifications", h.Modifications)
	mux.HandleFunc("/api/v1/modifications/approve", h.ApproveModification)
	mux.HandleFunc("/api/v1/modifications/reject", h.RejectModification)

	mux.HandleFunc("/api/v1/venues", h.CreateVenue)
	mux.HandleFunc("/api/v1/venues/get", h.GetVenue)
	mux.HandleFunc("/api/v1/venues/hours", h.UpdateHours)

	mux.HandleFunc("/api/v1/templates", h.Templates)
	mux.HandleFunc("/api/v1/templates/availability", h.SetTemplateAvailability)
	mux.HandleFunc("/api/v1/templates/prime", h.SetTemplatePrime)

	mux.HandleFunc("/api/v1/slots/close", h.CloseSlot)
	mux.HandleFunc("/api/v1/slots/open", h.OpenSlot)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

// writeError maps engine errors onto HTTP. Only errors from the caller-facing
// taxonomy have their message shown; everything else is logged and hidden.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := bookingerr.HTTPStatus(err)
	if errors.Is(err, bookingerr.ErrConcurrencyConflict) {
		w.Header().Set("Retry-After", "1")
	}
	msg := err.Error()
	if !bookingerr.IsCallerFacing(err) {
		h.logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"code", bookingerr.Code(err),
			"err", err,
		)
		msg = "internal error"
		if errors.Is(err, bookingerr.ErrInventoryLeak) {
			msg = "the change could not be completed; staff have been alerted"
		}
	}
	httpx.WriteJSON(w, status, map[string]string{"error": msg, "code": bookingerr.Code(err)})
}

func parseDate(raw string) (time.Time, error) {
	d, err := model.ParseDate(raw)
	if err != nil {
		return time.Time{}, bookingerr.Validation("%s", err.Error())
	}
	return d, nil
}

func parseMinute(raw string) (int, error) {
	m, err := model.ParseMinute(raw)
	if err != nil {
		return 0, bookingerr.Validation("%s", err.Error())
	}
	return m, nil
}

func parseOptionalMinute(raw string) (*int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	m, err := parseMinute(raw)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

// parseWeekday accepts 0-6 (Sunday first) or an English day name.
func parseWeekday(raw string) (time.Weekday, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if d, ok := weekdays[raw]; ok {
		return d, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > 6 {
		return 0, bookingerr.Validation("invalid day of week %q", raw)
	}
	return time.Weekday(n), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
