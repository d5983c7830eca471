package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/primetable/libs/httpx"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/geo"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
)

type availabilityResponse struct {
	Date      string                           `json:"date"`
	PartySize int                              `json:"party_size"`
	Venues    []availability.VenueAvailability `json:"venues"`
}

// Availability serves GET /api/v1/availability?venue_id=a,b|region=..&date=&party_size=
// with optional from, to (HH:MM), lat, lng, now (RFC3339) and bookable=true.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q, err := parseAvailabilityQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	venues, err := h.resolver.ListAvailability(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, availabilityResponse{
		Date:      model.FormatDate(q.Date),
		PartySize: q.PartySize,
		Venues:    venues,
	})
}

func parseAvailabilityQuery(r *http.Request) (availability.Query, error) {
	values := r.URL.Query()
	var q availability.Query
	for _, id := range strings.Split(values.Get("venue_id"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			q.VenueIDs = append(q.VenueIDs, id)
		}
	}
	q.Region = strings.TrimSpace(values.Get("region"))
	if len(q.VenueIDs) == 0 && q.Region == "" {
		return q, bookingerr.Validation("venue_id or region is required")
	}

	var err error
	if q.Date, err = parseDate(values.Get("date")); err != nil {
		return q, err
	}
	if q.PartySize, err = strconv.Atoi(strings.TrimSpace(values.Get("party_size"))); err != nil {
		return q, bookingerr.Validation("party_size must be a whole number")
	}
	if q.From, err = parseOptionalMinute(values.Get("from")); err != nil {
		return q, err
	}
	if q.To, err = parseOptionalMinute(values.Get("to")); err != nil {
		return q, err
	}

	lat, lng := strings.TrimSpace(values.Get("lat")), strings.TrimSpace(values.Get("lng"))
	if lat != "" || lng != "" {
		var p geo.Point
		p.Lat, err = strconv.ParseFloat(lat, 64)
		if err != nil {
			return q, bookingerr.Validation("invalid lat")
		}
		p.Lng, err = strconv.ParseFloat(lng, 64)
		if err != nil {
			return q, bookingerr.Validation("invalid lng")
		}
		if !p.Valid() {
			return q, bookingerr.Validation("coordinates out of range")
		}
		q.Origin = &p
	}
	if raw := strings.TrimSpace(values.Get("now")); raw != "" {
		now, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, bookingerr.Validation("now must be RFC3339")
		}
		q.Now = &now
	}
	q.OnlyBookable = values.Get("bookable") == "true"
	return q, nil
}
