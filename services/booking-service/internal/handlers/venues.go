package handlers

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/md-rashed-zaman/primetable/libs/httpx"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/templates"
)

type hoursJSON map[string][]struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

type venueRequest struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Region        string    `json:"region"`
	Timezone      string    `json:"timezone"`
	Latitude      *float64  `json:"latitude"`
	Longitude     *float64  `json:"longitude"`
	BusinessHours hoursJSON `json:"business_hours"`
	PrimeHours    hoursJSON `json:"prime_hours"`
}

type hoursRequest struct {
	VenueID       string    `json:"venue_id"`
	BusinessHours hoursJSON `json:"business_hours"`
	PrimeHours    hoursJSON `json:"prime_hours"`
}

type venueResponse struct {
	ID            string                         `json:"id"`
	Name          string                         `json:"name"`
	Region        string                         `json:"region,omitempty"`
	Timezone      string                         `json:"timezone"`
	Latitude      *float64                       `json:"latitude,omitempty"`
	Longitude     *float64                       `json:"longitude,omitempty"`
	Status        string                         `json:"status"`
	BusinessHours map[string][]map[string]string `json:"business_hours,omitempty"`
	PrimeHours    map[string][]map[string]string `json:"prime_hours,omitempty"`
	Seeded        int                            `json:"seeded_templates,omitempty"`
}

func (hj hoursJSON) weekly() (model.WeeklyHours, error) {
	if len(hj) == 0 {
		return nil, nil
	}
	out := model.WeeklyHours{}
	for rawDay, ranges := range hj {
		day, err := parseWeekday(rawDay)
		if err != nil {
			return nil, err
		}
		for _, rg := range ranges {
			open, err := parseMinute(rg.Open)
			if err != nil {
				return nil, err
			}
			// 24:00 is a valid closing time but not a valid time of day.
			closeAt := model.MinutesPerDay
			if rg.Close != "24:00" {
				if closeAt, err = parseMinute(rg.Close); err != nil {
					return nil, err
				}
			}
			out[day] = append(out[day], model.HoursRange{Open: open, Close: closeAt})
		}
	}
	return out, nil
}

func renderHours(w model.WeeklyHours) map[string][]map[string]string {
	if len(w) == 0 {
		return nil
	}
	out := make(map[string][]map[string]string, len(w))
	for day, ranges := range w {
		name := strings.ToLower(day.String())
		for _, rg := range ranges {
			out[name] = append(out[name], map[string]string{"open": model.FormatMinute(rg.Open), "close": model.FormatMinute(rg.Close)})
		}
	}
	return out
}

func toVenueResponse(v model.Venue) venueResponse {
	return venueResponse{
		ID:            v.ID,
		Name:          v.Name,
		Region:        v.Region,
		Timezone:      v.Timezone,
		Latitude:      v.Latitude,
		Longitude:     v.Longitude,
		Status:        string(v.Status),
		BusinessHours: renderHours(v.BusinessHours),
		PrimeHours:    renderHours(v.PrimeHours),
	}
}

// CreateVenue onboards a venue and seeds its weekly grid.
func (h *Handler) CreateVenue(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req venueRequest
	if !decode(w, r, &req) {
		return
	}
	v := model.Venue{
		ID:        strings.TrimSpace(req.ID),
		Name:      req.Name,
		Region:    req.Region,
		Timezone:  strings.TrimSpace(req.Timezone),
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}
	var err error
	if v.BusinessHours, err = req.BusinessHours.weekly(); err != nil {
		h.writeError(w, r, err)
		return
	}
	if v.PrimeHours, err = req.PrimeHours.weekly(); err != nil {
		h.writeError(w, r, err)
		return
	}
	seeded, err := h.templates.Onboard(r.Context(), &v)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := toVenueResponse(v)
	resp.Seeded = seeded
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetVenue(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, "id required")
		return
	}
	v, err := h.store.GetVenue(r.Context(), id)
	if storage.IsNotFound(err) {
		err = bookingerr.NotFound("venue %s not found", id)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toVenueResponse(v))
}

func (h *Handler) UpdateHours(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPut) {
		return
	}
	var req hoursRequest
	if !decode(w, r, &req) {
		return
	}
	business, err := req.BusinessHours.weekly()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	prime, err := req.PrimeHours.weekly()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	changed, err := h.templates.UpdateHours(r.Context(), strings.TrimSpace(req.VenueID), business, prime)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"templates_changed": changed})
}

type templateJSON struct {
	ID                   string `json:"id,omitempty"`
	DayOfWeek            int    `json:"day_of_week"`
	StartTime            string `json:"start_time"`
	PartySize            int    `json:"party_size"`
	IsAvailable          bool   `json:"is_available"`
	PrimeTime            bool   `json:"prime_time"`
	PricePerHead         *int64 `json:"price_per_head,omitempty"`
	MinimumSpendPerGuest int64  `json:"minimum_spend_per_guest"`
	AvailableTables      int    `json:"available_tables"`
}

type upsertTemplatesRequest struct {
	VenueID string         `json:"venue_id"`
	Rows    []templateJSON `json:"rows"`
}

type selectorJSON struct {
	VenueID string   `json:"venue_id"`
	Days    []string `json:"days"`
	Times   []string `json:"times"`
	Tier    *int     `json:"tier"`
}

type availabilityEditRequest struct {
	selectorJSON
	Open   bool `json:"open"`
	Tables *int `json:"tables"`
}

type primeEditRequest struct {
	selectorJSON
	Prime bool `json:"prime"`
}

func (s selectorJSON) selector() (templates.Selector, error) {
	sel := templates.Selector{VenueID: strings.TrimSpace(s.VenueID), Tier: s.Tier}
	for _, raw := range s.Days {
		d, err := parseWeekday(raw)
		if err != nil {
			return sel, err
		}
		sel.Days = append(sel.Days, d)
	}
	for _, raw := range s.Times {
		m, err := parseMinute(raw)
		if err != nil {
			return sel, err
		}
		sel.StartMinutes = append(sel.StartMinutes, m)
	}
	return sel, nil
}

func toTemplateJSON(t model.ScheduleTemplate) templateJSON {
	return templateJSON{
		ID:                   t.ID,
		DayOfWeek:            int(t.DayOfWeek),
		StartTime:            model.FormatMinute(t.StartMinute),
		PartySize:            t.PartySize,
		IsAvailable:          t.IsAvailable,
		PrimeTime:            t.PrimeTime,
		PricePerHead:         t.PricePerHead,
		MinimumSpendPerGuest: t.MinimumSpendPerGuest,
		AvailableTables:      t.AvailableTables,
	}
}

// Templates serves GET ?venue_id=&day= and PUT (bulk upsert).
func (h *Handler) Templates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listTemplates(w, r)
	case http.MethodPut:
		h.upsertTemplates(w, r)
	default:
		w.Header().Set("Allow", "GET, PUT")
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	venueID := strings.TrimSpace(r.URL.Query().Get("venue_id"))
	if venueID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "venue_id required")
		return
	}
	day, err := parseWeekday(r.URL.Query().Get("day"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rows, err := h.templates.ListDay(r.Context(), venueID, day)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].StartMinute != rows[j].StartMinute {
			return rows[i].StartMinute < rows[j].StartMinute
		}
		return rows[i].PartySize < rows[j].PartySize
	})
	items := make([]templateJSON, 0, len(rows))
	for _, t := range rows {
		items = append(items, toTemplateJSON(t))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"templates": items})
}

func (h *Handler) upsertTemplates(w http.ResponseWriter, r *http.Request) {
	var req upsertTemplatesRequest
	if !decode(w, r, &req) {
		return
	}
	venueID := strings.TrimSpace(req.VenueID)
	rows := make([]model.ScheduleTemplate, 0, len(req.Rows))
	for _, row := range req.Rows {
		m, err := parseMinute(row.StartTime)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		rows = append(rows, model.ScheduleTemplate{
			VenueID:              venueID,
			DayOfWeek:            time.Weekday(row.DayOfWeek),
			StartMinute:          m,
			PartySize:            row.PartySize,
			IsAvailable:          row.IsAvailable,
			PrimeTime:            row.PrimeTime && row.IsAvailable,
			PricePerHead:         row.PricePerHead,
			MinimumSpendPerGuest: row.MinimumSpendPerGuest,
			AvailableTables:      row.AvailableTables,
		})
	}
	n, err := h.templates.UpsertBulk(r.Context(), venueID, rows)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"upserted": n})
}

func (h *Handler) SetTemplateAvailability(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req availabilityEditRequest
	if !decode(w, r, &req) {
		return
	}
	sel, err := req.selector()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	edit := templates.AvailabilityEdit{Selector: sel, Open: req.Open, Tables: -1}
	if req.Tables != nil {
		if *req.Tables < 0 {
			h.writeError(w, r, bookingerr.Validation("tables must not be negative"))
			return
		}
		edit.Tables = *req.Tables
	}
	n, err := h.templates.SetAvailability(r.Context(), edit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (h *Handler) SetTemplatePrime(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req primeEditRequest
	if !decode(w, r, &req) {
		return
	}
	sel, err := req.selector()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	n, err := h.templates.SetPrime(r.Context(), templates.PrimeEdit{Selector: sel, Prime: req.Prime})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"updated": n})
}

type slotOverrideRequest struct {
	TemplateID string `json:"template_id"`
	Date       string `json:"date"`
}

func (h *Handler) CloseSlot(w http.ResponseWriter, r *http.Request) {
	h.overrideSlot(w, r, h.slots.Close)
}

func (h *Handler) OpenSlot(w http.ResponseWriter, r *http.Request) {
	h.overrideSlot(w, r, h.slots.Open)
}

func (h *Handler) overrideSlot(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, time.Time) (model.VenueTimeSlot, error)) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req slotOverrideRequest
	if !decode(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := fn(r.Context(), strings.TrimSpace(req.TemplateID), date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if t, err := h.store.GetTemplateByID(r.Context(), s.ScheduleTemplateID); err == nil {
		h.resolver.Invalidate(r.Context(), t.VenueID, model.FormatDate(date))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"slot_id":          s.ID,
		"template_id":      s.ScheduleTemplateID,
		"date":             model.FormatDate(date),
		"is_available":     s.IsAvailable,
		"available_tables": s.AvailableTables,
		"tables_booked":    s.TablesBooked,
	})
}
