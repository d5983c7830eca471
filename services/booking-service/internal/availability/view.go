package availability

import "time"

// Reasons a listed slot is not bookable.
const (
	ReasonClosed  = "closed"
	ReasonFull    = "full"
	ReasonTooSoon = "too_soon"
	ReasonPast    = "past"
)

type SlotView struct {
	TemplateID   string    `json:"template_id"`
	SlotID       string    `json:"slot_id,omitempty"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	StartMinute  int       `json:"-"`
	StartsAt     time.Time `json:"starts_at"`
	Tier         int       `json:"tier"`
	Prime        bool      `json:"prime"`
	Fee          *int64    `json:"fee,omitempty"`
	Remaining    int       `json:"remaining"`
	LowInventory bool      `json:"low_inventory"`
	Bookable     bool      `json:"bookable"`
	Reason       string    `json:"reason,omitempty"`
}

type VenueAvailability struct {
	VenueID       string     `json:"venue_id"`
	VenueName     string     `json:"venue_name"`
	Timezone      string     `json:"timezone"`
	Date          string     `json:"date"`
	Tier          int        `json:"tier"`
	DistanceKm    *float64   `json:"distance_km,omitempty"`
	DistanceMiles *float64   `json:"distance_miles,omitempty"`
	DriveMinutes  *int       `json:"drive_minutes,omitempty"`
	Slots         []SlotView `json:"slots"`
}
