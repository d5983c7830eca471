package availability

import (
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
)

// DefaultMinutesPast is the minimum lead time for a same-day booking.
const DefaultMinutesPast = 35 * time.Minute

// timing classifies a slot start against now in the venue's zone. Only
// same-day slots are subject to the lead time; later dates never are.
type timing struct {
	now         time.Time
	loc         *time.Location
	minutesPast time.Duration
}

// reason returns "" when the start is far enough ahead, plus the cutoff that
// applied on the same day.
func (t timing) reason(date time.Time, startsAt time.Time) (string, time.Time) {
	today := model.LocalDate(t.now, t.loc)
	switch {
	case date.Before(today):
		return ReasonPast, time.Time{}
	case date.After(today):
		return "", time.Time{}
	}
	cutoff := t.now.Add(t.minutesPast)
	if !startsAt.After(cutoff) {
		return ReasonTooSoon, cutoff
	}
	return "", cutoff
}

func (t timing) future(date time.Time) bool {
	return date.After(model.LocalDate(t.now, t.loc))
}
