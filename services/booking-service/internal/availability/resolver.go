// Package availability answers which slots a party can book at a venue (or
// every venue in a region) on a date.
package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/primetable/libs/metrics"
	otelx "github.com/md-rashed-zaman/primetable/libs/otel"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/geo"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/slots"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/templates"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	MinutesPast time.Duration
	SpeedMPH    float64
	// Concurrency bounds how many venues a region query resolves at once.
	Concurrency int
}

func DefaultConfig() Config {
	return Config{MinutesPast: DefaultMinutesPast, SpeedMPH: geo.DefaultSpeedMPH, Concurrency: 8}
}

type Deps struct {
	Store     storage.Store
	Templates *templates.Service
	Slots     *slots.Materializer
	Clock     clock.Clock
	Cache     Cache
	Metrics   *metrics.Engine
	Logger    *slog.Logger
}

type Resolver struct {
	store     storage.Store
	templates *templates.Service
	slots     *slots.Materializer
	clock     clock.Clock
	cache     Cache
	metrics   *metrics.Engine
	tracer    trace.Tracer
	logger    *slog.Logger
	cfg       Config
}

func NewResolver(d Deps, cfg Config) *Resolver {
	if cfg.MinutesPast < 0 {
		cfg.MinutesPast = DefaultMinutesPast
	}
	if cfg.SpeedMPH <= 0 {
		cfg.SpeedMPH = geo.DefaultSpeedMPH
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Cache == nil {
		d.Cache = NoCache
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New("primetable")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Resolver{
		store:     d.Store,
		templates: d.Templates,
		slots:     d.Slots,
		clock:     d.Clock,
		cache:     d.Cache,
		metrics:   d.Metrics,
		tracer:    otelx.Tracer("booking-service/availability"),
		logger:    d.Logger,
		cfg:       cfg,
	}
}

// Invalidate drops cached slot lists for one venue and date.
func (r *Resolver) Invalidate(ctx context.Context, venueID string, date string) {
	r.cache.Invalidate(ctx, venueID, date)
}

type Query struct {
	VenueIDs []string
	Region   string
	Date     time.Time
	// PartySize is the number of guests; it is rounded up to a tier.
	PartySize int
	// From and To bound slot start times in minutes of day, both inclusive.
	// Nil means the whole day.
	From   *int
	To     *int
	Origin *geo.Point
	Now    *time.Time
	// OnlyBookable drops slots that cannot be booked.
	OnlyBookable bool
}

func (q Query) window() (int, int) {
	from, to := 0, model.MinutesPerDay-1
	if q.From != nil {
		from = *q.From
	}
	if q.To != nil {
		to = *q.To
	}
	return from, to
}

func (r *Resolver) now(override *time.Time) time.Time {
	if override != nil {
		return *override
	}
	return r.clock.Now()
}

// ListAvailability returns one entry per venue, in the caller's venue order
// (or id order for a region), each with slots ordered by start time.
func (r *Resolver) ListAvailability(ctx context.Context, q Query) ([]VenueAvailability, error) {
	ctx, span := r.tracer.Start(ctx, "availability.list", trace.WithAttributes(
		attribute.String("date", model.FormatDate(q.Date)),
		attribute.Int("party_size", q.PartySize),
	))
	defer span.End()

	tier, err := r.templates.Tiers().RoundUp(q.PartySize)
	if err != nil {
		return nil, err
	}
	if q.Date.IsZero() {
		return nil, bookingerr.Validation("date is required")
	}
	from, to := q.window()
	if from < 0 || to >= model.MinutesPerDay || from > to {
		return nil, bookingerr.Validation("invalid time window %s-%s", model.FormatMinute(from), model.FormatMinute(to))
	}

	venues, err := r.venues(ctx, q)
	if err != nil {
		return nil, err
	}
	now := r.now(q.Now)

	out := make([]VenueAvailability, len(venues))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, v := range venues {
		g.Go(func() error {
			va, err := r.resolveVenue(gctx, v, q, tier, now)
			if err != nil {
				return fmt.Errorf("venue %s: %w", v.ID, err)
			}
			out[i] = va
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resolver) venues(ctx context.Context, q Query) ([]model.Venue, error) {
	if len(q.VenueIDs) == 0 {
		if q.Region == "" {
			return nil, bookingerr.Validation("venue_id or region is required")
		}
		return r.store.ListVenuesByRegion(ctx, q.Region)
	}
	venues := make([]model.Venue, 0, len(q.VenueIDs))
	for _, id := range q.VenueIDs {
		v, err := r.store.GetVenue(ctx, id)
		if storage.IsNotFound(err) {
			return nil, bookingerr.NotFound("venue %s not found", id)
		}
		if err != nil {
			return nil, err
		}
		if v.Active() {
			venues = append(venues, v)
		}
	}
	return venues, nil
}

func (r *Resolver) resolveVenue(ctx context.Context, v model.Venue, q Query, tier int, now time.Time) (VenueAvailability, error) {
	loc, err := v.Location()
	if err != nil {
		return VenueAvailability{}, err
	}
	date := model.LocalDate(q.Date, time.UTC)
	va := VenueAvailability{
		VenueID:   v.ID,
		VenueName: v.Name,
		Timezone:  loc.String(),
		Date:      model.FormatDate(date),
		Tier:      tier,
		Slots:     []SlotView{},
	}
	r.annotateDistance(&va, v, q.Origin)

	tm := timing{now: now, loc: loc, minutesPast: r.cfg.MinutesPast}
	from, to := q.window()
	key := CacheKey{VenueID: v.ID, Date: va.Date, Tier: tier, PartySize: q.PartySize, From: from, To: to}

	// Only future dates are cached: their bookability does not depend on now.
	cacheable := tm.future(date)
	var views []SlotView
	if cached, ok := r.cacheGet(ctx, key, cacheable); ok {
		views = cached
	} else {
		views, err = r.buildViews(ctx, v, loc, date, tier, q.PartySize, from, to, tm)
		if err != nil {
			return VenueAvailability{}, err
		}
		if cacheable {
			r.cache.Put(ctx, key, views)
		}
	}

	for _, s := range views {
		if q.OnlyBookable && !s.Bookable {
			continue
		}
		va.Slots = append(va.Slots, s)
	}
	return va, nil
}

func (r *Resolver) cacheGet(ctx context.Context, key CacheKey, cacheable bool) ([]SlotView, bool) {
	if !cacheable {
		r.metrics.AvailabilityQueries.WithLabelValues("bypass").Inc()
		return nil, false
	}
	if views, ok := r.cache.Get(ctx, key); ok {
		r.metrics.AvailabilityQueries.WithLabelValues("hit").Inc()
		return views, true
	}
	r.metrics.AvailabilityQueries.WithLabelValues("miss").Inc()
	return nil, false
}

func (r *Resolver) buildViews(ctx context.Context, v model.Venue, loc *time.Location, date time.Time, tier, partySize, from, to int, tm timing) ([]SlotView, error) {
	rows, err := r.templates.ResolveDay(ctx, v.ID, date.Weekday(), tier)
	if err != nil {
		return nil, err
	}
	views := make([]SlotView, 0, len(rows))
	for _, t := range rows {
		if t.StartMinute < from || t.StartMinute > to {
			continue
		}
		view, _, err := r.evaluate(ctx, t, loc, date, tier, partySize, tm, "")
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// evaluate applies the bookability rules to one template on one date. The
// slot is only materialized for open templates on dates not yet past.
// heldSlotID counts one table of that slot as free.
func (r *Resolver) evaluate(ctx context.Context, t model.ScheduleTemplate, loc *time.Location, date time.Time, tier, partySize int, tm timing, heldSlotID string) (SlotView, model.VenueTimeSlot, error) {
	startsAt := model.LocalStart(date, t.StartMinute, loc)
	view := SlotView{
		TemplateID:  t.ID,
		Date:        model.FormatDate(date),
		Time:        t.StartTime(),
		StartMinute: t.StartMinute,
		StartsAt:    startsAt.UTC(),
		Tier:        tier,
		Prime:       t.PrimeTime,
	}
	if !t.IsAvailable {
		view.Reason = ReasonClosed
		return view, model.VenueTimeSlot{}, nil
	}
	reason, _ := tm.reason(date, startsAt)
	if reason == ReasonPast {
		view.Reason = reason
		return view, model.VenueTimeSlot{}, nil
	}

	slot, err := r.slots.Resolve(ctx, t, date)
	if err != nil {
		return SlotView{}, model.VenueTimeSlot{}, err
	}
	view.SlotID = slot.ID
	view.Prime = t.PrimeTime || slot.PrimeTime
	view.Remaining = r.slots.Remaining(slot)
	if heldSlotID != "" && heldSlotID == slot.ID {
		view.Remaining++
	}
	view.Fee = Fee(t, view.Prime, tier, partySize)

	switch {
	case !slot.IsAvailable:
		view.Reason = ReasonClosed
	case reason != "":
		view.Reason = reason
	case view.Remaining <= 0:
		view.Reason = ReasonFull
	default:
		view.Bookable = true
		view.LowInventory = r.slots.LowRemaining(view.Remaining)
	}
	return view, slot, nil
}

// Fee is the platform fee for a prime slot: price per head times the tier
// when a price is set, otherwise the minimum spend per guest times the party
// size. Non-prime slots carry no fee.
func Fee(t model.ScheduleTemplate, prime bool, tier, partySize int) *int64 {
	if !prime {
		return nil
	}
	var fee int64
	if t.PricePerHead != nil {
		fee = *t.PricePerHead * int64(tier)
	} else {
		fee = t.MinimumSpendPerGuest * int64(partySize)
	}
	return &fee
}

func (r *Resolver) annotateDistance(va *VenueAvailability, v model.Venue, origin *geo.Point) {
	dest := v.Point()
	if origin == nil || dest == nil {
		return
	}
	km := geo.DistanceKm(*origin, *dest)
	miles := geo.KmToMiles(km)
	minutes := int(geo.DriveTime(miles, r.cfg.SpeedMPH) / time.Minute)
	va.DistanceKm = &km
	va.DistanceMiles = &miles
	va.DriveMinutes = &minutes
}
