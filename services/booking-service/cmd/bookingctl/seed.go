package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/spf13/cobra"
)

func newSeedCmd() *cobra.Command {
	var (
		v          model.Venue
		lat, lng   float64
		hours      string
		primeHours string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Onboard a venue and seed its weekly availability templates",
		Example: `  bookingctl seed --name "Test Bistro" --region nyc --timezone America/New_York \
    --hours "mon-sun=17:00-23:00" --prime "fri,sat=19:00-21:00"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
				v.Latitude, v.Longitude = &lat, &lng
			}
			if v.BusinessHours, err = parseWeeklyHours(hours); err != nil {
				return fmt.Errorf("--hours: %w", err)
			}
			if v.PrimeHours, err = parseWeeklyHours(primeHours); err != nil {
				return fmt.Errorf("--prime: %w", err)
			}

			engine, closeFn, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := engine.Templates.Onboard(cmd.Context(), &v)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "venue %s (%s) onboarded with %d template rows\n", v.ID, v.Name, n)
			return nil
		},
	}
	cmd.Flags().StringVar(&v.Name, "name", "", "venue name")
	cmd.Flags().StringVar(&v.Region, "region", "", "region the venue is listed under")
	cmd.Flags().StringVar(&v.Timezone, "timezone", "UTC", "IANA timezone of the venue")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude")
	cmd.Flags().StringVar(&hours, "hours", "", `business hours, e.g. "mon-fri=17:00-22:00;sat,sun=12:00-23:00"`)
	cmd.Flags().StringVar(&primeHours, "prime", "", "prime hours, same format as --hours")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// parseWeeklyHours reads "days=HH:MM-HH:MM[,HH:MM-HH:MM]" groups separated
// by ';'. Days are comma-separated names or a wrapping range like "fri-mon".
func parseWeeklyHours(raw string) (model.WeeklyHours, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	out := model.WeeklyHours{}
	for _, group := range strings.Split(raw, ";") {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		daysPart, rangesPart, ok := strings.Cut(group, "=")
		if !ok {
			return nil, fmt.Errorf("missing '=' in %q", group)
		}
		days, err := parseDays(daysPart)
		if err != nil {
			return nil, err
		}
		var ranges []model.HoursRange
		for _, rg := range strings.Split(rangesPart, ",") {
			r, err := parseRange(rg)
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, r)
		}
		for _, d := range days {
			out[d] = append(out[d], ranges...)
		}
	}
	return out, nil
}

func parseDays(raw string) ([]time.Weekday, error) {
	var days []time.Weekday
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if from, to, isRange := strings.Cut(part, "-"); isRange {
			start, ok1 := weekdayNames[from]
			end, ok2 := weekdayNames[to]
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("invalid day range %q", part)
			}
			for d := start; ; d = (d + 1) % 7 {
				days = append(days, d)
				if d == end {
					break
				}
			}
			continue
		}
		d, ok := weekdayNames[part]
		if !ok {
			return nil, fmt.Errorf("invalid day %q", part)
		}
		days = append(days, d)
	}
	return days, nil
}

func parseRange(raw string) (model.HoursRange, error) {
	openRaw, closeRaw, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok {
		return model.HoursRange{}, fmt.Errorf("invalid range %q (want HH:MM-HH:MM)", raw)
	}
	open, err := model.ParseMinute(openRaw)
	if err != nil {
		return model.HoursRange{}, err
	}
	closeAt := model.MinutesPerDay
	if strings.TrimSpace(closeRaw) != "24:00" {
		if closeAt, err = model.ParseMinute(closeRaw); err != nil {
			return model.HoursRange{}, err
		}
	}
	r := model.HoursRange{Open: open, Close: closeAt}
	return r, r.Validate()
}
