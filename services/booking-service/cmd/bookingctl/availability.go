package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/spf13/cobra"
)

func newAvailabilityCmd() *cobra.Command {
	var (
		venues, region, date string
		partySize            int
		bookable             bool
	)

	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Print bookable slots for venues on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := model.ParseDate(date)
			if err != nil {
				return err
			}
			q := availability.Query{
				Region:       region,
				Date:         d,
				PartySize:    partySize,
				OnlyBookable: bookable,
			}
			for _, id := range strings.Split(venues, ",") {
				if id = strings.TrimSpace(id); id != "" {
					q.VenueIDs = append(q.VenueIDs, id)
				}
			}
			if len(q.VenueIDs) == 0 && q.Region == "" {
				return fmt.Errorf("one of --venue or --region is required")
			}

			engine, closeFn, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := engine.Resolver.ListAvailability(cmd.Context(), q)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&venues, "venue", "", "comma-separated venue ids")
	cmd.Flags().StringVar(&region, "region", "", "list every venue in a region")
	cmd.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD")
	cmd.Flags().IntVar(&partySize, "party-size", 2, "number of guests")
	cmd.Flags().BoolVar(&bookable, "bookable", false, "only show bookable slots")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
