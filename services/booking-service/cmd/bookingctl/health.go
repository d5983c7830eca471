package main

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/primetable/libs/grpcx"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/grpcserver"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func newHealthCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the gRPC health service of a running booking-service",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := grpcx.Dial(cmd.Context(), addr, grpcx.DialOptions{Timeout: timeout})
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer conn.Close()

			resp, err := healthpb.NewHealthClient(conn).Check(cmd.Context(), &healthpb.HealthCheckRequest{Service: grpcserver.ServiceName})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.GetStatus().String())
			if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("%s is not serving", addr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9093", "gRPC address")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "dial timeout")
	return cmd
}
