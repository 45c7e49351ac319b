package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/pkg/overpass"
)

var discoverAreas string

var discoverCmd = &cobra.Command{
	Use:   "discover [area ...]",
	Short: "Discover businesses in named areas and store new prospects",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("discover"); err != nil {
			return err
		}

		areas := args
		if discoverAreas != "" {
			areas = append(areas, splitAndTrim(discoverAreas)...)
		}
		if len(areas) == 0 {
			return fmt.Errorf("at least one area is required (argument or --areas)")
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		source := overpass.NewClient(
			overpass.WithBaseURL(cfg.Overpass.BaseURL),
			overpass.WithTimeout(time.Duration(cfg.Overpass.TimeoutSecs)*time.Second),
		)

		disc := pipeline.NewDiscovery(source, st, pipeline.DiscoveryOpts{
			Concurrency: cfg.Discovery.Concurrency,
			RateLimit:   rate.Limit(cfg.Discovery.RateLimit),
			AreaTimeout: time.Duration(cfg.Discovery.AreaTimeoutSecs) * time.Second,
		})

		report, err := disc.Run(ctx, areas)
		if err != nil {
			return err
		}

		fmt.Printf("Run %s\n", report.RunID)
		fmt.Printf("  fetched:  %d\n", report.Fetched)
		fmt.Printf("  inserted: %d\n", report.Inserted)
		fmt.Printf("  known:    %d\n", report.Known)
		fmt.Printf("  rejected: %d\n", report.Rejected)
		if len(report.Failed) > 0 {
			fmt.Printf("  failed areas: %s\n", strings.Join(report.Failed, ", "))
		}
		return nil
	},
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func init() {
	discoverCmd.Flags().StringVar(&discoverAreas, "areas", "", "comma-separated area names")
	rootCmd.AddCommand(discoverCmd)
}
