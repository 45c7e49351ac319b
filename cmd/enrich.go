package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/browser"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/internal/store"
)

var (
	enrichQuery    string
	enrichLimit    int
	enrichHeadless bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Look up contactable prospects on Maps and classify the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("enrich"); err != nil {
			return err
		}

		ctx := cmd.Context()

		var prospects []model.Prospect
		if enrichQuery != "" {
			// Ad-hoc lookup, no store round trip.
			prospects = []model.Prospect{{Name: enrichQuery}}
		} else {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			prospects, err = st.ListProspects(ctx, store.Filter{ToContact: true, Limit: enrichLimit})
			if err != nil {
				return err
			}
			if len(prospects) == 0 {
				fmt.Println("no prospects to enrich")
				return nil
			}
		}

		bCfg := browser.Config{
			BaseURL:        cfg.Browser.BaseURL,
			ConsentTimeout: time.Duration(cfg.Browser.ConsentTimeoutSecs) * time.Second,
			SettleDelay:    time.Duration(cfg.Browser.SettleDelaySecs) * time.Second,
			SearchSettle:   time.Duration(cfg.Browser.SearchSettleSecs) * time.Second,
		}
		headless := cfg.Browser.Headless
		if cmd.Flags().Changed("headless") {
			headless = enrichHeadless
		}

		enricher := pipeline.NewEnricher(func() browser.Driver {
			return browser.NewChromeDriver(headless)
		}, bCfg)

		return runEnrichment(ctx, enricher, prospects)
	},
}

type prospectEnricher interface {
	Enrich(ctx context.Context, p model.Prospect) (*pipeline.EnrichResult, error)
}

// runEnrichment looks every prospect up in turn. Individual failures do not
// stop the loop, but any failure makes the whole run fail.
func runEnrichment(ctx context.Context, enricher prospectEnricher, prospects []model.Prospect) error {
	var failed int
	for _, p := range prospects {
		result, err := enricher.Enrich(ctx, p)
		if err != nil {
			zap.L().Error("enrichment failed",
				zap.Int64("osm_id", p.OSMID),
				zap.String("name", p.Name),
				zap.Error(err),
			)
			failed++
			continue
		}
		fmt.Printf("%-40s %s\n", p.Name, result.Classification)
	}
	if failed > 0 {
		return eris.Errorf("cmd: enrichment failed for %d of %d prospects", failed, len(prospects))
	}
	return nil
}

func init() {
	enrichCmd.Flags().StringVar(&enrichQuery, "query", "", "enrich a single ad-hoc query instead of stored prospects")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 10, "max prospects to enrich")
	enrichCmd.Flags().BoolVar(&enrichHeadless, "headless", true, "run the browser headless")
	rootCmd.AddCommand(enrichCmd)
}
