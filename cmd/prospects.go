package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/export"
	"github.com/sells-group/prospect-cli/internal/store"
)

var (
	prospectsToContact bool
	prospectsLimit     int
	prospectsOffset    int
	prospectsOut       string
)

var prospectsCmd = &cobra.Command{
	Use:   "prospects",
	Short: "Inspect and export stored prospects",
}

var prospectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored prospects",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("prospects"); err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		prospects, err := st.ListProspects(ctx, store.Filter{
			ToContact: prospectsToContact,
			Limit:     prospectsLimit,
			Offset:    prospectsOffset,
		})
		if err != nil {
			return err
		}

		if len(prospects) == 0 {
			fmt.Println("no prospects found")
			return nil
		}

		fmt.Printf("%-12s %-35s %-20s %-30s %s\n", "OSM ID", "NAME", "CATEGORY", "EMAIL", "CITY")
		for _, p := range prospects {
			fmt.Printf("%-12d %-35s %-20s %-30s %s\n", p.OSMID, truncate(p.Name, 35), p.Category, p.Email, p.City)
		}
		fmt.Printf("\n%d prospects\n", len(prospects))
		return nil
	},
}

var prospectsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export prospects to an XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("prospects"); err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		prospects, err := st.ListProspects(ctx, store.Filter{
			ToContact: prospectsToContact,
			Limit:     prospectsLimit,
			Offset:    prospectsOffset,
		})
		if err != nil {
			return err
		}

		if err := export.WriteXLSX(prospectsOut, prospects); err != nil {
			return err
		}
		fmt.Printf("wrote %d prospects to %s\n", len(prospects), prospectsOut)
		return nil
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	prospectsCmd.PersistentFlags().BoolVar(&prospectsToContact, "to-contact", false, "only prospects worth emailing (no website, has email, not contacted)")
	prospectsCmd.PersistentFlags().IntVar(&prospectsLimit, "limit", 0, "max rows (0 = all)")
	prospectsCmd.PersistentFlags().IntVar(&prospectsOffset, "offset", 0, "rows to skip")
	prospectsExportCmd.Flags().StringVar(&prospectsOut, "out", "prospects.xlsx", "output file path")

	prospectsCmd.AddCommand(prospectsListCmd)
	prospectsCmd.AddCommand(prospectsExportCmd)
	rootCmd.AddCommand(prospectsCmd)
}
