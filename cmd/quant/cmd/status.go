package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/quant/journal"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize today's pipeline activity from the journal",
	Long: `Status reads the SQLite journal and summarizes the current day:
decision counts by outcome, realized trades with net P&L and win rate,
and the canary weight of the most recent decision.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var statusDBPath string

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusDBPath, "db", "d", "./quant.db", "path to SQLite journal DB")
}

func runStatus(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(statusDBPath)
	if err != nil {
		return err
	}
	defer j.Close()

	day := dayStart(time.Now())
	tomorrow := day.AddDate(0, 0, 1)

	decisions, err := j.ListDecisionsBetween("", day, tomorrow)
	if err != nil {
		return err
	}
	trades, err := j.ListTradesBetween("", day, tomorrow)
	if err != nil {
		return err
	}

	traded, refused := 0, 0
	for _, d := range decisions {
		if d.Outcome == "trade" {
			traded++
		} else {
			refused++
		}
	}

	wins, losses := 0, 0
	net := 0.0
	for _, t := range trades {
		net += t.RealizedPL
		if t.RealizedPL > 0 {
			wins++
		} else if t.RealizedPL < 0 {
			losses++
		}
	}

	fmt.Printf("Status for %s\n", day.Format("2006-01-02"))
	fmt.Printf("  Decisions:  %d (%d trade / %d no_trade)\n", len(decisions), traded, refused)
	fmt.Printf("  Trades:     %d (%d wins / %d losses), net %+.2f\n", len(trades), wins, losses, net)
	if len(decisions) > 0 {
		last := decisions[len(decisions)-1]
		fmt.Printf("  Canary:     weight %.2f as of %s\n", last.CanaryWeight, last.Time.Local().Format("15:04:05"))
		fmt.Printf("  Last:       %s %s via %s\n", last.Symbol, last.Outcome, last.PolicyID)
	}
	return nil
}
