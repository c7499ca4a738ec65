package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/quant/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the decision and trade journal",
	Long: `Query and display journal records from the SQLite database.

Subcommands:
  decision  - Get one decision by ID
  today     - List decisions made today
  day       - List decisions made on a specific day
  trades    - List trades closed on a specific day

Examples:
  quant journal decision 01J9XK...
  quant journal today
  quant journal day 2026-03-10
  quant journal trades 2026-03-10`,
}

var journalDecisionCmd = &cobra.Command{
	Use:   "decision <decision-id>",
	Short: "Get one decision by ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDecision,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List decisions made today",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDecisions(dayStart(time.Now()))
	},
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List decisions made on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := time.ParseInLocation("2006-01-02", args[0], time.Local)
		if err != nil {
			return fmt.Errorf("bad day %q: %w", args[0], err)
		}
		return listDecisions(day)
	},
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades <YYYY-MM-DD>",
	Short: "List trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrades,
}

var (
	journalDBPath string
	journalSymbol string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalDecisionCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalTradesCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./quant.db", "path to SQLite journal DB")
	journalCmd.PersistentFlags().StringVarP(&journalSymbol, "symbol", "s", "", "filter by symbol")
}

func runJournalDecision(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return err
	}
	defer j.Close()

	d, err := j.GetDecision(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Decision %s\n", d.DecisionID)
	fmt.Printf("  Symbol:     %s\n", d.Symbol)
	fmt.Printf("  Policy:     %s\n", d.PolicyID)
	fmt.Printf("  Regime:     %s\n", d.Regime)
	fmt.Printf("  Outcome:    %s\n", d.Outcome)
	fmt.Printf("  Size:       %.4f (max %.4f)\n", d.RecommendedSize, d.MaxAllowedSize)
	fmt.Printf("  Risk:       %.2f\n", d.RiskAmount)
	fmt.Printf("  Style:      %s\n", d.ExecutionStyle)
	fmt.Printf("  Canary:     %.2f\n", d.CanaryWeight)
	if d.Alerts != "" {
		fmt.Printf("  Alerts:     %s\n", d.Alerts)
	}
	fmt.Printf("  Reasoning:  %s\n", d.Reasoning)
	fmt.Printf("  Time:       %s\n", d.Time.Local().Format(time.RFC3339))
	return nil
}

func listDecisions(day time.Time) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListDecisionsBetween(journalSymbol, day, day.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("no decisions")
		return nil
	}

	for _, d := range recs {
		fmt.Printf("%s  %-10s %-14s %-8s size=%.4f  %s\n",
			d.Time.Local().Format("15:04:05"), d.Symbol, d.PolicyID,
			d.Outcome, d.RecommendedSize, d.DecisionID)
	}
	fmt.Printf("%d decisions\n", len(recs))
	return nil
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	day, err := time.ParseInLocation("2006-01-02", args[0], time.Local)
	if err != nil {
		return fmt.Errorf("bad day %q: %w", args[0], err)
	}

	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListTradesBetween(journalSymbol, day, day.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("no trades")
		return nil
	}

	total := 0.0
	for _, t := range recs {
		total += t.RealizedPL
		fmt.Printf("%s  %-10s %-14s pnl=%+.2f  %s\n",
			t.CloseTime.Local().Format("15:04:05"), t.Symbol, t.PolicyID,
			t.RealizedPL, t.TradeID)
	}
	fmt.Printf("%d trades, net %+.2f\n", len(recs), total)
	return nil
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Local().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}
