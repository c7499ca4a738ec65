package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/quant/regime"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage regime model files",
}

var modelInitCmd = &cobra.Command{
	Use:   "init <model.yaml>",
	Short: "Write the built-in default regime model to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m := regime.DefaultModel()
		if err := m.Save(args[0]); err != nil {
			return err
		}
		fmt.Printf("wrote %s (version %s, %d regimes)\n", args[0], m.Version, len(m.Regimes))
		return nil
	},
}

var modelCheckCmd = &cobra.Command{
	Use:   "check <model.yaml>",
	Short: "Validate a regime model file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := regime.LoadModel(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s ok (version %s, %d regimes)\n", args[0], m.Version, len(m.Regimes))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelInitCmd)
	modelCmd.AddCommand(modelCheckCmd)
}
