package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/quant/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage pipeline configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init <quant.yaml>",
	Short: "Write a config file with production defaults",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Default().SaveToFile(args[0]); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", args[0])
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check <quant.yaml>",
	Short: "Validate a config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.LoadFromFile(args[0]); err != nil {
			return err
		}
		fmt.Printf("%s ok\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)
}
