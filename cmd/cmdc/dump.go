package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cmdc/internal/ir"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <object>",
	Short: "Print the textual IR of an object file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		unit, err := ir.LoadObject(data)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		fmt.Fprint(cmd.OutOrStdout(), unit.Serialize())
		return nil
	},
}
