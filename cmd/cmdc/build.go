package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cmdc/internal/backend/pack"
	"cmdc/internal/ir"
)

var (
	buildOutput    string
	buildNamespace string
)

func init() {
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "dist", "output directory")
	buildCmd.Flags().StringVar(&buildNamespace, "namespace", "", "emission namespace")
}

var buildCmd = &cobra.Command{
	Use:   "build <object>",
	Short: "Write a single object file out as a function pack",
	Long: `Build emits one object file without linking. Any unresolved extern
reference in the object fails the emission; use link to combine units.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		unit, err := ir.LoadObject(data)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		results, err := unit.RunPragmas(knownPragmas())
		if err != nil {
			return err
		}
		namespace := buildNamespace
		if ns, ok := results["namespace"].(string); ok && namespace == "" {
			namespace = ns
		}

		w := pack.NewWriter(namespace)
		if err := unit.Writeout(w); err != nil {
			return fmt.Errorf("writeout failed: %w", err)
		}
		if err := w.WriteTo(buildOutput); err != nil {
			return err
		}

		quiet, _ := cmd.Flags().GetBool("quiet")
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "built %s into %s (%d functions)\n",
				args[0], buildOutput, len(w.Functions()))
		}
		return nil
	},
}
