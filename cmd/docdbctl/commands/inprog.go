package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var inProgNamespace string

var inProgCmd = &cobra.Command{
	Use:   "inprog",
	Short: "List currently in-progress operations",
	Example: `  # List every in-progress operation
  docdbctl inprog

  # Restrict to one namespace
  docdbctl inprog --ns test.coll`,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client().InProgress(inProgNamespace)
		if err != nil {
			return fmt.Errorf("list in-progress operations: %w", err)
		}
		return printJSON(result)
	},
}

func init() {
	inProgCmd.Flags().StringVar(&inProgNamespace, "ns", "", "Restrict the listing to this namespace")
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
