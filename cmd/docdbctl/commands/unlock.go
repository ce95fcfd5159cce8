package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Release the administrative fsync lock",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client().Unlock()
		if err != nil {
			return fmt.Errorf("unlock: %w", err)
		}
		return printJSON(result)
	},
}
