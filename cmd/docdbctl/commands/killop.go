package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var killOpCmd = &cobra.Command{
	Use:   "killop <opid>",
	Short: "Request that an in-progress operation be interrupted",
	Args:  cobra.ExactArgs(1),
	Example: `  docdbctl killop 4821`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid opid %q: %w", args[0], err)
		}

		result, err := client().KillOp(opID)
		if err != nil {
			return fmt.Errorf("kill op %d: %w", opID, err)
		}
		return printJSON(result)
	},
}
