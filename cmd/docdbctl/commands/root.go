// Package commands implements docdbctl's cobra command tree: one
// subcommand per admin sub-dispatcher verb, authenticating against the
// admin API surface with a bearer token.
package commands

import (
	"fmt"
	"os"

	"github.com/docdb/docdbd/pkg/adminclient"
	"github.com/spf13/cobra"
)

// Flags holds the global flag values shared by every subcommand.
var Flags = &GlobalFlags{}

// GlobalFlags are the persistent flags accepted by every subcommand.
type GlobalFlags struct {
	ServerURL string
	Token     string
}

var RootCmd = &cobra.Command{
	Use:   "docdbctl",
	Short: "Administer a docdbd server",
	Long: `docdbctl drives the admin API surface: list in-progress operations,
request that one be killed, and release the administrative fsync lock.`,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&Flags.ServerURL, "server", "http://localhost:8081", "Admin API server URL")
	RootCmd.PersistentFlags().StringVar(&Flags.Token, "token", os.Getenv("DOCDBCTL_TOKEN"), "Bearer token (default: $DOCDBCTL_TOKEN)")

	RootCmd.AddCommand(inProgCmd, killOpCmd, unlockCmd)
}

// Execute runs the command tree, printing any error and exiting non-zero.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func client() *adminclient.Client {
	return adminclient.New(Flags.ServerURL).WithToken(Flags.Token)
}
